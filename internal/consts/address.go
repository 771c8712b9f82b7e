package consts

import "registry-client-sol/internal/types"

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	SystemProgramStr = "11111111111111111111111111111111"

	// 默认部署的 registry 程序（本地 validator），可由配置覆盖
	DefaultRegistryProgramStr = "7MyWqb1JDgHGfkbuyGFvFaPQwLDKJyX2hymhj9NMSYuh"
)

var (
	SystemProgram          = types.PubkeyFromBase58(SystemProgramStr)
	DefaultRegistryProgram = types.PubkeyFromBase58(DefaultRegistryProgramStr)
)

// 账户空间（与链上程序的 borsh 布局一致，不含 model 本身的长度）
const (
	EntryAccountSpace = 32 + 32 + 4     // storage + owner + model 长度前缀
	StorageBaseSpace  = 32 + 1 + 4      // authority + bump + entries 长度前缀
	StorageEntrySpace = 32 + 32 + 1 + 4 // 程序端按每条 entry 预留的空间
)
