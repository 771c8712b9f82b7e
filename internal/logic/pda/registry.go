package pda

import (
	"registry-client-sol/internal/types"
)

// 链上程序约定的 seed 前缀
var (
	SeedStoragePool = []byte("storagePool")
	SeedEntry       = []byte("Entry")
)

// Address 派生结果
type Address struct {
	Pubkey types.Pubkey
	Bump   uint8
}

// Deriver 绑定一个程序 ID 的派生器，无状态，可并发使用
type Deriver struct {
	program types.Pubkey
}

func NewDeriver(program types.Pubkey) Deriver {
	return Deriver{program: program}
}

func (d Deriver) Program() types.Pubkey {
	return d.program
}

// StorageRoot namespace 根账户：["storagePool", owner]
func (d Deriver) StorageRoot(owner types.Pubkey) (Address, error) {
	addr, bump, err := Derive(SeedStoragePool, [][]byte{owner[:]}, d.program)
	if err != nil {
		return Address{}, err
	}
	return Address{Pubkey: addr, Bump: bump}, nil
}

// Entry 单条记录账户：["Entry", key, owner]，key 超过 32 字节时返回 SeedTooLong
func (d Deriver) Entry(key string, owner types.Pubkey) (Address, error) {
	addr, bump, err := Derive(SeedEntry, [][]byte{[]byte(key), owner[:]}, d.program)
	if err != nil {
		return Address{}, err
	}
	return Address{Pubkey: addr, Bump: bump}, nil
}
