package pda

import (
	"crypto/sha256"

	"filippo.io/edwards25519"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

const (
	MaxSeeds      = 16 // 包含 bump 在内的最大 seed 个数
	MaxSeedLength = 32 // 单个 seed 的最大字节数

	pdaMarker = "ProgramDerivedAddress"
)

// IsOnCurve 判断 32 字节是否为合法的 ed25519 点（有对应私钥的地址都在曲线上）
func IsOnCurve(p types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// 测试中可替换，用于构造 bump 耗尽的场景
var onCurve = IsOnCurve

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return core.Errorf(core.KindSeedTooLong, "got %d seeds, max %d", len(seeds), MaxSeeds)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return core.Errorf(core.KindSeedTooLong, "seed #%d is %d bytes, max %d", i, len(s), MaxSeedLength)
		}
	}
	return nil
}

// candidate = sha256(seeds... || programID || "ProgramDerivedAddress")
func candidate(seeds [][]byte, program types.Pubkey) types.Pubkey {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var out types.Pubkey
	copy(out[:], h.Sum(nil))
	return out
}

// CreateProgramAddress 用给定 seeds（已含 bump）计算地址，结果在曲线上时 ok=false
func CreateProgramAddress(seeds [][]byte, program types.Pubkey) (addr types.Pubkey, ok bool, err error) {
	if err := checkSeeds(seeds); err != nil {
		return types.Pubkey{}, false, err
	}
	addr = candidate(seeds, program)
	if onCurve(addr) {
		return types.Pubkey{}, false, nil
	}
	return addr, true, nil
}

// Derive 计算 PDA：seeds = [namespace, extra..., bump]，bump 从 255 向下探测，
// 返回第一个落在曲线外的地址及其 bump。所有 bump 都失败时返回 AddressSpaceExhausted。
func Derive(namespace []byte, extra [][]byte, program types.Pubkey) (types.Pubkey, uint8, error) {
	seeds := make([][]byte, 0, len(extra)+2)
	seeds = append(seeds, namespace)
	seeds = append(seeds, extra...)
	seeds = append(seeds, nil) // bump 占位

	if err := checkSeeds(seeds); err != nil {
		return types.Pubkey{}, 0, err
	}

	bump := []byte{0}
	seeds[len(seeds)-1] = bump
	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		addr := candidate(seeds, program)
		if !onCurve(addr) {
			return addr, uint8(b), nil
		}
	}

	return types.Pubkey{}, 0, core.Errorf(core.KindAddressSpaceExhausted,
		"no off-curve address for namespace %q under program %s", namespace, program)
}
