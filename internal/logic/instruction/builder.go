package instruction

import (
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

// AccountRef 指令引用的账户及其访问模式，顺序即程序端 next_account_info 的顺序
type AccountRef struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Operation 一条待提交的指令（程序 + 账户列表 + 编码后的数据）
type Operation struct {
	ProgramID types.Pubkey
	Data      []byte
	Accounts  []AccountRef
}

// Build 纯组装，不做 I/O。校验：
//   - accounts 非空
//   - 至少一个 signer
//   - 同一个 Pubkey 不能同时声明为可写和只读
func Build(program types.Pubkey, data []byte, refs []AccountRef) (Operation, error) {
	if err := validateRefs(program, refs); err != nil {
		return Operation{}, err
	}

	accounts := make([]AccountRef, len(refs))
	copy(accounts, refs)
	payload := make([]byte, len(data))
	copy(payload, data)

	return Operation{
		ProgramID: program,
		Data:      payload,
		Accounts:  accounts,
	}, nil
}

// Validate 重新校验（用于非 Build 构造出来的 Operation）
func (op Operation) Validate() error {
	return validateRefs(op.ProgramID, op.Accounts)
}

func validateRefs(program types.Pubkey, refs []AccountRef) error {
	if len(refs) == 0 {
		return core.Errorf(core.KindEmptyAccountRefs, "operation for program %s has no accounts", program)
	}

	hasSigner := false
	writable := make(map[types.Pubkey]bool, len(refs))
	for i, ref := range refs {
		if ref.IsSigner {
			hasSigner = true
		}
		if prev, seen := writable[ref.Pubkey]; seen && prev != ref.IsWritable {
			return core.Errorf(core.KindConflictingAccountRef,
				"account #%d %s declared both writable and read-only", i, ref.Pubkey)
		}
		writable[ref.Pubkey] = ref.IsWritable
	}
	if !hasSigner {
		return core.Errorf(core.KindMissingSigner, "operation for program %s has no signer account", program)
	}
	return nil
}

// Signers 按出现顺序返回去重后的 signer
func (op Operation) Signers() []types.Pubkey {
	var out []types.Pubkey
	seen := make(map[types.Pubkey]struct{})
	for _, ref := range op.Accounts {
		if !ref.IsSigner {
			continue
		}
		if _, ok := seen[ref.Pubkey]; ok {
			continue
		}
		seen[ref.Pubkey] = struct{}{}
		out = append(out, ref.Pubkey)
	}
	return out
}

// ToInstruction 转换为 SDK 指令，账户顺序保持不变
func (op Operation) ToInstruction() sdktypes.Instruction {
	metas := make([]sdktypes.AccountMeta, 0, len(op.Accounts))
	for _, ref := range op.Accounts {
		metas = append(metas, sdktypes.AccountMeta{
			PubKey:     ref.Pubkey.ToCommon(),
			IsSigner:   ref.IsSigner,
			IsWritable: ref.IsWritable,
		})
	}
	return sdktypes.Instruction{
		ProgramID: op.ProgramID.ToCommon(),
		Accounts:  metas,
		Data:      op.Data,
	}
}
