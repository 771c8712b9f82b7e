package instruction

import (
	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/codec"
	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/pda"
	"registry-client-sol/internal/types"
)

// InitializeParams 初始化 storagePool 根账户
type InitializeParams struct {
	Program   types.Pubkey
	Authority types.Pubkey // 签名者，同时是手续费付款方
	Owner     types.Pubkey // 派生 storagePool 的 owner，为空时取 Authority
	Model     string
}

// RegisterParams 写入一条 Entry
type RegisterParams struct {
	Program   types.Pubkey
	Authority types.Pubkey
	Owner     types.Pubkey // 为空时取 Authority
	Model     string
	EntryKey  string // 派生 Entry 地址的 key，必须与 Model 一致；为空时取 Model
}

func ownerOr(owner, authority types.Pubkey) types.Pubkey {
	if owner.IsZero() {
		return authority
	}
	return owner
}

// BuildInitialize Initialize 指令账户布局：
//
// #0 - authority（signer，只读）
// #1 - storagePool PDA ["storagePool", owner]（可写）
// #2 - System Program（可写，程序内 CPI 创建账户）
func BuildInitialize(p InitializeParams) (Operation, error) {
	owner := ownerOr(p.Owner, p.Authority)
	root, err := pda.NewDeriver(p.Program).StorageRoot(owner)
	if err != nil {
		return Operation{}, err
	}

	data, err := codec.Encode(codec.InitializePayload{Model: p.Model})
	if err != nil {
		return Operation{}, err
	}

	return Build(p.Program, data, []AccountRef{
		{Pubkey: p.Authority, IsSigner: true, IsWritable: false},
		{Pubkey: root.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: consts.SystemProgram, IsSigner: false, IsWritable: true},
	})
}

// BuildRegister Register 指令账户布局：
//
// #0 - authority（signer，只读）
// #1 - storagePool PDA ["storagePool", owner]（可写）
// #2 - Entry PDA ["Entry", key, owner]（可写，首次写入时由程序创建）
// #3 - System Program（可写）
func BuildRegister(p RegisterParams) (Operation, error) {
	if p.Model == "" {
		return Operation{}, core.Errorf(core.KindInvalidModel, "model must not be empty")
	}
	key := p.EntryKey
	if key == "" {
		key = p.Model
	}
	if key != p.Model {
		return Operation{}, core.Errorf(core.KindInconsistentEntryKey,
			"entry key %q does not match encoded model %q", key, p.Model)
	}

	owner := ownerOr(p.Owner, p.Authority)
	deriver := pda.NewDeriver(p.Program)
	root, err := deriver.StorageRoot(owner)
	if err != nil {
		return Operation{}, err
	}
	entry, err := deriver.Entry(key, owner)
	if err != nil {
		return Operation{}, err
	}

	data, err := codec.Encode(codec.RegisterPayload{Model: p.Model})
	if err != nil {
		return Operation{}, err
	}

	return Build(p.Program, data, []AccountRef{
		{Pubkey: p.Authority, IsSigner: true, IsWritable: false},
		{Pubkey: root.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: entry.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: consts.SystemProgram, IsSigner: false, IsWritable: true},
	})
}
