package submit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	sdktypes "github.com/blocto/solana-go-sdk/types"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/instruction"
	"registry-client-sol/internal/types"
)

// Batch 一笔原子交易：按顺序执行的指令 + 付款方 + 最近区块哈希
type Batch struct {
	Operations      []instruction.Operation
	FeePayer        types.Pubkey
	RecentBlockhash string
}

// ValidateOperations 本地校验，必须在任何网络调用之前执行
func ValidateOperations(ops []instruction.Operation) error {
	if len(ops) == 0 {
		return core.Errorf(core.KindEmptyBatch, "batch has no operations")
	}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return core.Wrap(core.KindOf(err), err, "operation #%d", i)
		}
	}
	return nil
}

// NewBatch feePayer 为空时取第一条指令的第一个 signer
func NewBatch(feePayer types.Pubkey, recentBlockhash string, ops ...instruction.Operation) (*Batch, error) {
	if err := ValidateOperations(ops); err != nil {
		return nil, err
	}
	if feePayer.IsZero() {
		feePayer = ops[0].Signers()[0]
	}
	if recentBlockhash == "" {
		return nil, core.Errorf(core.KindEmptyBatch, "batch has no recent blockhash")
	}

	copied := make([]instruction.Operation, len(ops))
	copy(copied, ops)
	return &Batch{
		Operations:      copied,
		FeePayer:        feePayer,
		RecentBlockhash: recentBlockhash,
	}, nil
}

// RequiredSigners 付款方在前，其余 signer 按出现顺序去重
func (b *Batch) RequiredSigners() []types.Pubkey {
	out := []types.Pubkey{b.FeePayer}
	seen := map[types.Pubkey]struct{}{b.FeePayer: {}}
	for _, op := range b.Operations {
		for _, pk := range op.Signers() {
			if _, ok := seen[pk]; ok {
				continue
			}
			seen[pk] = struct{}{}
			out = append(out, pk)
		}
	}
	return out
}

func (b *Batch) Message() sdktypes.Message {
	ixs := make([]sdktypes.Instruction, 0, len(b.Operations))
	for _, op := range b.Operations {
		ixs = append(ixs, op.ToInstruction())
	}
	return sdktypes.NewMessage(sdktypes.NewMessageParam{
		FeePayer:        b.FeePayer.ToCommon(),
		Instructions:    ixs,
		RecentBlockhash: b.RecentBlockhash,
	})
}

// IntentKey 同一意图（指令内容相同）得到相同的 key，与 blockhash 无关。
// 用来识别「为同一个意图构造了第二个 envelope」。
func (b *Batch) IntentKey() string {
	h := sha256.New()
	var lenBuf [4]byte
	h.Write(b.FeePayer[:])
	for _, op := range b.Operations {
		h.Write(op.ProgramID[:])
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(op.Accounts)))
		h.Write(lenBuf[:])
		for _, ref := range op.Accounts {
			h.Write(ref.Pubkey[:])
			var flags byte
			if ref.IsSigner {
				flags |= 1
			}
			if ref.IsWritable {
				flags |= 2
			}
			h.Write([]byte{flags})
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(op.Data)))
		h.Write(lenBuf[:])
		h.Write(op.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
