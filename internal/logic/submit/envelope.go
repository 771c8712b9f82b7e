package submit

import (
	"fmt"

	sdktypes "github.com/blocto/solana-go-sdk/types"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

// Envelope 已签名的交易。重试只能重发同一个 Envelope（节点对已上链交易的重放是 no-op），
// 不要为同一意图重新签一个新的 Envelope。
type Envelope struct {
	Signature string // 第一个签名（付款方），即交易 ID
	IntentKey string
	Blockhash string // 签名时使用的 recent blockhash，失效后该 envelope 不可能再上链
	Raw       []byte // wire 格式，只包含签名与消息，不含任何私钥材料
	Tx        sdktypes.Transaction
	Signers   []types.Pubkey
}

// Sign 用 authorities 对 batch 签名。batch 要求的每个 signer 都必须提供，
// 否则返回 MissingSigner 并指出缺少的公钥。同一 batch 重复签名得到相同的结果。
func Sign(b *Batch, authorities ...*Authority) (*Envelope, error) {
	byKey := make(map[types.Pubkey]*Authority, len(authorities))
	for _, a := range authorities {
		if a != nil {
			byKey[a.Pubkey()] = a
		}
	}

	required := b.RequiredSigners()
	signers := make([]*Authority, 0, len(required))
	for _, pk := range required {
		a, ok := byKey[pk]
		if !ok {
			return nil, core.Errorf(core.KindMissingSigner, "no authority for required signer %s", pk)
		}
		signers = append(signers, a)
	}

	tx, err := signMessage(b.Message(), signers)
	if err != nil {
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("signed transaction has no signatures")
	}

	sig, err := types.SignatureFromBytes(tx.Signatures[0])
	if err != nil {
		return nil, err
	}

	raw, err := tx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	return &Envelope{
		Signature: sig.String(),
		IntentKey: b.IntentKey(),
		Blockhash: b.RecentBlockhash,
		Raw:       raw,
		Tx:        tx,
		Signers:   required,
	}, nil
}

// signMessage 逐个进入 authority 的读锁后再统一签名，签名期间不会被 Release
func signMessage(msg sdktypes.Message, signers []*Authority) (sdktypes.Transaction, error) {
	accounts := make([]sdktypes.Account, 0, len(signers))

	var sign func(i int) (sdktypes.Transaction, error)
	sign = func(i int) (sdktypes.Transaction, error) {
		if i == len(signers) {
			tx, err := sdktypes.NewTransaction(sdktypes.NewTransactionParam{
				Message: msg,
				Signers: accounts,
			})
			if err != nil {
				return sdktypes.Transaction{}, core.Wrap(core.KindMissingSigner, err, "sign transaction")
			}
			return tx, nil
		}

		var tx sdktypes.Transaction
		err := signers[i].withAccount(func(acc sdktypes.Account) error {
			accounts = append(accounts, acc)
			var err error
			tx, err = sign(i + 1)
			return err
		})
		return tx, err
	}

	return sign(0)
}
