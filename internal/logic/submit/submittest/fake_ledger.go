package submittest

import (
	"context"
	"errors"
	"sync"

	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/mr-tron/base58"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/types"
)

// ErrNetwork 模拟节点不可达
var ErrNetwork = errors.New("dial tcp 127.0.0.1:8899: connect: connection refused")

type landing struct {
	tx    sdktypes.Transaction
	polls int
}

// FakeLedger 内存中的节点：已上链的签名再次发送时是 no-op（与真实节点的重放保护一致）
type FakeLedger struct {
	mu sync.Mutex

	Blockhash       string
	SendErrs        []error // 每次 SendTransaction 依次弹出一个，nil 表示成功
	PollsUntilFinal int     // 前 N 次轮询返回 nil（节点尚未看到）
	ProgramErr      any     // 非空时上链结果为程序执行失败
	Slot            uint64
	RentPerByte     uint64
	Accounts        map[types.Pubkey][]byte
	Expired         map[string]bool // 已失效的 blockhash
	Drop            bool            // 为 true 时 SendTransaction 返回成功但交易不会上链

	landed map[string]*landing
	order  []string

	BlockhashCalls int
	SendCalls      int
	StatusCalls    int
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		Blockhash:   "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
		Slot:        4242,
		RentPerByte: 6960,
		Accounts:    make(map[types.Pubkey][]byte),
		Expired:     make(map[string]bool),
		landed:      make(map[string]*landing),
	}
}

func (f *FakeLedger) LatestBlockhash(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BlockhashCalls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.Blockhash, nil
}

func (f *FakeLedger) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !f.Expired[blockhash], nil
}

// Expire 让 blockhash 失效，并切换到新的 blockhash
func (f *FakeLedger) Expire(next string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Expired[f.Blockhash] = true
	f.Blockhash = next
}

func (f *FakeLedger) SendTransaction(ctx context.Context, tx sdktypes.Transaction, _ submit.Commitment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SendCalls++

	if len(f.SendErrs) > 0 {
		err := f.SendErrs[0]
		f.SendErrs = f.SendErrs[1:]
		if err != nil {
			if errors.Is(err, ErrNetwork) {
				return "", core.Wrap(core.KindTransportError, err, "sendTransaction")
			}
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(tx.Signatures) == 0 {
		return "", core.Errorf(core.KindPreflightRejected, "transaction has no signatures")
	}

	sig := base58.Encode(tx.Signatures[0])
	if f.Expired[tx.Message.RecentBlockHash] {
		return "", core.Errorf(core.KindPreflightRejected, "blockhash not found")
	}
	if f.Drop {
		return sig, nil
	}
	if _, ok := f.landed[sig]; !ok {
		f.landed[sig] = &landing{tx: tx}
		f.order = append(f.order, sig)
	}
	return sig, nil
}

func (f *FakeLedger) SignatureStatus(_ context.Context, signature string) (*submit.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusCalls++

	l, ok := f.landed[signature]
	if !ok {
		return nil, nil
	}
	l.polls++
	if l.polls <= f.PollsUntilFinal {
		return nil, nil
	}
	return &submit.TxStatus{
		Slot:       f.Slot,
		Commitment: submit.CommitmentFinalized,
		Err:        f.ProgramErr,
	}, nil
}

func (f *FakeLedger) MinimumRentExemptBalance(_ context.Context, size uint64) (uint64, error) {
	// 与节点一致：(128 字节账户头 + size) * lamports_per_byte_year * 2
	return (128 + size) * f.RentPerByte, nil
}

func (f *FakeLedger) AccountData(_ context.Context, account types.Pubkey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Accounts[account], nil
}

// Landed 已上链的签名（按首次上链顺序，重放不计）
func (f *FakeLedger) Landed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// LandedTx 返回某个签名对应的交易
func (f *FakeLedger) LandedTx(signature string) (sdktypes.Transaction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.landed[signature]
	if !ok {
		return sdktypes.Transaction{}, false
	}
	return l.tx, true
}

func (f *FakeLedger) Calls() (blockhash, send, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BlockhashCalls, f.SendCalls, f.StatusCalls
}
