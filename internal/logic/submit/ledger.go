package submit

import (
	"context"

	sdktypes "github.com/blocto/solana-go-sdk/types"

	"registry-client-sol/internal/types"
)

// TxStatus 某个签名在节点上的状态
type TxStatus struct {
	Slot       uint64
	Commitment Commitment
	Err        any // 程序执行失败时非空（节点返回的结构化错误）
}

// Ledger 对节点 RPC 的最小依赖。实现需要把错误归类为
// core.KindPreflightRejected（交易本身无效）或 core.KindTransportError（可重试）。
type Ledger interface {
	LatestBlockhash(ctx context.Context) (string, error)
	// IsBlockhashValid blockhash 失效后，用它签名的交易不可能再上链
	IsBlockhashValid(ctx context.Context, blockhash string) (bool, error)
	SendTransaction(ctx context.Context, tx sdktypes.Transaction, preflight Commitment) (string, error)
	// SignatureStatus 节点还不知道该签名时返回 (nil, nil)
	SignatureStatus(ctx context.Context, signature string) (*TxStatus, error)
	MinimumRentExemptBalance(ctx context.Context, size uint64) (uint64, error)
	// AccountData 账户不存在时返回 (nil, nil)
	AccountData(ctx context.Context, account types.Pubkey) ([]byte, error)
}
