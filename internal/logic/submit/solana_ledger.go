package submit

import (
	"context"
	"errors"
	"strings"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/rpc"
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/types"
)

// JSON-RPC 错误码（参考 solana rpc_custom_error.rs）
const (
	rpcCodeSendTxPreflightFailure  = -32002
	rpcCodeSignatureVerifyFailure  = -32003
	rpcCodeBlockhashNotFound       = -32008
	rpcCodeTransactionPrecompileVF = -32013
)

// SolanaLedger 基于 solana-go-sdk 的 Ledger 实现
type SolanaLedger struct {
	client   *client.Client
	endpoint string
}

func NewSolanaLedger(endpoint string) *SolanaLedger {
	return &SolanaLedger{
		client:   client.NewClient(endpoint),
		endpoint: endpoint,
	}
}

func (l *SolanaLedger) Endpoint() string {
	return l.endpoint
}

func (l *SolanaLedger) LatestBlockhash(ctx context.Context) (string, error) {
	res, err := l.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", classifyRPCError(err, "getLatestBlockhash")
	}
	return res.Blockhash, nil
}

func (l *SolanaLedger) IsBlockhashValid(ctx context.Context, blockhash string) (bool, error) {
	ok, err := l.client.IsBlockhashValid(ctx, blockhash)
	if err != nil {
		return false, classifyRPCError(err, "isBlockhashValid")
	}
	return ok, nil
}

func (l *SolanaLedger) SendTransaction(ctx context.Context, tx sdktypes.Transaction, preflight Commitment) (string, error) {
	sig, err := l.client.SendTransactionWithConfig(ctx, tx, client.SendTransactionConfig{
		PreflightCommitment: rpc.Commitment(preflight),
	})
	if err != nil {
		return "", classifyRPCError(err, "sendTransaction")
	}
	return sig, nil
}

func (l *SolanaLedger) SignatureStatus(ctx context.Context, signature string) (*TxStatus, error) {
	// 需要查历史：blockhash 过期后的判定依赖它，近期状态缓存可能已经不包含该签名
	st, err := l.client.GetSignatureStatusWithConfig(ctx, signature, client.GetSignatureStatusesConfig{
		SearchTransactionHistory: true,
	})
	if err != nil {
		return nil, classifyRPCError(err, "getSignatureStatuses")
	}
	if st == nil {
		return nil, nil
	}

	out := &TxStatus{
		Slot: st.Slot,
		Err:  st.Err,
	}
	if st.ConfirmationStatus != nil {
		out.Commitment = Commitment(*st.ConfirmationStatus)
	} else if st.Confirmations == nil {
		// 老版本节点：confirmations 为 null 表示已 finalized
		out.Commitment = CommitmentFinalized
	}
	return out, nil
}

func (l *SolanaLedger) MinimumRentExemptBalance(ctx context.Context, size uint64) (uint64, error) {
	lamports, err := l.client.GetMinimumBalanceForRentExemption(ctx, size)
	if err != nil {
		return 0, classifyRPCError(err, "getMinimumBalanceForRentExemption")
	}
	return lamports, nil
}

func (l *SolanaLedger) AccountData(ctx context.Context, account types.Pubkey) ([]byte, error) {
	info, err := l.client.GetAccountInfo(ctx, account.String())
	if err != nil {
		return nil, classifyRPCError(err, "getAccountInfo")
	}
	if len(info.Data) == 0 {
		return nil, nil
	}
	return info.Data, nil
}

// classifyRPCError 预检 / 签名校验失败说明交易本身有问题，不重试；其余都按传输错误处理
func classifyRPCError(err error, method string) error {
	var rpcErr *rpc.JsonRpcError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case rpcCodeSendTxPreflightFailure, rpcCodeSignatureVerifyFailure, rpcCodeTransactionPrecompileVF:
			return core.Wrap(core.KindPreflightRejected, err, "%s rejected: %s", method, rpcErr.Message)
		case rpcCodeBlockhashNotFound:
			return core.Wrap(core.KindPreflightRejected, err, "%s: blockhash expired", method)
		}
	}
	if strings.Contains(err.Error(), "Transaction simulation failed") {
		return core.Wrap(core.KindPreflightRejected, err, "%s rejected", method)
	}
	return core.Wrap(core.KindTransportError, err, "%s", method)
}
