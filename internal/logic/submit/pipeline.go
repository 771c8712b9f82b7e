package submit

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/instruction"
	"registry-client-sol/internal/logic/journal"
	"registry-client-sol/internal/types"
	"registry-client-sol/pkg/logger"
)

// Options 提交流程参数
type Options struct {
	PreflightCommitment Commitment    // 预检使用的 commitment
	Commitment          Commitment    // 默认等待的 commitment
	PollInterval        time.Duration // 轮询签名状态的间隔
	SubmitTimeout       time.Duration // 单次 sendTransaction 超时
	ConfirmTimeout      time.Duration // 默认确认超时

	MaxSubmitAttempts    int           // TransportError 时重发同一 envelope 的最大次数（含首次）
	RetryInitialInterval time.Duration // 重发退避初始间隔
	RetryMaxInterval     time.Duration // 重发退避最大间隔
}

func DefaultOptions() Options {
	return Options{
		PreflightCommitment:  CommitmentConfirmed,
		Commitment:           CommitmentConfirmed,
		PollInterval:         500 * time.Millisecond,
		SubmitTimeout:        10 * time.Second,
		ConfirmTimeout:       60 * time.Second,
		MaxSubmitAttempts:    5,
		RetryInitialInterval: 300 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PreflightCommitment == "" {
		o.PreflightCommitment = d.PreflightCommitment
	}
	if o.Commitment == "" {
		o.Commitment = d.Commitment
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = d.SubmitTimeout
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = d.ConfirmTimeout
	}
	if o.MaxSubmitAttempts <= 0 {
		o.MaxSubmitAttempts = d.MaxSubmitAttempts
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = d.RetryInitialInterval
	}
	if o.RetryMaxInterval <= 0 {
		o.RetryMaxInterval = d.RetryMaxInterval
	}
	return o
}

// Pipeline Built -> Signed -> Submitted -> {Committed | Rejected | TimedOut}。
// 除只读的 Ledger/Journal 外没有共享可变状态，可被多个调用方并发使用。
type Pipeline struct {
	ledger  Ledger
	journal journal.Journal
	opts    Options
}

// NewPipeline j 为 nil 时使用进程内 journal
func NewPipeline(ledger Ledger, j journal.Journal, opts Options) *Pipeline {
	if j == nil {
		j = journal.NewMemoryJournal()
	}
	return &Pipeline{
		ledger:  ledger,
		journal: j,
		opts:    opts.withDefaults(),
	}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

func (p *Pipeline) Ledger() Ledger {
	return p.ledger
}

func (p *Pipeline) Journal() journal.Journal {
	return p.journal
}

// Prepare 本地校验全部通过后才请求最新 blockhash，无效的 batch 不会产生任何网络调用
func (p *Pipeline) Prepare(ctx context.Context, feePayer types.Pubkey, ops ...instruction.Operation) (*Batch, error) {
	if err := ValidateOperations(ops); err != nil {
		return nil, err
	}

	bhCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
	defer cancel()
	blockhash, err := p.ledger.LatestBlockhash(bhCtx)
	if err != nil {
		return nil, asTransport(err, "fetch latest blockhash")
	}
	return NewBatch(feePayer, blockhash, ops...)
}

// Sign 签名并在 journal 中记录 Signed
func (p *Pipeline) Sign(ctx context.Context, b *Batch, authorities ...*Authority) (*Envelope, error) {
	env, err := Sign(b, authorities...)
	if err != nil {
		return nil, err
	}
	st, err := p.journal.State(ctx, env.Signature)
	switch {
	case err != nil:
		logger.Warnf("[Pipeline] journal state failed: sig=%s, err=%v", env.Signature, err)
	case st == journal.StateUnknown:
		p.markState(ctx, env.Signature, journal.StateSigned)
	}
	return env, nil
}

// Submit 发送 envelope，立即返回句柄。
//   - TransportError: 可以重发同一个 envelope
//   - PreflightRejected: 交易本身无效，不要重试
//   - DuplicateIntent: 同一意图已有另一个 envelope 在途或已成功
//
// 原持有者的 blockhash 已失效且节点查不到它时记为 Expired，由当前 envelope 接管意图。
func (p *Pipeline) Submit(ctx context.Context, env *Envelope) (Handle, error) {
	if env.Blockhash != "" {
		if err := p.journal.Track(ctx, env.Signature, env.Blockhash); err != nil {
			return Handle{}, core.Wrap(core.KindTransportError, err, "journal track")
		}
	}
	if err := p.claim(ctx, env); err != nil {
		return Handle{}, err
	}

	st, err := p.journal.State(ctx, env.Signature)
	if err != nil {
		logger.Warnf("[Pipeline] journal state failed: sig=%s, err=%v", env.Signature, err)
	}
	if st == journal.StateCommitted {
		// 已上链的 envelope 再次发送也只是 no-op，不产生新的效果
		logger.Infof("[Pipeline] envelope already committed, skip resend: sig=%s", env.Signature)
		return Handle{Signature: env.Signature, SubmittedAt: time.Now()}, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
	defer cancel()

	start := time.Now()
	sig, err := p.ledger.SendTransaction(sendCtx, env.Tx, p.opts.PreflightCommitment)
	if err != nil {
		if core.KindOf(err) == core.KindPreflightRejected {
			p.markState(ctx, env.Signature, journal.StateRejected)
			logger.Warnf("[Pipeline] preflight rejected: sig=%s, err=%v", env.Signature, err)
			return Handle{}, err
		}
		logger.Warnf("[Pipeline] send failed: sig=%s, cost=%v, err=%v", env.Signature, time.Since(start), err)
		return Handle{}, asTransport(err, "send transaction")
	}
	if sig != "" && sig != env.Signature {
		logger.Warnf("[Pipeline] node returned unexpected signature: want=%s, got=%s", env.Signature, sig)
	}

	p.markState(ctx, env.Signature, journal.StateSubmitted)
	logger.Infof("[Pipeline] submitted: sig=%s, cost=%v", env.Signature, time.Since(start))
	return Handle{Signature: env.Signature, SubmittedAt: time.Now()}, nil
}

func (p *Pipeline) claim(ctx context.Context, env *Envelope) error {
	holder, err := p.journal.Claim(ctx, env.IntentKey, env.Signature)
	if err != nil {
		return core.Wrap(core.KindTransportError, err, "journal claim")
	}
	if holder == env.Signature {
		return nil
	}

	gone, err := p.expire(ctx, holder)
	if err != nil {
		return err
	}
	if gone {
		logger.Infof("[Pipeline] previous envelope expired, taking over intent: old=%s, new=%s", holder, env.Signature)
		if holder, err = p.journal.Claim(ctx, env.IntentKey, env.Signature); err != nil {
			return core.Wrap(core.KindTransportError, err, "journal claim")
		}
		if holder == env.Signature {
			return nil
		}
	}
	return core.Errorf(core.KindDuplicateIntent,
		"intent already owned by envelope %s, refusing to submit %s", holder, env.Signature)
}

// expire 判断尚未确定结果的 envelope 是否已不可能上链：
// 签名用的 blockhash 已失效，且节点（含历史）查不到该签名。成立时记为 Expired。
// 未记录 blockhash 或已处于终态时返回 false。
func (p *Pipeline) expire(ctx context.Context, signature string) (bool, error) {
	st, err := p.journal.State(ctx, signature)
	if err != nil {
		return false, core.Wrap(core.KindTransportError, err, "journal state")
	}
	if st.Terminal() {
		return false, nil
	}
	blockhash, err := p.journal.Blockhash(ctx, signature)
	if err != nil {
		return false, core.Wrap(core.KindTransportError, err, "journal blockhash")
	}
	if blockhash == "" {
		return false, nil
	}

	rpcCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
	defer cancel()

	valid, err := p.ledger.IsBlockhashValid(rpcCtx, blockhash)
	if err != nil {
		return false, asTransport(err, "is blockhash valid")
	}
	if valid {
		return false, nil
	}
	status, err := p.ledger.SignatureStatus(rpcCtx, signature)
	if err != nil {
		return false, asTransport(err, "signature status")
	}
	if status != nil {
		return false, nil
	}

	p.markState(ctx, signature, journal.StateExpired)
	logger.Warnf("[Pipeline] envelope expired without landing: sig=%s, blockhash=%s", signature, blockhash)
	return true, nil
}

// AwaitConfirmation 轮询直到达到 level 或超时。
// 程序执行失败返回 OutcomeRejected 的 Receipt 且 error 为 nil；
// 超时 / 取消返回 OutcomeTimedOut 的 Receipt 和 TimedOut 错误，可用同一个 handle 再次轮询。
func (p *Pipeline) AwaitConfirmation(ctx context.Context, h Handle, level Commitment, timeout time.Duration) (Receipt, error) {
	if level == "" {
		level = p.opts.Commitment
	}
	if timeout <= 0 {
		timeout = p.opts.ConfirmTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		st, err := p.ledger.SignatureStatus(waitCtx, h.Signature)
		if err != nil {
			// 轮询失败不影响结果，继续直到超时
			logger.Warnf("[Pipeline] poll status failed: sig=%s, err=%v", h.Signature, err)
		} else if st != nil && st.Commitment.Reached(level) {
			return p.finish(ctx, h.Signature, st), nil
		}

		select {
		case <-waitCtx.Done():
			p.markState(ctx, h.Signature, journal.StateTimedOut)
			receipt := Receipt{
				Signature:     h.Signature,
				Outcome:       OutcomeTimedOut,
				FailureReason: "not " + string(level) + " within " + timeout.String(),
			}
			if st != nil {
				receipt.Slot = st.Slot
				receipt.Commitment = st.Commitment
			}
			return receipt, core.Wrap(core.KindTimedOut, waitCtx.Err(), "signature %s", h.Signature)
		case <-ticker.C:
		}
	}
}

// CheckStatus 单次查询签名状态，未达到 level 时 done=false
func (p *Pipeline) CheckStatus(ctx context.Context, signature string, level Commitment) (receipt Receipt, done bool, err error) {
	if level == "" {
		level = p.opts.Commitment
	}
	rpcCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
	defer cancel()

	st, err := p.ledger.SignatureStatus(rpcCtx, signature)
	if err != nil {
		return Receipt{}, false, asTransport(err, "signature status")
	}
	if st == nil || !st.Commitment.Reached(level) {
		return Receipt{}, false, nil
	}
	return p.finish(ctx, signature, st), true, nil
}

// Resolve 单次确定在途签名的结果：达到 level 时返回终态 Receipt；
// blockhash 已失效且节点查不到该签名时返回 OutcomeExpired；其余情况 done=false
func (p *Pipeline) Resolve(ctx context.Context, signature string, level Commitment) (receipt Receipt, done bool, err error) {
	receipt, done, err = p.CheckStatus(ctx, signature, level)
	if err != nil || done {
		return receipt, done, err
	}
	gone, err := p.expire(ctx, signature)
	if err != nil || !gone {
		return Receipt{}, false, err
	}
	return Receipt{
		Signature:     signature,
		Outcome:       OutcomeExpired,
		FailureReason: "blockhash expired before the transaction landed",
	}, true, nil
}

func (p *Pipeline) finish(ctx context.Context, signature string, st *TxStatus) Receipt {
	receipt := Receipt{
		Signature:  signature,
		Slot:       st.Slot,
		Commitment: st.Commitment,
	}
	if st.Err != nil {
		receipt.Outcome = OutcomeRejected
		receipt.FailureReason = formatProgramError(st.Err)
		p.markState(ctx, signature, journal.StateRejected)
		logger.Warnf("[Pipeline] program rejected: sig=%s, slot=%d, reason=%s", signature, st.Slot, receipt.FailureReason)
		return receipt
	}

	receipt.Outcome = OutcomeCommitted
	receipt.Success = true
	p.markState(ctx, signature, journal.StateCommitted)
	logger.Infof("[Pipeline] committed: sig=%s, slot=%d, commitment=%s", signature, st.Slot, st.Commitment)
	return receipt
}

// SubmitAndConfirm TransportError 时以指数退避重发同一个 envelope，然后等待确认
func (p *Pipeline) SubmitAndConfirm(ctx context.Context, env *Envelope, level Commitment, timeout time.Duration) (Receipt, error) {
	var (
		handle  Handle
		attempt int
	)
	operation := func() error {
		attempt++
		h, err := p.Submit(ctx, env)
		if err == nil {
			handle = h
			return nil
		}
		if core.Retriable(err) {
			logger.Warnf("[Pipeline] 第 %d 次提交失败，将重发同一 envelope: sig=%s, err=%v", attempt, env.Signature, err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, p.newBackOff(ctx)); err != nil {
		// 重试期间 ctx 被取消时 backoff 直接返回 ctx.Err()
		return Receipt{}, asTransport(err, "submit")
	}
	return p.AwaitConfirmation(ctx, handle, level, timeout)
}

func (p *Pipeline) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.RetryInitialInterval
	eb.MaxInterval = p.opts.RetryMaxInterval
	eb.MaxElapsedTime = 0 // 次数由 WithMaxRetries 控制
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.opts.MaxSubmitAttempts-1)), ctx)
}

func (p *Pipeline) MinimumRentExemptBalance(ctx context.Context, size uint64) (uint64, error) {
	rpcCtx, cancel := context.WithTimeout(ctx, p.opts.SubmitTimeout)
	defer cancel()
	return p.ledger.MinimumRentExemptBalance(rpcCtx, size)
}

func (p *Pipeline) markState(ctx context.Context, signature string, state journal.State) {
	if err := p.journal.MarkState(ctx, signature, state); err != nil {
		logger.Warnf("[Pipeline] journal mark %s failed: sig=%s, err=%v", state, signature, err)
	}
}

// asTransport 未分类的错误（包括 ctx 超时）一律视为传输错误
func asTransport(err error, what string) error {
	if core.KindOf(err) != core.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.Wrap(core.KindTransportError, err, "%s: cancelled", what)
	}
	return core.Wrap(core.KindTransportError, err, "%s", what)
}
