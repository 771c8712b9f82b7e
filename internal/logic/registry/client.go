package registry

import (
	"context"
	"errors"
	"time"

	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/logic/instruction"
	"registry-client-sol/internal/logic/pda"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/types"
	"registry-client-sol/pkg/logger"
)

var ErrAccountNotFound = errors.New("account not found")

// Publisher 交易进入终态后发布回执事件，发布失败不影响交易结果
type Publisher interface {
	Publish(ctx context.Context, ev *domain.ReceiptEvent) error
}

// Result 一次 Initialize / Register 的结果
type Result struct {
	Address  pda.Address // Initialize 为 storagePool，Register 为 Entry
	Envelope *submit.Envelope
	Receipt  submit.Receipt
}

// Client registry 程序的高层客户端：build -> prepare -> sign -> submit -> await -> publish
type Client struct {
	pipeline  *submit.Pipeline
	deriver   pda.Deriver
	publisher Publisher
}

// NewClient publisher 可以为 nil
func NewClient(pipeline *submit.Pipeline, program types.Pubkey, publisher Publisher) *Client {
	return &Client{
		pipeline:  pipeline,
		deriver:   pda.NewDeriver(program),
		publisher: publisher,
	}
}

func (c *Client) Program() types.Pubkey {
	return c.deriver.Program()
}

func (c *Client) Deriver() pda.Deriver {
	return c.deriver
}

// Initialize 创建 authority 名下的 storagePool 根账户
func (c *Client) Initialize(ctx context.Context, authority *submit.Authority, model string) (*Result, error) {
	owner := authority.Pubkey()
	root, err := c.deriver.StorageRoot(owner)
	if err != nil {
		return nil, err
	}
	op, err := instruction.BuildInitialize(instruction.InitializeParams{
		Program:   c.deriver.Program(),
		Authority: owner,
		Model:     model,
	})
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, domain.OperationInitialize, authority, model, root, op)
}

// Register 在 authority 的 storagePool 下写入一条 model
func (c *Client) Register(ctx context.Context, authority *submit.Authority, model string) (*Result, error) {
	owner := authority.Pubkey()
	op, err := instruction.BuildRegister(instruction.RegisterParams{
		Program:   c.deriver.Program(),
		Authority: owner,
		Model:     model,
		EntryKey:  model,
	})
	if err != nil {
		return nil, err
	}
	entry, err := c.deriver.Entry(model, owner)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, domain.OperationRegister, authority, model, entry, op)
}

func (c *Client) execute(
	ctx context.Context,
	kind domain.Operation,
	authority *submit.Authority,
	model string,
	addr pda.Address,
	op instruction.Operation,
) (*Result, error) {
	start := time.Now()

	batch, err := c.pipeline.Prepare(ctx, authority.Pubkey(), op)
	if err != nil {
		return nil, err
	}
	env, err := c.pipeline.Sign(ctx, batch, authority)
	if err != nil {
		return nil, err
	}

	opts := c.pipeline.Options()
	receipt, err := c.pipeline.SubmitAndConfirm(ctx, env, opts.Commitment, opts.ConfirmTimeout)
	res := &Result{Address: addr, Envelope: env, Receipt: receipt}
	if err != nil {
		if core.KindOf(err) == core.KindTimedOut {
			// 结果未知，交给 ConfirmWatcher 继续轮询
			logger.Warnf("[Registry] %s 等待确认超时: sig=%s, model=%s", kind, env.Signature, model)
			return res, err
		}
		logger.Errorf("[Registry] %s 提交失败: sig=%s, model=%s, err=%v", kind, env.Signature, model, err)
		return nil, err
	}

	logger.Infof("[Registry] %s 完成: sig=%s, address=%s, %s, cost=%v",
		kind, env.Signature, addr.Pubkey, receipt.Reason(), time.Since(start))
	c.publish(ctx, NewReceiptEvent(kind, c.deriver.Program(), authority.Pubkey(), model, receipt))
	return res, nil
}

func (c *Client) publish(ctx context.Context, ev *domain.ReceiptEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		logger.Warnf("[Registry] publish receipt failed: sig=%s, err=%v", ev.Signature, err)
	}
}

// FetchEntry 读取 ["Entry", key, owner] 账户并解码
func (c *Client) FetchEntry(ctx context.Context, owner types.Pubkey, key string) (*Entry, error) {
	addr, err := c.deriver.Entry(key, owner)
	if err != nil {
		return nil, err
	}
	data, err := c.pipeline.Ledger().AccountData(ctx, addr.Pubkey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrAccountNotFound
	}
	return DecodeEntry(data)
}

// FetchStorage 读取 owner 的 storagePool 根账户
func (c *Client) FetchStorage(ctx context.Context, owner types.Pubkey) (*Storage, error) {
	root, err := c.deriver.StorageRoot(owner)
	if err != nil {
		return nil, err
	}
	data, err := c.pipeline.Ledger().AccountData(ctx, root.Pubkey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrAccountNotFound
	}
	return DecodeStorage(data)
}

// EntryRent 存放 model 的 Entry 账户免租所需的 lamports
func (c *Client) EntryRent(ctx context.Context, model string) (uint64, error) {
	return c.pipeline.MinimumRentExemptBalance(ctx, EntryAccountSize(model))
}

// NewReceiptEvent EventID 与 Timestamp 由发布方填充
func NewReceiptEvent(kind domain.Operation, program, owner types.Pubkey, model string, r submit.Receipt) *domain.ReceiptEvent {
	return &domain.ReceiptEvent{
		Operation:     kind,
		Program:       program,
		Owner:         owner,
		Model:         model,
		Signature:     r.Signature,
		Slot:          r.Slot,
		Commitment:    string(r.Commitment),
		Outcome:       r.Outcome.String(),
		Success:       r.Success,
		FailureReason: r.FailureReason,
	}
}
