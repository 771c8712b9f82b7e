package service

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/logic/registry"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/types"
	"registry-client-sol/pkg/logger"
)

const (
	defaultWatchInterval  = 2 * time.Second
	defaultWatchBatchSize = 256
)

// ConfirmWatcher 周期性重新轮询 journal 中仍未确定结果（Submitted / TimedOut）的交易，
// 进入终态（含 blockhash 失效的 Expired）后更新 journal 并发布回执。实现 go-zero service.Service。
// 在途交易多于 batchSize 时按签名顺序轮转，每轮从上一轮结束的位置继续。
type ConfirmWatcher struct {
	pipeline  *submit.Pipeline
	publisher registry.Publisher
	program   types.Pubkey
	level     submit.Commitment
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	cursor string // 上一轮处理的最后一个签名

	ctx    context.Context
	cancel context.CancelFunc
}

func NewConfirmWatcher(
	pipeline *submit.Pipeline,
	publisher registry.Publisher,
	program types.Pubkey,
	interval time.Duration,
	batchSize int,
) *ConfirmWatcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if batchSize <= 0 {
		batchSize = defaultWatchBatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConfirmWatcher{
		pipeline:  pipeline,
		publisher: publisher,
		program:   program,
		level:     pipeline.Options().Commitment,
		interval:  interval,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 阻塞运行直到 Stop
func (w *ConfirmWatcher) Start() {
	logger.Infof("[ConfirmWatcher] started: interval=%v, level=%s", w.interval, w.level)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			logger.Infof("[ConfirmWatcher] stopped")
			return
		case <-ticker.C:
			w.safeTick()
		}
	}
}

func (w *ConfirmWatcher) Stop() {
	w.cancel()
}

func (w *ConfirmWatcher) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[ConfirmWatcher] panic: %v\nstack: %s", r, debug.Stack())
		}
	}()
	if _, err := w.Tick(w.ctx); err != nil {
		logger.Warnf("[ConfirmWatcher] tick failed: %v", err)
	}
}

// Tick 处理一轮，返回本轮进入终态的交易数
func (w *ConfirmWatcher) Tick(ctx context.Context) (int, error) {
	pending, err := w.pipeline.Journal().Pending(ctx)
	if err != nil {
		return 0, err
	}
	pending = w.nextBatch(pending)

	resolved := 0
	for _, sig := range pending {
		select {
		case <-ctx.Done():
			return resolved, ctx.Err()
		default:
		}

		receipt, done, err := w.pipeline.Resolve(ctx, sig, w.level)
		if err != nil {
			logger.Warnf("[ConfirmWatcher] resolve failed: sig=%s, err=%v", sig, err)
			continue
		}
		if !done {
			continue
		}

		resolved++
		logger.Infof("[ConfirmWatcher] resolved: sig=%s, %s", sig, receipt.Reason())
		w.publish(ctx, receipt)
	}
	return resolved, nil
}

// nextBatch 从 cursor 之后取 batchSize 个签名，到末尾后回到开头
func (w *ConfirmWatcher) nextBatch(pending []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(pending) <= w.batchSize {
		w.cursor = ""
		return pending
	}

	sort.Strings(pending)
	start := sort.Search(len(pending), func(i int) bool { return pending[i] > w.cursor })
	batch := make([]string, 0, w.batchSize)
	for i := 0; i < w.batchSize; i++ {
		batch = append(batch, pending[(start+i)%len(pending)])
	}
	w.cursor = batch[len(batch)-1]
	return batch
}

func (w *ConfirmWatcher) publish(ctx context.Context, receipt submit.Receipt) {
	if w.publisher == nil {
		return
	}
	ev := registry.NewReceiptEvent(domain.OperationUnknown, w.program, types.Pubkey{}, "", receipt)
	if err := w.publisher.Publish(ctx, ev); err != nil {
		logger.Warnf("[ConfirmWatcher] publish receipt failed: sig=%s, err=%v", receipt.Signature, err)
	}
}
