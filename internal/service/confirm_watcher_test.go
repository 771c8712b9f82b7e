package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/logic/instruction"
	"registry-client-sol/internal/logic/journal"
	"registry-client-sol/internal/logic/submit"
	"registry-client-sol/internal/logic/submit/submittest"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.ReceiptEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev *domain.ReceiptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// submitWithoutConfirm 发送后不等待确认，交易留在 journal 的 pending 集合中
func submitWithoutConfirm(t *testing.T, p *submit.Pipeline, model string) string {
	t.Helper()
	auth, err := submit.AuthorityFromSeed(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)

	op, err := instruction.BuildRegister(instruction.RegisterParams{
		Program:   consts.DefaultRegistryProgram,
		Authority: auth.Pubkey(),
		Model:     model,
	})
	require.NoError(t, err)

	ctx := context.Background()
	batch, err := p.Prepare(ctx, auth.Pubkey(), op)
	require.NoError(t, err)
	env, err := p.Sign(ctx, batch, auth)
	require.NoError(t, err)
	_, err = p.Submit(ctx, env)
	require.NoError(t, err)
	return env.Signature
}

func TestConfirmWatcher_Tick(t *testing.T) {
	ledger := submittest.NewFakeLedger()
	ledger.PollsUntilFinal = 1
	j := journal.NewMemoryJournal()
	p := submit.NewPipeline(ledger, j, submit.Options{})
	pub := &recordingPublisher{}
	w := NewConfirmWatcher(p, pub, consts.DefaultRegistryProgram, time.Millisecond, 0)

	sig1 := submitWithoutConfirm(t, p, "m1")
	sig2 := submitWithoutConfirm(t, p, "m2")

	pending, err := j.Pending(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{sig1, sig2}, pending)

	// 第一轮节点尚未看到交易
	n, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, pub.count())

	n, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Equal(t, 2, pub.count())
	for _, ev := range pub.events {
		assert.True(t, ev.Success)
		assert.Equal(t, consts.DefaultRegistryProgram, ev.Program)
	}

	pending, err = j.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	st, err := j.State(context.Background(), sig1)
	require.NoError(t, err)
	assert.Equal(t, journal.StateCommitted, st)
}

func TestConfirmWatcher_BatchSize(t *testing.T) {
	ledger := submittest.NewFakeLedger()
	p := submit.NewPipeline(ledger, nil, submit.Options{})
	w := NewConfirmWatcher(p, nil, consts.DefaultRegistryProgram, time.Millisecond, 1)

	submitWithoutConfirm(t, p, "m1")
	submitWithoutConfirm(t, p, "m2")

	n, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConfirmWatcher_StartStop(t *testing.T) {
	ledger := submittest.NewFakeLedger()
	p := submit.NewPipeline(ledger, nil, submit.Options{})
	pub := &recordingPublisher{}
	w := NewConfirmWatcher(p, pub, consts.DefaultRegistryProgram, 5*time.Millisecond, 0)

	submitWithoutConfirm(t, p, "m1")

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

// 无法确定结果的交易不会让排在后面的交易一直得不到轮询
func TestConfirmWatcher_RotatesPastUnresolved(t *testing.T) {
	ctx := context.Background()
	ledger := submittest.NewFakeLedger()
	j := journal.NewMemoryJournal()
	p := submit.NewPipeline(ledger, j, submit.Options{})
	pub := &recordingPublisher{}
	w := NewConfirmWatcher(p, pub, consts.DefaultRegistryProgram, time.Millisecond, 3)

	// 节点不认识、也没有记录 blockhash 的历史条目
	for _, sig := range []string{"1111dead", "1112dead", "1113dead"} {
		require.NoError(t, j.MarkState(ctx, sig, journal.StateTimedOut))
	}
	live := submitWithoutConfirm(t, p, "m1")

	total := 0
	for i := 0; i < 2; i++ {
		n, err := w.Tick(ctx)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 1, total)

	st, err := j.State(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, journal.StateCommitted, st)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, live, pub.events[0].Signature)
}

func TestConfirmWatcher_ExpiresDroppedTransaction(t *testing.T) {
	ctx := context.Background()
	ledger := submittest.NewFakeLedger()
	ledger.Drop = true
	j := journal.NewMemoryJournal()
	p := submit.NewPipeline(ledger, j, submit.Options{})
	pub := &recordingPublisher{}
	w := NewConfirmWatcher(p, pub, consts.DefaultRegistryProgram, time.Millisecond, 0)

	sig := submitWithoutConfirm(t, p, "m1")

	// blockhash 仍然有效，继续等待
	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	ledger.Expire("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, 1, pub.count())
	assert.Equal(t, submit.OutcomeExpired.String(), pub.events[0].Outcome)
	assert.False(t, pub.events[0].Success)

	st, err := j.State(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, journal.StateExpired, st)

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConfirmWatcher_NextBatchWraps(t *testing.T) {
	p := submit.NewPipeline(submittest.NewFakeLedger(), nil, submit.Options{})
	w := NewConfirmWatcher(p, nil, consts.DefaultRegistryProgram, time.Millisecond, 2)

	all := []string{"d", "a", "c", "b"}
	assert.Equal(t, []string{"a", "b"}, w.nextBatch(append([]string(nil), all...)))
	assert.Equal(t, []string{"c", "d"}, w.nextBatch(append([]string(nil), all...)))
	assert.Equal(t, []string{"a", "b"}, w.nextBatch(append([]string(nil), all...)))

	// "b" 已不在列表中时从下一个更大的签名继续
	assert.Equal(t, []string{"c", "d"}, w.nextBatch([]string{"a", "c", "d"}))
	assert.Equal(t, []string{"a", "c"}, w.nextBatch([]string{"a", "c", "d"}))
}
