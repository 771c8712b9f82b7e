package registry_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/codec"
	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/domain"
	"registry-client-sol/internal/logic/registry"
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

func newClient(t *testing.T) (*registry.Client, *submittest.FakeLedger, *recordingPublisher, *submit.Authority) {
	t.Helper()
	ledger := submittest.NewFakeLedger()
	p := submit.NewPipeline(ledger, nil, submit.Options{
		PollInterval:         5 * time.Millisecond,
		ConfirmTimeout:       time.Second,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	})
	pub := &recordingPublisher{}
	auth, err := submit.AuthorityFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return registry.NewClient(p, consts.DefaultRegistryProgram, pub), ledger, pub, auth
}

func TestClient_Initialize(t *testing.T) {
	c, ledger, pub, auth := newClient(t)

	res, err := c.Initialize(context.Background(), auth, "m0")
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeCommitted, res.Receipt.Outcome)

	root, err := c.Deriver().StorageRoot(auth.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, root, res.Address)

	tx, ok := ledger.LandedTx(res.Envelope.Signature)
	require.True(t, ok)
	require.Len(t, tx.Message.Instructions, 1)
	ix := tx.Message.Instructions[0]

	payload, err := codec.Decode(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.InitializePayload{Model: "m0"}, payload)
	require.Len(t, ix.Accounts, 3)
	assert.Equal(t, auth.Pubkey().ToCommon(), tx.Message.Accounts[ix.Accounts[0]])
	assert.Equal(t, root.Pubkey.ToCommon(), tx.Message.Accounts[ix.Accounts[1]])
	assert.Equal(t, consts.SystemProgram.ToCommon(), tx.Message.Accounts[ix.Accounts[2]])

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, domain.OperationInitialize, ev.Operation)
	assert.Equal(t, auth.Pubkey(), ev.Owner)
	assert.Equal(t, res.Envelope.Signature, ev.Signature)
	assert.True(t, ev.Success)
	assert.Equal(t, "Committed", ev.Outcome)
}

func TestClient_Register(t *testing.T) {
	c, ledger, pub, auth := newClient(t)

	res, err := c.Register(context.Background(), auth, "m1")
	require.NoError(t, err)
	assert.True(t, res.Receipt.Success)

	entry, err := c.Deriver().Entry("m1", auth.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, entry, res.Address)

	tx, ok := ledger.LandedTx(res.Envelope.Signature)
	require.True(t, ok)
	ix := tx.Message.Instructions[0]

	payload, err := codec.Decode(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.VariantRegister, payload.Variant())
	assert.Equal(t, "m1", codec.ModelOf(payload))

	require.Len(t, ix.Accounts, 4)
	assert.Equal(t, entry.Pubkey.ToCommon(), tx.Message.Accounts[ix.Accounts[2]])

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.OperationRegister, pub.events[0].Operation)
	assert.Equal(t, "m1", pub.events[0].Model)
}

func TestClient_RegisterRejectedLocally(t *testing.T) {
	c, ledger, pub, auth := newClient(t)

	_, err := c.Register(context.Background(), auth, "")
	assert.ErrorIs(t, err, core.ErrInvalidModel)

	_, err = c.Register(context.Background(), auth, strings.Repeat("x", 33))
	assert.ErrorIs(t, err, core.ErrSeedTooLong)

	bh, send, status := ledger.Calls()
	assert.Zero(t, bh+send+status)
	assert.Empty(t, pub.events)
}

func TestClient_ProgramRejection(t *testing.T) {
	c, ledger, pub, auth := newClient(t)
	ledger.ProgramErr = map[string]any{"InstructionError": []any{0, "InvalidAccountData"}}

	res, err := c.Register(context.Background(), auth, "m1")
	require.NoError(t, err)
	assert.Equal(t, submit.OutcomeRejected, res.Receipt.Outcome)

	require.Len(t, pub.events, 1)
	assert.False(t, pub.events[0].Success)
	assert.Contains(t, pub.events[0].FailureReason, "InvalidAccountData")
}

func TestClient_FetchEntry(t *testing.T) {
	c, ledger, _, auth := newClient(t)
	ctx := context.Background()

	_, err := c.FetchEntry(ctx, auth.Pubkey(), "m1")
	assert.ErrorIs(t, err, registry.ErrAccountNotFound)

	root, err := c.Deriver().StorageRoot(auth.Pubkey())
	require.NoError(t, err)
	addr, err := c.Deriver().Entry("m1", auth.Pubkey())
	require.NoError(t, err)

	want := registry.Entry{Storage: root.Pubkey, Owner: auth.Pubkey(), Model: "m1"}
	data, err := borsh.Serialize(want)
	require.NoError(t, err)
	// 账户预分配的空间比内容长
	ledger.Accounts[addr.Pubkey] = append(data, make([]byte, 16)...)

	got, err := c.FetchEntry(ctx, auth.Pubkey(), "m1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	ledger.Accounts[addr.Pubkey] = data[:len(data)-1]
	_, err = c.FetchEntry(ctx, auth.Pubkey(), "m1")
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestClient_FetchStorage(t *testing.T) {
	c, ledger, _, auth := newClient(t)
	ctx := context.Background()

	root, err := c.Deriver().StorageRoot(auth.Pubkey())
	require.NoError(t, err)

	want := registry.Storage{
		Authority: auth.Pubkey(),
		Bump:      root.Bump,
		Entries: []registry.Entry{
			{Storage: root.Pubkey, Owner: auth.Pubkey(), Model: "m1"},
			{Storage: root.Pubkey, Owner: auth.Pubkey(), Model: "gtx-4090"},
		},
	}
	data, err := borsh.Serialize(want)
	require.NoError(t, err)
	ledger.Accounts[root.Pubkey] = data

	got, err := c.FetchStorage(ctx, auth.Pubkey())
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	// entries 数量与数据长度不符
	bad := append([]byte(nil), data...)
	bad[33] = 0xff
	ledger.Accounts[root.Pubkey] = bad
	_, err = c.FetchStorage(ctx, auth.Pubkey())
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestClient_EntryRent(t *testing.T) {
	c, ledger, _, _ := newClient(t)

	lamports, err := c.EntryRent(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, (128+uint64(consts.EntryAccountSpace)+2)*ledger.RentPerByte, lamports)
	assert.Equal(t, uint64(consts.EntryAccountSpace+2), registry.EntryAccountSize("m1"))
	assert.Equal(t, uint64(consts.StorageBaseSpace+2*(consts.StorageEntrySpace+2)), registry.StorageAccountSize(2, "m1"))
}
