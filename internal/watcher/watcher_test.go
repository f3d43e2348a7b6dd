package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orca-network/explorer/internal/logging"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/realtime"
	"github.com/orca-network/explorer/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []*realtime.Event
}

func (r *recorder) Broadcast(e *realtime.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []*realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*realtime.Event(nil), r.events...)
}

func (r *recorder) ofType(t realtime.EventType) []*realtime.Event {
	var out []*realtime.Event
	for _, e := range r.snapshot() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var owner = common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")

func newTestWatcher(nodes ...*testutil.FakeChain) (*Watcher, *recorder) {
	rec := &recorder{}
	w := New(testutil.NewProvider(nodes...), rec, Config{PollInterval: time.Hour}, logging.Discard())
	w.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	return w, rec
}

func TestWatcher_PrimesAtHead(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.Register(1, owner, "ipfs://old", 10)
	w, rec := newTestWatcher(node)
	cfg := node.Config

	require.NoError(t, w.poll(context.Background(), cfg))

	cursor, ok := w.Cursor(cfg.ChainID)
	require.True(t, ok)
	assert.Equal(t, uint64(10), cursor)
	assert.Empty(t, rec.snapshot(), "history before the first head is not replayed")
}

func TestWatcher_PublishesNewActivity(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.SetHead(10)
	w, rec := newTestWatcher(node)
	cfg := node.Config
	ctx := context.Background()

	require.NoError(t, w.poll(ctx, cfg))

	reg := node.Register(7, owner, "ipfs://agent7", 11)
	node.Activity(cfg.ReputationRegistry, 12)
	node.Activity(cfg.ValidationRegistry, 12)

	require.NoError(t, w.poll(ctx, cfg))

	txs := rec.ofType(realtime.EventTransaction)
	require.Len(t, txs, 3)
	assert.Equal(t, "identity", txs[0].Registry)
	assert.Equal(t, "reputation", txs[1].Registry)
	assert.Equal(t, "validation", txs[2].Registry)
	for _, e := range txs {
		assert.Equal(t, "testnet", e.Network)
	}

	regs := rec.ofType(realtime.EventRegistration)
	require.Len(t, regs, 1)
	assert.Equal(t, "7", regs[0].AgentID)
	payload, ok := regs[0].Data.(realtime.Registration)
	require.True(t, ok)
	assert.Equal(t, "ipfs://agent7", payload.TokenURI)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", payload.Owner)
	assert.Equal(t, uint64(11), payload.Block)
	assert.Equal(t, reg.TxHash.Hex(), payload.TxHash)

	cursor, _ := w.Cursor(cfg.ChainID)
	assert.Equal(t, uint64(12), cursor)
}

func TestWatcher_NeverRepublishesRange(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.SetHead(1)
	w, rec := newTestWatcher(node)
	cfg := node.Config
	ctx := context.Background()

	require.NoError(t, w.poll(ctx, cfg))
	node.Register(1, owner, "a", 2)
	require.NoError(t, w.poll(ctx, cfg))
	require.NoError(t, w.poll(ctx, cfg))

	assert.Len(t, rec.ofType(realtime.EventRegistration), 1)
	assert.Len(t, rec.ofType(realtime.EventTransaction), 1)
}

func TestWatcher_FailedReadKeepsCursor(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.SetHead(5)
	w, rec := newTestWatcher(node)
	cfg := node.Config
	ctx := context.Background()

	require.NoError(t, w.poll(ctx, cfg))
	node.Register(3, owner, "x", 6)
	node.FailLogs(cfg.IdentityRegistry, testutil.ErrNodeDown)

	assert.Error(t, w.poll(ctx, cfg))
	cursor, _ := w.Cursor(cfg.ChainID)
	assert.Equal(t, uint64(5), cursor)
	assert.Empty(t, rec.snapshot())

	node.FailLogs(cfg.IdentityRegistry, nil)
	require.NoError(t, w.poll(ctx, cfg))
	assert.Len(t, rec.ofType(realtime.EventRegistration), 1)
}

func TestWatcher_ChunkedRange(t *testing.T) {
	cfg := network.TestnetDefaults()
	cfg.LogChunkSize = 2
	node := testutil.NewFakeChain(cfg)
	node.SetHead(0)
	w, rec := newTestWatcher(node)
	ctx := context.Background()

	require.NoError(t, w.poll(ctx, cfg))
	node.Register(1, owner, "a", 1)
	node.Register(2, owner, "b", 4)
	node.Register(3, owner, "c", 5)
	require.NoError(t, w.poll(ctx, cfg))

	regs := rec.ofType(realtime.EventRegistration)
	require.Len(t, regs, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{regs[0].AgentID, regs[1].AgentID, regs[2].AgentID})
	assert.Greater(t, len(node.Queries()), 1)
}

func TestWatcher_NetworksAreIndependent(t *testing.T) {
	testnet := testutil.NewFakeChain(network.TestnetDefaults())
	ganache := testutil.NewFakeChain(network.GanacheDefaults())
	w, rec := newTestWatcher(testnet, ganache)
	ctx := context.Background()

	testnet.FailHead(testutil.ErrNodeDown)
	w.pollAll(ctx)
	_, ok := w.Cursor(testnet.Config.ChainID)
	assert.False(t, ok)
	_, ok = w.Cursor(ganache.Config.ChainID)
	assert.True(t, ok)

	ganache.Register(9, owner, "g", 3)
	w.pollAll(ctx)

	regs := rec.ofType(realtime.EventRegistration)
	require.Len(t, regs, 1)
	assert.Equal(t, "ganache", regs[0].Network)
}

func TestWatcher_StartStop(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.SetHead(42)
	rec := &recorder{}
	w := New(testutil.NewProvider(node), rec, Config{PollInterval: 10 * time.Millisecond}, logging.Discard())

	w.Start(context.Background())
	assert.Eventually(t, func() bool {
		cursor, ok := w.Cursor(node.Config.ChainID)
		return ok && cursor == 42
	}, 2*time.Second, 5*time.Millisecond)

	node.Register(1, owner, "live", 43)
	assert.Eventually(t, func() bool {
		return len(rec.ofType(realtime.EventRegistration)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_StartDoesNotWaitForSlowNode(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	node.StallHead(time.Hour)
	w := New(testutil.NewProvider(node), &recorder{}, Config{PollInterval: time.Hour}, logging.Discard())

	started := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Start blocked on the head read")
	}

	_, ok := w.Cursor(node.Config.ChainID)
	assert.False(t, ok)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not abort the head read")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	node := testutil.NewFakeChain(network.TestnetDefaults())
	w := New(testutil.NewProvider(node), &recorder{}, Config{}, logging.Discard())
	w.Stop()
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, 15*time.Second, DefaultConfig().PollInterval)
	node := testutil.NewFakeChain(network.TestnetDefaults())
	w := New(testutil.NewProvider(node), &recorder{}, Config{}, logging.Discard())
	assert.Equal(t, 15*time.Second, w.config.PollInterval)
}
