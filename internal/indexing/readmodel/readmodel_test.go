package readmodel

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/indexing/anomaly"
	"github.com/vietddude/dappwatch/internal/infra/chain"
)

var (
	alice = domain.NormalizeAddress("0x00000000000000000000000000000000000000a1")
	bob   = domain.NormalizeAddress("0x00000000000000000000000000000000000000b0")
	addrs = contracts.Addresses{
		Jobs:    domain.NormalizeAddress("0x0000000000000000000000000000000000000001"),
		Bank:    domain.NormalizeAddress("0x0000000000000000000000000000000000000002"),
		Storage: domain.NormalizeAddress("0x0000000000000000000000000000000000000003"),
	}
)

// =============================================================================
// Fake chain
// =============================================================================

type fakeChain struct {
	mu      sync.Mutex
	logs    map[string][]chain.RawLog
	reads   map[string]any
	head    uint64
	queries []chain.LogQuery

	LogsFunc func(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error)
	ReadErr  error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		logs:  make(map[string][]chain.RawLog),
		reads: make(map[string]any),
		head:  20,
	}
}

func (c *fakeChain) Logs(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
	c.mu.Lock()
	c.queries = append(c.queries, q)
	fn := c.LogsFunc
	logs := c.logs[q.Event.Name]
	c.mu.Unlock()
	if fn != nil {
		return fn(ctx, q)
	}
	return logs, nil
}

func (c *fakeChain) Read(ctx context.Context, req chain.ReadRequest) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return nil, c.ReadErr
	}
	key := req.Method.Name
	if len(req.Args) > 0 {
		key += "|" + req.Args[0].(string)
	}
	return c.reads[key], nil
}

func (c *fakeChain) LatestBlock(ctx context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeChain) seed() {
	c.logs[contracts.EventJobAdded.Name] = []chain.RawLog{
		{Args: map[string]any{"author": alice.String(), "description": "paint", "price": big.NewInt(10), "id": big.NewInt(1)}, BlockNumber: 3, LogIndex: 0, TxHash: "0x1"},
	}
	c.logs[contracts.EventJobTaken.Name] = []chain.RawLog{
		{Args: map[string]any{"worker": bob.String(), "id": big.NewInt(1)}, BlockNumber: 5, LogIndex: 0, TxHash: "0x2"},
	}
	c.logs[contracts.EventDeposited.Name] = []chain.RawLog{
		{Args: map[string]any{"account": alice.String(), "amount": big.NewInt(100)}, BlockNumber: 4, LogIndex: 0, TxHash: "0x3"},
	}
	c.reads[contracts.FnBalanceOf.Name+"|"+alice.String()] = big.NewInt(100)
	c.reads[contracts.FnGetNumber.Name] = big.NewInt(42)
}

func newModel(c *fakeChain, reporter anomaly.Reporter) *ReadModel {
	return New(c, c, c, reporter, Config{Contracts: addrs, Accounts: []domain.Address{alice}})
}

// =============================================================================
// Tests
// =============================================================================

func TestReadModel_EmptyBeforeRefresh(t *testing.T) {
	m := newModel(newFakeChain(), nil)
	snap := m.Get()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(0), snap.Generation)
	assert.Empty(t, snap.Projection.Jobs)
}

func TestReadModel_RefreshCommits(t *testing.T) {
	c := newFakeChain()
	c.seed()
	m := newModel(c, nil)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, m.Get())
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, uint64(20), snap.Head)

	job, ok := snap.Projection.Job("1")
	require.True(t, ok)
	assert.Equal(t, domain.JobStateTaken, job.State)
	assert.Equal(t, bob, job.Worker)

	bal, ok := snap.Balance(alice)
	require.True(t, ok)
	assert.Equal(t, int64(100), bal.Int64())
	assert.Equal(t, int64(42), snap.Counter.Int64())
	assert.Len(t, snap.Projection.LedgerFor(alice), 1)

	// Every kind is read against the same pinned head.
	for _, q := range c.queries {
		require.NotNil(t, q.ToBlock)
		assert.Equal(t, uint64(20), *q.ToBlock)
	}
	assert.Len(t, c.queries, 6)
}

func TestReadModel_FailureKeepsPrevious(t *testing.T) {
	c := newFakeChain()
	c.seed()
	m := newModel(c, nil)

	first, err := m.Refresh(context.Background())
	require.NoError(t, err)

	boom := errors.New("node down")
	c.mu.Lock()
	c.LogsFunc = func(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
		if q.Event.Name == contracts.EventWithdrawn.Name {
			return nil, boom
		}
		return nil, nil
	}
	c.mu.Unlock()

	_, err = m.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Same(t, first, m.Get())

	st := m.Status()
	assert.Equal(t, uint64(1), st.Generation)
	assert.Equal(t, uint64(1), st.Failed)
	assert.Contains(t, st.LastError, "node down")
	assert.False(t, st.InFlight)
}

func TestReadModel_ReadFailureFailsWhole(t *testing.T) {
	c := newFakeChain()
	c.seed()
	c.ReadErr = errors.New("call failed")
	m := newModel(c, nil)

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(0), m.Get().Generation)
}

func TestReadModel_ConcurrentRefreshesCoalesce(t *testing.T) {
	c := newFakeChain()
	c.seed()
	m := newModel(c, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	var builds atomic.Int32
	c.LogsFunc = func(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
		if q.Event.Name == contracts.EventJobAdded.Name {
			builds.Add(1)
		}
		once.Do(func() { close(started) })
		<-release
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.logs[q.Event.Name], nil
	}

	type result struct {
		snap *Snapshot
		err  error
	}
	first := make(chan result, 1)
	go func() {
		snap, err := m.Refresh(context.Background())
		first <- result{snap, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never started")
	}

	const callers = 20
	results := make([]result, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := m.Refresh(context.Background())
			results[i] = result{snap, err}
		}()
	}
	require.Eventually(t, func() bool {
		return m.Status().Coalesced == callers-1
	}, 2*time.Second, time.Millisecond)
	assert.True(t, m.Status().InFlight)

	close(release)
	wg.Wait()

	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, uint64(1), r.snap.Generation)

	for _, res := range results {
		require.NoError(t, res.err)
		assert.Equal(t, uint64(2), res.snap.Generation)
		assert.Same(t, results[0].snap, res.snap)
	}
	assert.Same(t, results[0].snap, m.Get())
	assert.Equal(t, int32(2), builds.Load())
	assert.Equal(t, uint64(2), m.Status().Committed)
}

func TestReadModel_WaitingCallerHonoursContext(t *testing.T) {
	c := newFakeChain()
	c.seed()
	m := newModel(c, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	c.LogsFunc = func(ctx context.Context, q chain.LogQuery) ([]chain.RawLog, error) {
		once.Do(func() { close(started) })
		<-release
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.logs[q.Event.Name], nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	// The abandoned queued build still runs for the next caller.
	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestReadModel_ReportsNewAnomaliesOnce(t *testing.T) {
	c := newFakeChain()
	c.seed()
	c.logs[contracts.EventJobFinished.Name] = []chain.RawLog{
		{Args: map[string]any{"author": alice.String(), "worker": bob.String(), "id": big.NewInt(9), "pricePaid": big.NewInt(1)}, BlockNumber: 6, LogIndex: 0},
	}
	rec := anomaly.NewRecorder(10)
	m := newModel(c, rec)

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)
	_, err = m.Refresh(context.Background())
	require.NoError(t, err)

	got := rec.Recent()
	require.Len(t, got, 1)
	assert.Equal(t, domain.AnomalyUnknownEntity, got[0].Kind)
	assert.Equal(t, "9", got[0].Event.EntityID)
}

func TestReadModel_Track(t *testing.T) {
	c := newFakeChain()
	c.seed()
	c.reads[contracts.FnBalanceOf.Name+"|"+bob.String()] = big.NewInt(7)
	m := newModel(c, nil)
	m.Track(bob, alice, domain.UnknownAddress)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Balances, 2)
	b, _ := snap.Balance(bob)
	assert.Equal(t, int64(7), b.Int64())
}
