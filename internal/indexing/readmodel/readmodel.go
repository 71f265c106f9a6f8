// Package readmodel holds the committed snapshot a session reads from and
// rebuilds it from the chain on demand.
//
// A refresh fetches every event kind and every point read concurrently,
// normalizes and reduces them, then swaps the snapshot in one atomic store.
// Readers never block and never see a partially built snapshot.
//
// Refreshes are numbered and run one at a time, so generations commit in
// order. A caller arriving while a build runs joins the next build, which
// starts once the current one ends. Every caller therefore gets a snapshot
// built entirely after its call, and a burst of callers costs at most two
// builds.
package readmodel

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	logger "log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/indexing/anomaly"
	"github.com/vietddude/dappwatch/internal/indexing/metrics"
	"github.com/vietddude/dappwatch/internal/indexing/normalize"
	"github.com/vietddude/dappwatch/internal/indexing/projection"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
)

// Snapshot is one committed, immutable view. Callers must not modify it.
type Snapshot struct {
	Generation uint64                `json:"generation"`
	Projection projection.Projection `json:"projection"`
	// Balances holds authoritative bank balances read directly from the contract.
	Balances map[domain.Address]*big.Int `json:"balances"`
	// Counter is the stored number read directly, nil when no counter is configured.
	Counter     *big.Int         `json:"counter,omitempty"`
	Head        uint64           `json:"head,omitempty"`
	Window      contracts.Window `json:"window"`
	RefreshedAt time.Time        `json:"refreshed_at"`
}

// Balance returns the authoritative balance of account.
func (s *Snapshot) Balance(account domain.Address) (*big.Int, bool) {
	b, ok := s.Balances[account]
	return b, ok
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Projection: projection.Empty(),
		Balances:   make(map[domain.Address]*big.Int),
	}
}

// Status describes refresh activity.
type Status struct {
	Generation  uint64    `json:"generation"`
	InFlight    bool      `json:"in_flight"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Committed   uint64    `json:"committed"`
	Failed      uint64    `json:"failed"`
	// Coalesced counts callers that joined a build another caller queued.
	Coalesced uint64 `json:"coalesced"`
}

// Config selects what a refresh reads.
type Config struct {
	Contracts contracts.Addresses
	Window    contracts.Window
	// Accounts whose authoritative bank balance is read on every refresh.
	Accounts []domain.Address
}

// flight is one build, shared by every caller that joined it.
type flight struct {
	gen     uint64
	started bool
	done    chan struct{}

	// Set before done is closed.
	snap *Snapshot
	err  error
}

// ReadModel owns the current snapshot of one session.
type ReadModel struct {
	source     chain.LogSource
	reader     chain.Reader
	head       chain.HeadReader
	normalizer *normalize.Normalizer
	reporter   anomaly.Reporter
	log        *logger.Logger

	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	cfg     Config
	gen     uint64
	running *flight
	next    *flight
	status  Status
}

// New creates a read model. head may be nil when the source cannot report
// the chain head; the window's upper bound is then left as configured.
func New(source chain.LogSource, reader chain.Reader, head chain.HeadReader, reporter anomaly.Reporter, cfg Config) *ReadModel {
	if reporter == nil {
		reporter = anomaly.Nop{}
	}
	m := &ReadModel{
		source:     source,
		reader:     reader,
		head:       head,
		normalizer: normalize.New(),
		reporter:   reporter,
		log:        logger.Default().With("component", "readmodel"),
		cfg:        cfg,
	}
	m.current.Store(emptySnapshot())
	return m
}

// Get returns the last committed snapshot without blocking.
func (m *ReadModel) Get() *Snapshot {
	return m.current.Load()
}

// Status returns refresh counters and the last error.
func (m *ReadModel) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	s.Generation = m.current.Load().Generation
	s.InFlight = m.running != nil
	return s
}

// Track adds accounts whose authoritative balance later refreshes read.
func (m *ReadModel) Track(accounts ...domain.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		if a.IsKnown() && !slices.Contains(m.cfg.Accounts, a) {
			m.cfg.Accounts = append(m.cfg.Accounts, a)
		}
	}
}

// Refresh rebuilds the snapshot from the chain. On failure the previous
// snapshot stays current and the error is returned and kept in Status.
// A shared build runs on the context of the caller that starts it.
func (m *ReadModel) Refresh(ctx context.Context) (*Snapshot, error) {
	f := m.join()
	for {
		m.mu.Lock()
		if f.started {
			m.mu.Unlock()
			select {
			case <-f.done:
				return f.snap, f.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if m.running == nil {
			cfg := m.startLocked(f)
			m.mu.Unlock()

			start := time.Now()
			snap, err := m.build(ctx, f.gen, cfg)
			metrics.RefreshDuration.Observe(time.Since(start).Seconds())
			return m.finish(ctx, f, snap, err)
		}
		cur := m.running
		m.mu.Unlock()

		select {
		case <-cur.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// join returns the queued build, creating it if none is waiting.
func (m *ReadModel) join() *flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next != nil {
		m.status.Coalesced++
		metrics.RefreshesTotal.WithLabelValues("coalesced").Inc()
		return m.next
	}
	m.next = &flight{done: make(chan struct{})}
	return m.next
}

func (m *ReadModel) startLocked(f *flight) Config {
	m.gen++
	f.gen = m.gen
	f.started = true
	m.running = f
	m.next = nil
	m.status.LastAttempt = time.Now()

	cfg := m.cfg
	cfg.Accounts = slices.Clone(m.cfg.Accounts)
	return cfg
}

func (m *ReadModel) finish(ctx context.Context, f *flight, snap *Snapshot, err error) (*Snapshot, error) {
	m.mu.Lock()
	m.running = nil

	if err != nil {
		f.err = err
		m.status.Failed++
		m.status.LastError = err.Error()
		close(f.done)
		m.mu.Unlock()
		metrics.RefreshesTotal.WithLabelValues("failed").Inc()
		m.log.Warn("refresh failed, keeping previous snapshot", "generation", f.gen, "error", err)
		return nil, err
	}

	prev := m.current.Load()
	m.current.Store(snap)
	f.snap = snap
	m.status.Committed++
	m.status.LastError = ""
	m.status.LastSuccess = snap.RefreshedAt
	close(f.done)
	m.mu.Unlock()

	m.observe(snap)
	m.report(ctx, prev, snap)
	m.log.Info("snapshot committed",
		"generation", snap.Generation,
		"jobs", len(snap.Projection.Jobs),
		"anomalies", len(snap.Projection.Anomalies),
		"head", snap.Head,
	)
	return snap, nil
}

func (m *ReadModel) build(ctx context.Context, gen uint64, cfg Config) (*Snapshot, error) {
	window := cfg.Window
	var head uint64
	if m.head != nil {
		h, err := m.head.LatestBlock(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain head: %w", err)
		}
		head = h
		window = window.Pin(head)
	}

	sources := contracts.Sources(cfg.Contracts, window)
	batches := make([]normalize.Batch, len(sources))
	balances := make([]*big.Int, len(cfg.Accounts))
	var counter *big.Int

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			logs, err := m.source.Logs(gctx, src.Query)
			if err != nil {
				return fmt.Errorf("fetch %s logs: %w", src.Kind, err)
			}
			batches[i] = normalize.Batch{Kind: src.Kind, Records: logs}
			return nil
		})
	}
	if cfg.Contracts.Bank.IsKnown() {
		for i, account := range cfg.Accounts {
			g.Go(func() error {
				v, err := m.readInt(gctx, contracts.BalanceOf(cfg.Contracts, account))
				if err != nil {
					return fmt.Errorf("read balance of %s: %w", account, err)
				}
				balances[i] = v
				return nil
			})
		}
	}
	if cfg.Contracts.Storage.IsKnown() {
		g.Go(func() error {
			v, err := m.readInt(gctx, contracts.CurrentNumber(cfg.Contracts))
			if err != nil {
				return fmt.Errorf("read counter: %w", err)
			}
			counter = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := m.normalizer.Normalize(batches...)
	proj := projection.Reduce(res.Events)
	proj.Anomalies = append(slices.Clone(res.Anomalies), proj.Anomalies...)

	snap := &Snapshot{
		Generation:  gen,
		Projection:  proj,
		Balances:    make(map[domain.Address]*big.Int, len(balances)),
		Counter:     counter,
		Head:        head,
		Window:      window,
		RefreshedAt: time.Now(),
	}
	for i, b := range balances {
		if b != nil {
			snap.Balances[cfg.Accounts[i]] = b
		}
	}
	return snap, nil
}

var errNotInteger = errors.New("read result is not an integer")

func (m *ReadModel) readInt(ctx context.Context, req chain.ReadRequest) (*big.Int, error) {
	v, err := m.reader.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	n, err := ethabi.ToBigInt(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotInteger, err)
	}
	return n, nil
}

func (m *ReadModel) observe(snap *Snapshot) {
	metrics.RefreshesTotal.WithLabelValues("committed").Inc()
	metrics.SnapshotGeneration.Set(float64(snap.Generation))
	if snap.Head > 0 {
		metrics.ChainLatestBlock.Set(float64(snap.Head))
	}

	counts := map[domain.EventKind]int{
		domain.EventKindJobAdded:      len(snap.Projection.Jobs),
		domain.EventKindNumberChanged: len(snap.Projection.Counter),
	}
	for _, entries := range snap.Projection.Ledger {
		for _, e := range entries {
			if e.IsDeposit() {
				counts[domain.EventKindDeposited]++
			} else {
				counts[domain.EventKindWithdrawn]++
			}
		}
	}
	for kind, n := range counts {
		metrics.EventsProjected.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// report forwards anomalies not already present in prev.
func (m *ReadModel) report(ctx context.Context, prev, next *Snapshot) {
	known := make(map[domain.Anomaly]struct{}, len(prev.Projection.Anomalies))
	for _, a := range prev.Projection.Anomalies {
		known[a] = struct{}{}
	}
	var fresh []domain.Anomaly
	for _, a := range next.Projection.Anomalies {
		if _, ok := known[a]; !ok {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := m.reporter.Report(ctx, fresh); err != nil {
		m.log.Warn("anomaly report failed", "error", err)
	}
}
