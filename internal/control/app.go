package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/dappwatch/internal/core/config"
	"github.com/vietddude/dappwatch/internal/indexing/health"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/evm"
	"github.com/vietddude/dappwatch/internal/infra/rpc"
	"github.com/vietddude/dappwatch/internal/infra/storage/memory"
	"github.com/vietddude/dappwatch/internal/infra/storage/postgres"
)

// App owns one session and the infrastructure behind it: the chain backend,
// the optional log database, the status server and the periodic refresh.
type App struct {
	cfg          *config.AppConfig
	backend      chain.Backend
	client       *rpc.Client
	providers    []*rpc.HTTPProvider
	db           *postgres.DB
	session      *Session
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewApp builds the backend selected by cfg and a session over it.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
	}

	switch cfg.Chain.Type {
	case config.ChainMemory:
		a.backend = memory.New(cfg.Contracts.Addresses())
		a.log.Info("Using in-memory chain")
	case config.ChainEVM:
		router := rpc.NewRouter()
		for _, p := range cfg.Chain.Providers {
			provider := rpc.NewHTTPProvider(p.Name, p.URL, cfg.Chain.Timeout)
			router.AddProvider(provider)
			a.providers = append(a.providers, provider)
		}
		a.client = rpc.NewClient(router, cfg.Chain.Retry)
		a.backend = evm.NewEVMAdapter(a.client, cfg.Chain.ReceiptPollInterval)
		a.log.Info("Using EVM chain", "providers", len(a.providers))
	default:
		return nil, fmt.Errorf("%w: unknown chain type %q", config.ErrInvalidConfig, cfg.Chain.Type)
	}

	deps := Deps{
		Logs:      a.backend,
		Reader:    a.backend,
		Submitter: a.backend,
		Head:      a.backend,
	}

	if a.client != nil {
		deps.Head = chain.NewHeadCache(a.backend, cfg.Chain.ReceiptPollInterval)
	}

	if cfg.Logs.Source == config.LogSourcePostgres {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			a.closeProviders()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			a.closeProviders()
			return nil, err
		}
		store := postgres.NewLogStore(db)
		// The indexer's head keeps the window consistent with what it has stored.
		deps.Logs = store
		deps.Head = store
		a.db = db
		a.log.Info("Using PostgreSQL log store")
	}

	a.session = NewSession(SessionConfig{
		Caller:    cfg.CallerAddress(),
		Contracts: cfg.Contracts.Addresses(),
		Window:    cfg.Chain.Window(),
	}, deps)

	var stats health.ProviderStats
	if a.client != nil {
		stats = a.client
	}
	a.healthMon = health.NewMonitor(a.session.ID(), a.session.ReadModel(), a.session.Tracker(), stats, cfg.RefreshInterval)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)
	a.log = a.log.With("session", a.session.ID())
	return a, nil
}

func (a *App) Session() *Session              { return a.session }
func (a *App) Backend() chain.Backend         { return a.backend }
func (a *App) HealthMonitor() *health.Monitor { return a.healthMon }
func (a *App) HealthServer() *health.Server   { return a.healthServer }

// Start performs an initial refresh, then runs the status server and the
// periodic refresh until Stop. A failed initial refresh is logged, not fatal.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.started = true

	if _, err := a.session.Refresh(ctx); err != nil {
		a.log.Warn("Initial refresh failed", "error", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Status server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.refreshLoop(ctx)
	}()

	a.log.Info("Session started", "caller", a.session.Caller(), "port", a.cfg.Server.Port, "refresh_interval", a.cfg.RefreshInterval)
	return nil
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := a.session.Refresh(ctx)
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("Periodic refresh failed", "error", err)
				}
				continue
			}
			a.log.Debug("Refreshed", "generation", snap.Generation, "head", snap.Head)
		}
	}
}

// Stop shuts down the status server and the refresh loop, then releases the
// database and provider connections. It is safe to call on an app that was
// never started.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = false
	cancel := a.cancel
	a.mu.Unlock()

	var errs []error
	if started {
		cancel()
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop status server: %w", err))
		}
		a.wg.Wait()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
		a.db = nil
	}
	a.closeProviders()
	a.log.Info("Session stopped")
	return errors.Join(errs...)
}

func (a *App) closeProviders() {
	for _, p := range a.providers {
		_ = p.Close()
	}
	a.providers = nil
}
