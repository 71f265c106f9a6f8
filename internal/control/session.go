package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/vietddude/dappwatch/internal/core/contracts"
	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/core/txn"
	"github.com/vietddude/dappwatch/internal/indexing/anomaly"
	"github.com/vietddude/dappwatch/internal/indexing/readmodel"
	"github.com/vietddude/dappwatch/internal/infra/chain"
)

var (
	// ErrNoCaller is returned by write operations when the session has no caller address.
	ErrNoCaller = errors.New("no caller address")
	// ErrContractNotConfigured is returned when a write targets a contract with no address.
	ErrContractNotConfigured = errors.New("contract not configured")
	// ErrInvalidAmount is returned for zero or negative ether amounts.
	ErrInvalidAmount = errors.New("amount must be greater than 0")
)

// Deps are the chain collaborators a session runs against.
type Deps struct {
	Logs      chain.LogSource
	Reader    chain.Reader
	Submitter chain.Submitter
	// Head pins the open end of the block window; nil leaves it open.
	Head chain.HeadReader
	// Reporter receives anomalies in addition to the session's recorder.
	Reporter anomaly.Reporter
}

// SessionConfig holds the per-session settings.
type SessionConfig struct {
	Caller    domain.Address
	Contracts contracts.Addresses
	Window    contracts.Window
}

// JobView is a job together with the actions the caller may take on it.
type JobView struct {
	domain.Job
	CanTake bool `json:"can_take"`
	CanPay  bool `json:"can_pay"`
}

// Session is one user's context: a caller address, the read model it sees
// and the transactions it has sent.
type Session struct {
	id        string
	caller    domain.Address
	contracts contracts.Addresses
	tracker   *txn.Tracker
	model     *readmodel.ReadModel
	anomalies *anomaly.Recorder
	head      chain.HeadReader
	log       *slog.Logger
}

// headObserver is implemented by head readers that accept a known block,
// such as chain.HeadCache.
type headObserver interface {
	Observe(block uint64)
}

// NewSession wires a tracker and a read model over deps. Every confirmed
// write refreshes the read model before the write call returns.
func NewSession(cfg SessionConfig, deps Deps) *Session {
	id := uuid.NewString()
	recorder := anomaly.NewRecorder(0)
	reporters := anomaly.Multi{anomaly.NewLogReporter(slog.Default().With("session", id)), recorder}
	if deps.Reporter != nil {
		reporters = append(reporters, deps.Reporter)
	}

	var accounts []domain.Address
	if cfg.Caller.IsKnown() {
		accounts = append(accounts, cfg.Caller)
	}

	s := &Session{
		id:        id,
		caller:    cfg.Caller,
		contracts: cfg.Contracts,
		tracker:   txn.NewTracker(deps.Submitter),
		model: readmodel.New(deps.Logs, deps.Reader, deps.Head, reporters, readmodel.Config{
			Contracts: cfg.Contracts,
			Window:    cfg.Window,
			Accounts:  accounts,
		}),
		anomalies: recorder,
		head:      deps.Head,
		log:       slog.Default().With("component", "session", "session", id),
	}
	s.tracker.OnConfirmed(s.resync)
	return s
}

func (s *Session) resync(ctx context.Context, h domain.TransactionHandle) {
	if o, ok := s.head.(headObserver); ok {
		o.Observe(h.BlockNumber)
	}
	snap, err := s.model.Refresh(ctx)
	if err != nil {
		s.log.Warn("resync after confirmation failed", "hash", h.Hash, "error", err)
		return
	}
	s.log.Debug("resynced", "hash", h.Hash, "generation", snap.Generation)
}

func (s *Session) ID() string                      { return s.id }
func (s *Session) Caller() domain.Address          { return s.caller }
func (s *Session) Contracts() contracts.Addresses  { return s.contracts }
func (s *Session) Tracker() *txn.Tracker           { return s.tracker }
func (s *Session) ReadModel() *readmodel.ReadModel { return s.model }

// Anomalies returns the most recent distinct anomalies reported by refreshes.
func (s *Session) Anomalies() []domain.Anomaly {
	return s.anomalies.Recent()
}

// Refresh rebuilds the snapshot from the chain.
func (s *Session) Refresh(ctx context.Context) (*readmodel.Snapshot, error) {
	return s.model.Refresh(ctx)
}

// Snapshot returns the committed snapshot without blocking.
func (s *Session) Snapshot() *readmodel.Snapshot {
	return s.model.Get()
}

// Jobs returns every job in the order added, annotated for the caller.
func (s *Session) Jobs() []JobView {
	jobs := s.Snapshot().Projection.JobList()
	out := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.view(j))
	}
	return out
}

// Job returns one job annotated for the caller.
func (s *Session) Job(id string) (JobView, bool) {
	j, ok := s.Snapshot().Projection.Job(id)
	if !ok {
		return JobView{}, false
	}
	return s.view(j), true
}

func (s *Session) view(j domain.Job) JobView {
	known := s.caller.IsKnown()
	return JobView{
		Job:     j,
		CanTake: known && j.State == domain.JobStateAvailable && j.Author != s.caller,
		CanPay:  known && j.State == domain.JobStateTaken && j.Author == s.caller,
	}
}

// Balance returns the caller's bank balance as read from the contract.
func (s *Session) Balance() (*big.Int, bool) {
	return s.Snapshot().Balance(s.caller)
}

// Ledger returns the caller's deposits and withdrawals, most recent first.
func (s *Session) Ledger() []domain.LedgerEntry {
	return s.Snapshot().Projection.LedgerFor(s.caller)
}

// LedgerHistory returns every account's entries, most recent first.
func (s *Session) LedgerHistory() []domain.LedgerEntry {
	return s.Snapshot().Projection.LedgerHistory()
}

// Counter returns the stored number and its change history, most recent first.
func (s *Session) Counter() (*big.Int, []domain.CounterChange) {
	snap := s.Snapshot()
	return snap.Counter, snap.Projection.CounterHistory()
}

// AddJob posts a job paying price wei.
func (s *Session) AddJob(ctx context.Context, description string, price *big.Int) (domain.TransactionHandle, error) {
	return s.execute(ctx, s.contracts.Jobs, contracts.AddJob(s.contracts, description, price))
}

// TakeJob takes the job with id as the caller.
func (s *Session) TakeJob(ctx context.Context, id string) (domain.TransactionHandle, error) {
	n, err := jobID(id)
	if err != nil {
		return domain.TransactionHandle{}, err
	}
	return s.execute(ctx, s.contracts.Jobs, contracts.TakeJob(s.contracts, n))
}

// FinishJob marks the job finished and pays its worker.
func (s *Session) FinishJob(ctx context.Context, id string) (domain.TransactionHandle, error) {
	n, err := jobID(id)
	if err != nil {
		return domain.TransactionHandle{}, err
	}
	return s.execute(ctx, s.contracts.Jobs, contracts.FinishJob(s.contracts, n))
}

func (s *Session) Deposit(ctx context.Context, amount *big.Int) (domain.TransactionHandle, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.TransactionHandle{}, ErrInvalidAmount
	}
	return s.execute(ctx, s.contracts.Bank, contracts.Deposit(s.contracts, amount))
}

func (s *Session) Withdraw(ctx context.Context, amount *big.Int) (domain.TransactionHandle, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.TransactionHandle{}, ErrInvalidAmount
	}
	return s.execute(ctx, s.contracts.Bank, contracts.Withdraw(s.contracts, amount))
}

func (s *Session) SetNumber(ctx context.Context, n *big.Int) (domain.TransactionHandle, error) {
	if n == nil || n.Sign() < 0 {
		return domain.TransactionHandle{}, fmt.Errorf("number must not be negative")
	}
	return s.execute(ctx, s.contracts.Storage, contracts.SetNumber(s.contracts, n))
}

func (s *Session) execute(ctx context.Context, target domain.Address, req chain.WriteRequest) (domain.TransactionHandle, error) {
	if !s.caller.IsKnown() {
		return domain.TransactionHandle{}, ErrNoCaller
	}
	if !target.IsKnown() {
		return domain.TransactionHandle{}, fmt.Errorf("%w: %s", ErrContractNotConfigured, req.Method.Name)
	}
	req.From = s.caller
	return s.tracker.Execute(ctx, req)
}

func jobID(id string) (uint64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", id)
	}
	return n, nil
}
