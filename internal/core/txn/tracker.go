package txn

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	logger "log/slog"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/indexing/metrics"
	"github.com/vietddude/dappwatch/internal/infra/chain"
)

// ConfirmedFunc runs once per transaction that reaches CONFIRMED.
type ConfirmedFunc func(ctx context.Context, handle domain.TransactionHandle)

// StateChangeFunc runs after every recorded transition.
type StateChangeFunc func(t Transition)

type entry struct {
	handle   domain.TransactionHandle
	resynced bool
}

// Tracker drives submitted writes through their lifecycle.
type Tracker struct {
	submitter chain.Submitter
	log       *logger.Logger
	now       func() time.Time

	mu          sync.Mutex
	entries     map[string]*entry
	history     *History
	onConfirmed []ConfirmedFunc
	onState     []StateChangeFunc
}

// NewTracker creates a tracker sending writes through submitter.
func NewTracker(submitter chain.Submitter) *Tracker {
	return &Tracker{
		submitter: submitter,
		log:       logger.Default().With("component", "txn"),
		now:       time.Now,
		entries:   make(map[string]*entry),
		history:   NewHistory(50),
	}
}

// OnConfirmed registers fn to run exactly once per confirmed transaction.
// Observers run synchronously on the goroutine that observed the confirmation.
func (t *Tracker) OnConfirmed(fn ConfirmedFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConfirmed = append(t.onConfirmed, fn)
}

// OnStateChange registers fn to run after every transition.
func (t *Tracker) OnStateChange(fn StateChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = append(t.onState, fn)
}

// Submit sends req and starts tracking its hash. A rejected write returns a
// *WriteError and no handle.
func (t *Tracker) Submit(ctx context.Context, req chain.WriteRequest) (domain.TransactionHandle, error) {
	hash, err := t.submitter.Submit(ctx, req)
	if err != nil {
		reason := shortReason(err)
		metrics.TransactionsTotal.WithLabelValues("rejected").Inc()
		t.log.Warn("write rejected", "function", req.Method.Name, "reason", reason)
		return domain.TransactionHandle{}, &WriteError{Reason: reason, Err: err}
	}

	now := t.now()
	t.mu.Lock()
	if existing, ok := t.entries[hash]; ok {
		t.mu.Unlock()
		return existing.handle, nil
	}
	e := &entry{handle: domain.TransactionHandle{
		Hash:   hash,
		Status: domain.TxStatusSubmitted,
		Intent: domain.WriteIntent{
			Contract: req.Contract,
			Function: req.Method.Sig,
			Args:     req.Args,
			Value:    req.Value,
		},
		SubmittedAt: now,
		UpdatedAt:   now,
	}}
	t.entries[hash] = e
	tr := Transition{Hash: hash, To: domain.TxStatusSubmitted, Timestamp: now}
	t.history.Record(tr)
	observers := slices.Clone(t.onState)
	handle := e.handle
	t.mu.Unlock()

	metrics.TransactionsTotal.WithLabelValues(string(domain.TxStatusSubmitted)).Inc()
	t.log.Info("transaction submitted", "hash", hash, "function", req.Method.Name)
	for _, fn := range observers {
		fn(tr)
	}
	return handle, nil
}

// Wait blocks until hash is mined. A successful receipt confirms the
// transaction and fires the OnConfirmed observers; a revert fails it and
// returns a *WriteError. An aborted wait leaves it CONFIRMING, so a later
// Wait or MarkConfirmed can still settle it.
func (t *Tracker) Wait(ctx context.Context, hash string) (domain.TransactionHandle, error) {
	handle, ok := t.Get(hash)
	if !ok {
		return domain.TransactionHandle{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	if handle.Status.IsTerminal() {
		if handle.Status == domain.TxStatusFailed {
			return handle, &WriteError{Hash: hash, Reason: handle.Reason, Err: chain.ErrReverted}
		}
		return handle, nil
	}
	if handle.Status == domain.TxStatusSubmitted {
		if err := t.transition(hash, domain.TxStatusConfirming, "", 0); err != nil {
			return handle, err
		}
	}

	receipt, err := t.submitter.WaitReceipt(ctx, hash)
	if err != nil {
		reason := "receipt wait aborted: " + err.Error()
		t.log.Warn("receipt wait aborted", "hash", hash, "error", err)
		handle, _ = t.Get(hash)
		return handle, &WriteError{Hash: hash, Reason: reason, Err: err}
	}

	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = chain.ErrReverted.Error()
		}
		if ferr := t.MarkFailed(hash, reason); ferr != nil {
			t.log.Warn("failed to mark transaction failed", "hash", hash, "error", ferr)
		}
		handle, _ = t.Get(hash)
		return handle, &WriteError{Hash: hash, Reason: reason, Err: &chain.RevertError{Reason: receipt.Reason}}
	}

	if _, err := t.MarkConfirmed(ctx, hash, receipt.BlockNumber); err != nil {
		return handle, err
	}
	handle, _ = t.Get(hash)
	return handle, nil
}

// Execute submits req and waits for its receipt.
func (t *Tracker) Execute(ctx context.Context, req chain.WriteRequest) (domain.TransactionHandle, error) {
	handle, err := t.Submit(ctx, req)
	if err != nil {
		return handle, err
	}
	return t.Wait(ctx, handle.Hash)
}

// MarkConfirmed records a confirmation for hash. Only the first call fires
// the OnConfirmed observers; it reports whether it did.
func (t *Tracker) MarkConfirmed(ctx context.Context, hash string, blockNumber uint64) (bool, error) {
	t.mu.Lock()
	e, ok := t.entries[hash]
	if !ok {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	if e.resynced {
		t.mu.Unlock()
		t.log.Debug("duplicate confirmation ignored", "hash", hash)
		return false, nil
	}
	if e.handle.Status == domain.TxStatusFailed {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: %s is failed", ErrInvalidTransition, hash)
	}

	var transitions []Transition
	if e.handle.Status == domain.TxStatusSubmitted {
		transitions = append(transitions, t.applyLocked(e, domain.TxStatusConfirming, "", 0))
	}
	transitions = append(transitions, t.applyLocked(e, domain.TxStatusConfirmed, "", blockNumber))
	e.resynced = true
	handle := e.handle
	stateObservers := slices.Clone(t.onState)
	confirmObservers := slices.Clone(t.onConfirmed)
	t.mu.Unlock()

	t.log.Info("transaction confirmed", "hash", hash, "block", blockNumber)
	for _, tr := range transitions {
		for _, fn := range stateObservers {
			fn(tr)
		}
	}
	for _, fn := range confirmObservers {
		fn(ctx, handle)
	}
	return true, nil
}

// MarkFailed moves hash to FAILED. Failing an already failed transaction is a
// no-op; failing a confirmed one is an invalid transition.
func (t *Tracker) MarkFailed(hash, reason string) error {
	t.mu.Lock()
	e, ok := t.entries[hash]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	switch e.handle.Status {
	case domain.TxStatusFailed:
		t.mu.Unlock()
		return nil
	case domain.TxStatusConfirmed:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s is confirmed", ErrInvalidTransition, hash)
	}
	tr := t.applyLocked(e, domain.TxStatusFailed, reason, 0)
	observers := slices.Clone(t.onState)
	t.mu.Unlock()

	t.log.Warn("transaction failed", "hash", hash, "reason", reason)
	for _, fn := range observers {
		fn(tr)
	}
	return nil
}

// Get returns the handle for hash, including tombstoned ones.
func (t *Tracker) Get(hash string) (domain.TransactionHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[hash]
	if !ok {
		return domain.TransactionHandle{}, false
	}
	return e.handle, true
}

// List returns all known handles, most recently submitted first.
func (t *Tracker) List() []domain.TransactionHandle {
	t.mu.Lock()
	out := make([]domain.TransactionHandle, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.handle)
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.TransactionHandle) int {
		if c := b.SubmittedAt.Compare(a.SubmittedAt); c != 0 {
			return c
		}
		if a.Hash < b.Hash {
			return -1
		}
		if a.Hash > b.Hash {
			return 1
		}
		return 0
	})
	return out
}

// History returns the most recent transitions, oldest first.
func (t *Tracker) History() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Recent()
}

func (t *Tracker) transition(hash string, to domain.TxStatus, reason string, blockNumber uint64) error {
	t.mu.Lock()
	e, ok := t.entries[hash]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, hash)
	}
	if !CanTransition(e.handle.Status, to) {
		from := e.handle.Status
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tr := t.applyLocked(e, to, reason, blockNumber)
	observers := slices.Clone(t.onState)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(tr)
	}
	return nil
}

// applyLocked must be called with t.mu held and a transition already validated.
func (t *Tracker) applyLocked(e *entry, to domain.TxStatus, reason string, blockNumber uint64) Transition {
	now := t.now()
	tr := Transition{
		Hash:      e.handle.Hash,
		From:      e.handle.Status,
		To:        to,
		Reason:    reason,
		Timestamp: now,
	}
	e.handle.Status = to
	e.handle.UpdatedAt = now
	if reason != "" {
		e.handle.Reason = reason
	}
	if blockNumber > 0 {
		e.handle.BlockNumber = blockNumber
	}
	t.history.Record(tr)
	metrics.TransactionsTotal.WithLabelValues(string(to)).Inc()
	return tr
}
