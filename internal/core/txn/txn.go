// Package txn tracks the lifecycle of submitted contract writes.
//
// # State Machine
//
// A write moves only forward:
//
//	SUBMITTED → CONFIRMING → CONFIRMED
//	SUBMITTED → CONFIRMING → FAILED
//	SUBMITTED → FAILED
//
// FAILED is reserved for rejections and reverts. A receipt wait that is
// interrupted leaves the write CONFIRMING; Wait can be called again.
//
// # Resync
//
// Observers registered with OnConfirmed run exactly once per transaction hash,
// on the single transition into CONFIRMED. A confirmation observed again (for
// example by a redundant poll) is a no-op: each hash carries a monotonic
// "resynced" flag and its handle stays behind as a tombstone.
//
// # Quick Start
//
//	tracker := txn.NewTracker(backend)
//	tracker.OnConfirmed(func(ctx context.Context, h domain.TransactionHandle) {
//	    readModel.Refresh(ctx)
//	})
//
//	handle, err := tracker.Execute(ctx, contracts.TakeJob(addrs, 1))
//	var werr *txn.WriteError
//	if errors.As(err, &werr) {
//	    fmt.Println("rejected:", werr.Reason)
//	}
//
// # Package Structure
//
//   - state.go   - transitions and their validation
//   - tracker.go - Tracker: submit, wait, confirm, fail, observers
//   - history.go - bounded recent-transition history
package txn

import (
	"errors"
	"fmt"

	"github.com/vietddude/dappwatch/internal/infra/chain"
)

var (
	// ErrUnknownTransaction is returned for a hash the tracker never saw.
	ErrUnknownTransaction = errors.New("unknown transaction")
)

// WriteError reports a write that did not confirm, with its short reason.
// Hash is empty when the write was rejected before a hash was assigned.
type WriteError struct {
	Hash   string
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	if e.Hash == "" {
		return fmt.Sprintf("write rejected: %s", e.Reason)
	}
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.Reason)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// shortReason extracts what a user should see from a write failure.
func shortReason(err error) string {
	var revert *chain.RevertError
	if errors.As(err, &revert) {
		if revert.Reason != "" {
			return revert.Reason
		}
		return chain.ErrReverted.Error()
	}
	return err.Error()
}
