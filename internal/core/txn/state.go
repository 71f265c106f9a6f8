package txn

import (
	"errors"
	"slices"
	"time"

	"github.com/vietddude/dappwatch/internal/core/domain"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[domain.TxStatus][]domain.TxStatus{
	domain.TxStatusSubmitted:  {domain.TxStatusConfirming, domain.TxStatusFailed},
	domain.TxStatusConfirming: {domain.TxStatusConfirmed, domain.TxStatusFailed},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to domain.TxStatus) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Transition represents a state change with metadata.
type Transition struct {
	Hash      string          `json:"hash"`
	From      domain.TxStatus `json:"from"`
	To        domain.TxStatus `json:"to"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusDescription returns a human-readable description of a status.
func StatusDescription(s domain.TxStatus) string {
	switch s {
	case domain.TxStatusSubmitted:
		return "Submitted - hash assigned, not yet waiting for receipt"
	case domain.TxStatusConfirming:
		return "Confirming - waiting for the receipt, or the wait was interrupted"
	case domain.TxStatusConfirmed:
		return "Confirmed - mined successfully"
	case domain.TxStatusFailed:
		return "Failed - rejected or reverted"
	default:
		return "Unknown status"
	}
}
