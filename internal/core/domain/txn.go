package domain

import (
	"math/big"
	"time"
)

// TxStatus is the lifecycle stage of a submitted write.
type TxStatus string

const (
	TxStatusSubmitted  TxStatus = "submitted"
	TxStatusConfirming TxStatus = "confirming"
	TxStatusConfirmed  TxStatus = "confirmed"
	TxStatusFailed     TxStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// WriteIntent describes what a transaction was submitted to do.
type WriteIntent struct {
	Contract Address  `json:"contract"`
	Function string   `json:"function"`
	Args     []any    `json:"args,omitempty"`
	Value    *big.Int `json:"value,omitempty"`
}

// TransactionHandle tracks one submitted write.
type TransactionHandle struct {
	Hash        string      `json:"hash"`
	Status      TxStatus    `json:"status"`
	Intent      WriteIntent `json:"intent"`
	Reason      string      `json:"reason,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
