package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/vietddude/dappwatch/internal/core/domain"
)

// ErrReverted marks a write that the chain rejected or rolled back.
var ErrReverted = errors.New("execution reverted")

// RevertError carries the short reason a contract gave for rejecting a call.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return ErrReverted.Error() + ": " + e.Reason
}

func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}

// NewRevertError builds a RevertError from a node message such as
// "execution reverted: Not the author".
func NewRevertError(msg string) *RevertError {
	msg = strings.TrimSpace(msg)
	if i := strings.Index(msg, ErrReverted.Error()); i >= 0 {
		msg = msg[i+len(ErrReverted.Error()):]
	}
	msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg), ":"))
	return &RevertError{Reason: msg}
}

// LogQuery selects the logs of one event on one contract.
type LogQuery struct {
	Contract  domain.Address
	Event     abi.Event
	FromBlock uint64
	// ToBlock nil means latest.
	ToBlock *uint64
}

// RawLog is a decoded log record as a LogSource hands it over.
// Args values may be any of the shapes the normalizer accepts.
type RawLog struct {
	Args        map[string]any
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
}

// LogSource answers historical event queries.
// Results are in ascending (BlockNumber, LogIndex) order; empty is normal.
type LogSource interface {
	Logs(ctx context.Context, q LogQuery) ([]RawLog, error)
}

// ReadRequest is a side-effect-free contract call.
type ReadRequest struct {
	Contract domain.Address
	Method   abi.Method
	Args     []any
}

// Reader performs point reads against current chain state.
type Reader interface {
	Read(ctx context.Context, req ReadRequest) (any, error)
}

// WriteRequest is a state-changing contract call.
type WriteRequest struct {
	Contract domain.Address
	Method   abi.Method
	Args     []any
	Value    *big.Int
	From     domain.Address
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	Hash        string
	Success     bool
	BlockNumber uint64
	Reason      string
}

// Submitter sends writes and waits for their receipts.
type Submitter interface {
	// Submit returns the transaction hash, or an error wrapping ErrReverted
	// when the write is rejected before a hash exists.
	Submit(ctx context.Context, req WriteRequest) (string, error)

	// WaitReceipt blocks until the transaction is mined or ctx is done.
	WaitReceipt(ctx context.Context, hash string) (Receipt, error)
}

// HeadReader is an optional interface for sources that can report the chain head.
type HeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// Backend bundles everything a session needs from one chain.
type Backend interface {
	LogSource
	Reader
	Submitter
	HeadReader
}
