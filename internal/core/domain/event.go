package domain

import (
	"fmt"
	"math/big"
)

// EventKind identifies the contract event a DomainEvent was decoded from.
type EventKind string

const (
	EventKindJobAdded      EventKind = "job_added"
	EventKindJobTaken      EventKind = "job_taken"
	EventKindJobFinished   EventKind = "job_finished"
	EventKindDeposited     EventKind = "deposited"
	EventKindWithdrawn     EventKind = "withdrawn"
	EventKindNumberChanged EventKind = "number_changed"
)

// kindRank gives a fixed tie-break order between kinds at the same position.
var kindRank = map[EventKind]int{
	EventKindJobAdded:      0,
	EventKindJobTaken:      1,
	EventKindJobFinished:   2,
	EventKindDeposited:     3,
	EventKindWithdrawn:     4,
	EventKindNumberChanged: 5,
}

// Rank returns the tie-break rank of the kind. Unknown kinds sort last.
func (k EventKind) Rank() int {
	if r, ok := kindRank[k]; ok {
		return r
	}
	return len(kindRank)
}

// Field wraps an optional payload value and records whether the log actually
// carried it or it was defaulted during normalization.
type Field[T any] struct {
	Value   T
	Present bool
}

// Present wraps a value that was decoded from the log.
func Present[T any](v T) Field[T] {
	return Field[T]{Value: v, Present: true}
}

// Defaulted wraps a fallback value used in place of a missing argument.
func Defaulted[T any](v T) Field[T] {
	return Field[T]{Value: v}
}

// Payload holds the kind-specific arguments of an event.
type Payload struct {
	Description  Field[string]
	Amount       Field[*big.Int] // job price, price paid, ledger amount or counter value
	Counterparty Field[Address]  // job author on JobFinished
}

// Position is the chain order key of a log.
type Position struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
}

// Compare orders positions by block number then log index.
func (p Position) Compare(o Position) int {
	switch {
	case p.BlockNumber < o.BlockNumber:
		return -1
	case p.BlockNumber > o.BlockNumber:
		return 1
	case p.LogIndex < o.LogIndex:
		return -1
	case p.LogIndex > o.LogIndex:
		return 1
	}
	return 0
}

// Event is a normalized contract log.
type Event struct {
	Kind        EventKind
	EntityID    string
	Actor       Address
	Payload     Payload
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
}

// Position returns the chain order key of the event.
func (e Event) Position() Position {
	return Position{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// EventKey identifies a log occurrence for deduplication.
type EventKey struct {
	Kind        EventKind
	EntityID    string
	BlockNumber uint64
	LogIndex    uint64
}

// Key returns the deduplication key of the event.
func (e Event) Key() EventKey {
	return EventKey{
		Kind:        e.Kind,
		EntityID:    e.EntityID,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s(id=%s, block=%d, log=%d)", e.Kind, e.EntityID, e.BlockNumber, e.LogIndex)
}
