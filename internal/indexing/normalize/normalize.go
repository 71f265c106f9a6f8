// Package normalize turns raw log records into a single chronologically
// ordered, deduplicated sequence of domain events.
package normalize

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/infra/chain"
	"github.com/vietddude/dappwatch/internal/infra/chain/ethabi"
)

// CounterEntity is the entity id shared by all counter changes.
const CounterEntity = "counter"

// Batch is the raw result of one log query.
type Batch struct {
	Kind    domain.EventKind
	Records []chain.RawLog
}

// Result is the normalized output of one refresh.
type Result struct {
	Events    []domain.Event
	Anomalies []domain.Anomaly
}

// extractor fills the kind-specific part of an event from log arguments.
// It returns the names of arguments it had to default, or an error when the
// record cannot be keyed at all.
type extractor func(args map[string]any, ev *domain.Event) (defaulted []string, err error)

// Normalizer converts raw records per event kind into domain events.
type Normalizer struct {
	extractors map[domain.EventKind]extractor
}

func New() *Normalizer {
	return &Normalizer{
		extractors: map[domain.EventKind]extractor{
			domain.EventKindJobAdded:      extractJobAdded,
			domain.EventKindJobTaken:      extractJobTaken,
			domain.EventKindJobFinished:   extractJobFinished,
			domain.EventKindDeposited:     extractLedger,
			domain.EventKindWithdrawn:     extractLedger,
			domain.EventKindNumberChanged: extractNumberChanged,
		},
	}
}

// Normalize merges the batches into one sequence sorted by (block, log index),
// with kind and entity id as tie-breaks. Records missing optional arguments
// are kept with defaulted fields; records without an entity key are dropped.
// Both cases are reported as malformed_payload anomalies.
func (n *Normalizer) Normalize(batches ...Batch) Result {
	var res Result
	seen := make(map[domain.EventKey]struct{})

	for _, b := range batches {
		extract, ok := n.extractors[b.Kind]
		if !ok {
			for _, rec := range b.Records {
				res.Anomalies = append(res.Anomalies, malformed(b.Kind, "", rec, "unknown event kind"))
			}
			continue
		}

		for _, rec := range b.Records {
			ev := domain.Event{
				Kind:        b.Kind,
				BlockNumber: rec.BlockNumber,
				LogIndex:    rec.LogIndex,
				TxHash:      rec.TxHash,
			}
			defaulted, err := extract(rec.Args, &ev)
			if err != nil {
				res.Anomalies = append(res.Anomalies, malformed(b.Kind, "", rec, err.Error()))
				continue
			}

			key := ev.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			if len(defaulted) > 0 {
				res.Anomalies = append(res.Anomalies, malformed(b.Kind, ev.EntityID, rec,
					"defaulted "+strings.Join(defaulted, ", ")))
			}
			res.Events = append(res.Events, ev)
		}
	}

	SortEvents(res.Events)
	return res
}

// SortEvents orders events canonically in place.
func SortEvents(events []domain.Event) {
	slices.SortStableFunc(events, CompareEvents)
}

// CompareEvents is the canonical event order: position, then kind, then entity id.
func CompareEvents(a, b domain.Event) int {
	if c := a.Position().Compare(b.Position()); c != 0 {
		return c
	}
	if a.Kind != b.Kind {
		return a.Kind.Rank() - b.Kind.Rank()
	}
	return strings.Compare(a.EntityID, b.EntityID)
}

func malformed(kind domain.EventKind, id string, rec chain.RawLog, reason string) domain.Anomaly {
	return domain.Anomaly{
		Kind: domain.AnomalyMalformedPayload,
		Event: domain.EventKey{
			Kind:        kind,
			EntityID:    id,
			BlockNumber: rec.BlockNumber,
			LogIndex:    rec.LogIndex,
		},
		Reason: reason,
	}
}

// fields accumulates the names of defaulted arguments for one record.
type fields struct {
	args      map[string]any
	defaulted []string
}

func (f *fields) address(name string) domain.Field[domain.Address] {
	if a, ok := toAddress(f.args[name]); ok {
		return domain.Present(a)
	}
	f.defaulted = append(f.defaulted, name)
	return domain.Defaulted(domain.UnknownAddress)
}

func (f *fields) amount(name string) domain.Field[*big.Int] {
	if n, ok := toBigInt(f.args[name]); ok && n.Sign() >= 0 {
		return domain.Present(n)
	}
	f.defaulted = append(f.defaulted, name)
	return domain.Defaulted(new(big.Int))
}

func (f *fields) text(name string) domain.Field[string] {
	if s, ok := f.args[name].(string); ok {
		return domain.Present(s)
	}
	f.defaulted = append(f.defaulted, name)
	return domain.Defaulted("")
}

func jobID(args map[string]any) (string, error) {
	n, ok := toBigInt(args["id"])
	if !ok || n.Sign() < 0 {
		return "", fmt.Errorf("missing or invalid job id %v", args["id"])
	}
	return n.String(), nil
}

func extractJobAdded(args map[string]any, ev *domain.Event) ([]string, error) {
	id, err := jobID(args)
	if err != nil {
		return nil, err
	}
	f := &fields{args: args}
	ev.EntityID = id
	author := f.address("author")
	ev.Actor = author.Value
	ev.Payload = domain.Payload{
		Description: f.text("description"),
		Amount:      f.amount("price"),
	}
	return f.defaulted, nil
}

func extractJobTaken(args map[string]any, ev *domain.Event) ([]string, error) {
	id, err := jobID(args)
	if err != nil {
		return nil, err
	}
	f := &fields{args: args}
	ev.EntityID = id
	ev.Actor = f.address("worker").Value
	return f.defaulted, nil
}

func extractJobFinished(args map[string]any, ev *domain.Event) ([]string, error) {
	id, err := jobID(args)
	if err != nil {
		return nil, err
	}
	f := &fields{args: args}
	ev.EntityID = id
	ev.Actor = f.address("worker").Value
	ev.Payload = domain.Payload{
		Counterparty: f.address("author"),
		Amount:       f.amount("pricePaid"),
	}
	return f.defaulted, nil
}

func extractLedger(args map[string]any, ev *domain.Event) ([]string, error) {
	f := &fields{args: args}
	account := f.address("account")
	ev.EntityID = account.Value.String()
	ev.Actor = account.Value
	ev.Payload = domain.Payload{Amount: f.amount("amount")}
	return f.defaulted, nil
}

func extractNumberChanged(args map[string]any, ev *domain.Event) ([]string, error) {
	f := &fields{args: args}
	ev.EntityID = CounterEntity
	ev.Actor = f.address("by").Value
	ev.Payload = domain.Payload{Amount: f.amount("number")}
	return f.defaulted, nil
}

func toAddress(v any) (domain.Address, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case domain.Address:
		s = string(val)
	case []byte:
		if len(val) != 20 {
			return domain.UnknownAddress, false
		}
		s = hexutil.Encode(val)
	case fmt.Stringer:
		s = val.String()
	default:
		return domain.UnknownAddress, false
	}
	a := domain.NormalizeAddress(s)
	return a, a.IsKnown()
}

func toBigInt(v any) (*big.Int, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return nil, false
		}
		n, _ := big.NewFloat(val).Int(nil)
		return n, true
	case uint32:
		return big.NewInt(int64(val)), true
	case int32:
		return big.NewInt(int64(val)), true
	}
	n, err := ethabi.ToBigInt(v)
	if err != nil {
		return nil, false
	}
	return n, true
}
