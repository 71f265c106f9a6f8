// Package projection folds normalized events into jobs, ledger history and
// counter history. Reduce is pure: it performs no I/O and the same events
// always produce the same projection.
package projection

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/indexing/normalize"
)

// Projection is the folded state of one event window.
type Projection struct {
	Jobs map[string]domain.Job `json:"jobs"`
	// Ledger holds each account's entries in canonical ascending order.
	Ledger map[domain.Address][]domain.LedgerEntry `json:"ledger"`
	// Counter holds counter changes in canonical ascending order.
	Counter   []domain.CounterChange `json:"counter"`
	Anomalies []domain.Anomaly       `json:"anomalies"`
}

// Empty returns a projection with no entities.
func Empty() Projection {
	return Projection{
		Jobs:   make(map[string]domain.Job),
		Ledger: make(map[domain.Address][]domain.LedgerEntry),
	}
}

// Reduce folds events into a projection. Events are folded in canonical
// (block, log index) order whatever order they are passed in.
//
// Jobs are built in three passes: every JobAdded, then every JobTaken, then
// every JobFinished. Lifecycle events that reference an unknown job or a job
// in the wrong stage are skipped and reported as anomalies.
func Reduce(events []domain.Event) Projection {
	ordered := slices.Clone(events)
	normalize.SortEvents(ordered)

	p := Empty()
	var taken, finished []domain.Event

	for _, ev := range ordered {
		switch ev.Kind {
		case domain.EventKindJobAdded:
			p.addJob(ev)
		case domain.EventKindJobTaken:
			taken = append(taken, ev)
		case domain.EventKindJobFinished:
			finished = append(finished, ev)
		case domain.EventKindDeposited, domain.EventKindWithdrawn:
			p.addLedgerEntry(ev)
		case domain.EventKindNumberChanged:
			p.Counter = append(p.Counter, domain.CounterChange{
				By:          ev.Actor,
				Value:       amountOf(ev),
				BlockNumber: ev.BlockNumber,
				LogIndex:    ev.LogIndex,
				TxHash:      ev.TxHash,
			})
		default:
			p.report(domain.AnomalyUnknownEntity, ev, "unsupported event kind")
		}
	}

	for _, ev := range taken {
		p.takeJob(ev)
	}
	for _, ev := range finished {
		p.finishJob(ev)
	}
	return p
}

func (p *Projection) report(kind domain.AnomalyKind, ev domain.Event, format string, args ...any) {
	p.Anomalies = append(p.Anomalies, domain.Anomaly{
		Kind:   kind,
		Event:  ev.Key(),
		Reason: fmt.Sprintf(format, args...),
	})
}

func (p *Projection) addJob(ev domain.Event) {
	if _, exists := p.Jobs[ev.EntityID]; exists {
		p.report(domain.AnomalyDuplicateEntity, ev, "job %s already added", ev.EntityID)
		return
	}
	p.Jobs[ev.EntityID] = domain.Job{
		ID:          ev.EntityID,
		Author:      ev.Actor,
		Description: ev.Payload.Description.Value,
		Price:       amountOf(ev),
		State:       domain.JobStateAvailable,
		AddedAt:     ev.Position(),
	}
}

func (p *Projection) takeJob(ev domain.Event) {
	job, ok := p.Jobs[ev.EntityID]
	if !ok {
		p.report(domain.AnomalyUnknownEntity, ev, "job %s was never added in this window", ev.EntityID)
		return
	}
	if ev.Position().Compare(job.AddedAt) < 0 {
		p.report(domain.AnomalyWrongStage, ev, "job %s taken before it was added", ev.EntityID)
		return
	}
	if !job.State.CanAdvance(domain.JobStateTaken) {
		p.report(domain.AnomalyWrongStage, ev, "job %s is %s, not available", ev.EntityID, job.State)
		return
	}
	pos := ev.Position()
	job.State = domain.JobStateTaken
	job.Worker = ev.Actor
	job.TakenAt = &pos
	p.Jobs[ev.EntityID] = job
}

func (p *Projection) finishJob(ev domain.Event) {
	job, ok := p.Jobs[ev.EntityID]
	if !ok {
		p.report(domain.AnomalyUnknownEntity, ev, "job %s was never added in this window", ev.EntityID)
		return
	}
	if job.State == domain.JobStateFinished {
		return
	}
	if !job.State.CanAdvance(domain.JobStateFinished) || ev.Position().Compare(*job.TakenAt) < 0 {
		p.report(domain.AnomalyWrongStage, ev, "job %s is %s, not taken", ev.EntityID, job.State)
		return
	}
	pos := ev.Position()
	job.State = domain.JobStateFinished
	job.PricePaid = amountOf(ev)
	job.FinishedAt = &pos
	p.Jobs[ev.EntityID] = job
}

func (p *Projection) addLedgerEntry(ev domain.Event) {
	amount := amountOf(ev)
	if ev.Kind == domain.EventKindWithdrawn {
		amount.Neg(amount)
	}
	p.Ledger[ev.Actor] = append(p.Ledger[ev.Actor], domain.LedgerEntry{
		Account:      ev.Actor,
		SignedAmount: amount,
		BlockNumber:  ev.BlockNumber,
		LogIndex:     ev.LogIndex,
		TxHash:       ev.TxHash,
	})
}

// amountOf returns a private copy of the event amount.
func amountOf(ev domain.Event) *big.Int {
	if ev.Payload.Amount.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(ev.Payload.Amount.Value)
}

// Job looks up one job by id.
func (p Projection) Job(id string) (domain.Job, bool) {
	j, ok := p.Jobs[id]
	return j, ok
}

// JobList returns jobs in the order they were added.
func (p Projection) JobList() []domain.Job {
	jobs := make([]domain.Job, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		jobs = append(jobs, j)
	}
	slices.SortFunc(jobs, func(a, b domain.Job) int {
		if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return jobs
}

// LedgerFor returns one account's entries, most recent first.
func (p Projection) LedgerFor(account domain.Address) []domain.LedgerEntry {
	return DisplayLedger(p.Ledger[account])
}

// LedgerHistory returns every account's entries, most recent first.
func (p Projection) LedgerHistory() []domain.LedgerEntry {
	var all []domain.LedgerEntry
	for _, entries := range p.Ledger {
		all = append(all, entries...)
	}
	return DisplayLedger(all)
}

// CounterHistory returns counter changes, most recent first.
func (p Projection) CounterHistory() []domain.CounterChange {
	out := slices.Clone(p.Counter)
	slices.SortStableFunc(out, func(a, b domain.CounterChange) int {
		return domain.Position{BlockNumber: b.BlockNumber, LogIndex: b.LogIndex}.
			Compare(domain.Position{BlockNumber: a.BlockNumber, LogIndex: a.LogIndex})
	})
	return out
}

// DisplayLedger returns a new slice ordered by block descending; entries in
// the same block are ordered by log index descending, then account.
// The input is not modified.
func DisplayLedger(entries []domain.LedgerEntry) []domain.LedgerEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b domain.LedgerEntry) int {
		if c := b.Position().Compare(a.Position()); c != 0 {
			return c
		}
		return strings.Compare(string(a.Account), string(b.Account))
	})
	return out
}
