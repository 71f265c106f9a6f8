package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/core/txn"
	"github.com/vietddude/dappwatch/internal/indexing/readmodel"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// ReadModel is the part of the read model the monitor and server use.
type ReadModel interface {
	Get() *readmodel.Snapshot
	Status() readmodel.Status
	Refresh(ctx context.Context) (*readmodel.Snapshot, error)
}

// Transactions is the part of the transaction tracker the server exposes.
type Transactions interface {
	List() []domain.TransactionHandle
	History() []txn.Transition
}

// ProviderStats reports RPC provider state; nil when the chain has no providers.
type ProviderStats interface {
	ProviderStats() []routing.ProviderStats
}

// Monitor aggregates health status from the session's components.
type Monitor struct {
	sessionID       string
	model           ReadModel
	txs             Transactions
	providers       ProviderStats
	refreshInterval time.Duration
	now             func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. providers may be nil.
func NewMonitor(sessionID string, model ReadModel, txs Transactions, providers ProviderStats, refreshInterval time.Duration) *Monitor {
	return &Monitor{
		sessionID:       sessionID,
		model:           model,
		txs:             txs,
		providers:       providers,
		refreshInterval: refreshInterval,
		now:             time.Now,
	}
}

// CheckHealth builds the health report. Results are cached for one second.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < time.Second {
		return *m.lastReport
	}

	st := m.model.Status()
	snap := m.model.Get()

	refresh := RefreshHealth{
		Status:     StatusHealthy,
		Generation: st.Generation,
		LastError:  st.LastError,
		Anomalies:  len(snap.Projection.Anomalies),
	}
	if !st.LastSuccess.IsZero() {
		refresh.Staleness = now.Sub(st.LastSuccess)
	}
	for _, h := range m.txs.List() {
		switch h.Status {
		case domain.TxStatusSubmitted, domain.TxStatusConfirming:
			refresh.Pending++
		case domain.TxStatusFailed:
			refresh.FailedWrites++
		}
	}

	// Evaluate Status
	switch {
	case st.Generation == 0 && st.LastError != "":
		refresh.Status = StatusCritical
	case st.LastError != "":
		refresh.Status = StatusDegraded
	case m.refreshInterval > 0 && refresh.Staleness > 3*m.refreshInterval:
		refresh.Status = StatusDegraded
	}

	report := HealthReport{
		SystemStatus: refresh.Status,
		SessionID:    m.sessionID,
		Refresh:      refresh,
	}

	if m.providers != nil {
		report.Providers = m.providers.ProviderStats()
		open := 0
		for _, p := range report.Providers {
			if p.CircuitOpen {
				open++
			}
		}
		if open > 0 && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
		if len(report.Providers) > 0 && open == len(report.Providers) {
			report.SystemStatus = StatusCritical
		}
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}
