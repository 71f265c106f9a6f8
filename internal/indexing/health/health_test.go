package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/core/txn"
	"github.com/vietddude/dappwatch/internal/indexing/projection"
	"github.com/vietddude/dappwatch/internal/indexing/readmodel"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// =============================================================================
// Stubs
// =============================================================================

type stubModel struct {
	snap       *readmodel.Snapshot
	status     readmodel.Status
	refreshErr error
	refreshed  int
}

func (s *stubModel) Get() *readmodel.Snapshot { return s.snap }
func (s *stubModel) Status() readmodel.Status { return s.status }
func (s *stubModel) Refresh(ctx context.Context) (*readmodel.Snapshot, error) {
	s.refreshed++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.snap, nil
}

type stubTxs struct {
	list []domain.TransactionHandle
}

func (s *stubTxs) List() []domain.TransactionHandle { return s.list }
func (s *stubTxs) History() []txn.Transition        { return nil }

type stubProviders struct {
	stats []routing.ProviderStats
}

func (s *stubProviders) ProviderStats() []routing.ProviderStats { return s.stats }

func snapshot() *readmodel.Snapshot {
	alice := domain.NormalizeAddress("0x00000000000000000000000000000000000000a1")
	p := projection.Reduce([]domain.Event{{
		Kind:     domain.EventKindJobAdded,
		EntityID: "0",
		Actor:    alice,
		Payload: domain.Payload{
			Description: domain.Present("paint"),
			Amount:      domain.Present(big.NewInt(10)),
		},
		BlockNumber: 1,
	}})
	return &readmodel.Snapshot{
		Generation: 3,
		Projection: p,
		Balances:   map[domain.Address]*big.Int{alice: big.NewInt(100)},
		Counter:    big.NewInt(42),
		Head:       9,
	}
}

// =============================================================================
// Monitor Tests
// =============================================================================

func TestMonitor_CheckHealth(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		status    readmodel.Status
		providers []routing.ProviderStats
		want      SystemStatus
	}{
		{"healthy", readmodel.Status{Generation: 3, LastSuccess: now}, nil, StatusHealthy},
		{"never refreshed", readmodel.Status{LastError: "node down"}, nil, StatusCritical},
		{"last refresh failed", readmodel.Status{Generation: 3, LastSuccess: now, LastError: "node down"}, nil, StatusDegraded},
		{"stale", readmodel.Status{Generation: 3, LastSuccess: now.Add(-time.Hour)}, nil, StatusDegraded},
		{"one circuit open", readmodel.Status{Generation: 3, LastSuccess: now},
			[]routing.ProviderStats{{Name: "a", CircuitOpen: true}, {Name: "b"}}, StatusDegraded},
		{"all circuits open", readmodel.Status{Generation: 3, LastSuccess: now},
			[]routing.ProviderStats{{Name: "a", CircuitOpen: true}}, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var providers ProviderStats
			if tt.providers != nil {
				providers = &stubProviders{stats: tt.providers}
			}
			m := NewMonitor("s1", &stubModel{snap: snapshot(), status: tt.status}, &stubTxs{}, providers, time.Minute)
			m.now = func() time.Time { return now }

			report := m.CheckHealth(context.Background())
			assert.Equal(t, tt.want, report.SystemStatus)
			assert.Equal(t, "s1", report.SessionID)
		})
	}
}

func TestMonitor_CountsTransactions(t *testing.T) {
	txs := &stubTxs{list: []domain.TransactionHandle{
		{Hash: "0x1", Status: domain.TxStatusConfirming},
		{Hash: "0x2", Status: domain.TxStatusFailed},
		{Hash: "0x3", Status: domain.TxStatusConfirmed},
	}}
	m := NewMonitor("s1", &stubModel{snap: snapshot()}, txs, nil, 0)
	report := m.CheckHealth(context.Background())
	assert.Equal(t, 1, report.Refresh.Pending)
	assert.Equal(t, 1, report.Refresh.FailedWrites)
}

// =============================================================================
// Server Tests
// =============================================================================

func TestServer_Health(t *testing.T) {
	model := &stubModel{snap: snapshot(), status: readmodel.Status{LastError: "boom"}}
	s := NewServer(NewMonitor("s1", model, &stubTxs{}, nil, 0), 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "critical", body["status"])
}

func TestServer_Snapshot(t *testing.T) {
	model := &stubModel{snap: snapshot()}
	s := NewServer(NewMonitor("s1", model, &stubTxs{}, nil, 0), 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view SnapshotView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, uint64(3), view.Generation)
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, "0", view.Jobs[0].ID)
	assert.Equal(t, "100", view.Balances["0x00000000000000000000000000000000000000a1"])
	assert.Equal(t, "42", view.Counter)
}

func TestServer_Refresh(t *testing.T) {
	model := &stubModel{snap: snapshot()}
	s := NewServer(NewMonitor("s1", model, &stubTxs{}, nil, 0), 0)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 0, model.refreshed)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"generation":3}`, rec.Body.String())

	model.refreshErr = errors.New("node down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "node down")
}

func TestServer_Transactions(t *testing.T) {
	txs := &stubTxs{list: []domain.TransactionHandle{{Hash: "0xabc", Status: domain.TxStatusConfirmed}}}
	s := NewServer(NewMonitor("s1", &stubModel{snap: snapshot()}, txs, nil, 0), 0)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hash":"0xabc"`)
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
	assert.Contains(t, rec.Body.String(), `"description":"Confirmed - mined successfully"`)
}
