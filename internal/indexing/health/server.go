package health

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/dappwatch/internal/core/domain"
	"github.com/vietddude/dappwatch/internal/core/txn"
	"github.com/vietddude/dappwatch/internal/indexing/projection"
)

// Server provides HTTP endpoints for health, snapshot and transaction status.
type Server struct {
	monitor *Monitor
	server  *http.Server
}

// NewServer creates a new status server.
func NewServer(monitor *Monitor, port int) *Server {
	s := &Server{monitor: monitor}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes, for embedding or tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

// SnapshotView is the JSON shape of /snapshot.
type SnapshotView struct {
	Generation     uint64                 `json:"generation"`
	RefreshedAt    time.Time              `json:"refreshed_at"`
	Head           uint64                 `json:"head,omitempty"`
	Jobs           []domain.Job           `json:"jobs"`
	Ledger         []domain.LedgerEntry   `json:"ledger"`
	Balances       map[string]string      `json:"balances"`
	Counter        string                 `json:"counter,omitempty"`
	CounterHistory []domain.CounterChange `json:"counter_history"`
	Anomalies      []domain.Anomaly       `json:"anomalies"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.model.Get()
	view := SnapshotView{
		Generation:     snap.Generation,
		RefreshedAt:    snap.RefreshedAt,
		Head:           snap.Head,
		Jobs:           snap.Projection.JobList(),
		Ledger:         projection.DisplayLedger(snap.Projection.LedgerHistory()),
		Balances:       make(map[string]string, len(snap.Balances)),
		CounterHistory: snap.Projection.CounterHistory(),
		Anomalies:      snap.Projection.Anomalies,
	}
	for account, b := range snap.Balances {
		view.Balances[account.String()] = weiString(b)
	}
	if snap.Counter != nil {
		view.Counter = snap.Counter.String()
	}
	writeJSON(w, http.StatusOK, view)
}

func weiString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// TransactionView is one entry of /transactions.
type TransactionView struct {
	domain.TransactionHandle
	Description string `json:"description"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	handles := s.monitor.txs.List()
	views := make([]TransactionView, len(handles))
	for i, h := range handles {
		views[i] = TransactionView{TransactionHandle: h, Description: txn.StatusDescription(h.Status)}
	}
	writeJSON(w, http.StatusOK, struct {
		Transactions []TransactionView `json:"transactions"`
		History      []txn.Transition  `json:"history"`
	}{
		Transactions: views,
		History:      s.monitor.txs.History(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snap, err := s.monitor.model.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"generation": snap.Generation})
}
