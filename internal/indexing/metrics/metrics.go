package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks RPC calls per provider and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dappwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dappwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dappwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ChainLatestBlock tracks the chain head seen by the last refresh
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dappwatch_chain_latest_block",
			Help: "Latest block height observed at refresh time",
		},
	)

	// RefreshesTotal counts read model refreshes by outcome (committed, failed, coalesced)
	RefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dappwatch_refreshes_total",
			Help: "Total number of read model refreshes",
		},
		[]string{"outcome"},
	)

	// RefreshDuration tracks how long a refresh takes from fetch to commit
	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dappwatch_refresh_duration_seconds",
			Help:    "Read model refresh duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SnapshotGeneration is the generation of the committed snapshot
	SnapshotGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dappwatch_snapshot_generation",
			Help: "Generation of the currently committed snapshot",
		},
	)

	// EventsProjected tracks normalized events per kind in the committed snapshot
	EventsProjected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dappwatch_events_projected",
			Help: "Number of normalized events folded into the committed snapshot",
		},
		[]string{"kind"},
	)

	// AnomaliesTotal counts reported anomalies per kind
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dappwatch_anomalies_total",
			Help: "Total number of event anomalies reported",
		},
		[]string{"kind"},
	)

	// TransactionsTotal counts tracked transaction transitions by target status
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dappwatch_transactions_total",
			Help: "Total number of transaction state transitions",
		},
		[]string{"status"},
	)

	// DBQueryDuration tracks log store query latency
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dappwatch_db_query_duration_seconds",
			Help:    "Log store query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// DBConnectionPoolUsage tracks open connections of the log store pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dappwatch_db_connection_pool_usage",
			Help: "Fraction of the log store connection pool in use",
		},
	)
)
