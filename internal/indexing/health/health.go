// Package health provides session health monitoring and the status server.
package health

import (
	"time"

	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// RefreshHealth describes the read model's refresh activity.
type RefreshHealth struct {
	Status       SystemStatus  `json:"status"`
	Generation   uint64        `json:"generation"`
	LastError    string        `json:"last_error,omitempty"`
	Staleness    time.Duration `json:"staleness"`
	Anomalies    int           `json:"anomalies"`
	Pending      int           `json:"pending_transactions"`
	FailedWrites int           `json:"failed_transactions"`
}

// HealthReport contains the full session health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	SessionID    string                  `json:"session_id"`
	Refresh      RefreshHealth           `json:"refresh"`
	Providers    []routing.ProviderStats `json:"providers,omitempty"`
}
