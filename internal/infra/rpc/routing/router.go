// Package routing handles provider selection, failover and retry logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: ordered failover with a per-provider circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"errors"
	"sync"
	"time"

	"github.com/vietddude/dappwatch/internal/infra/rpc/provider"
)

// ErrNoProviders is returned when no provider is registered.
var ErrNoProviders = errors.New("no rpc providers configured")

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider
	AddProvider(p provider.Provider)

	// GetProvider returns the preferred provider
	GetProvider() (provider.Provider, error)

	// GetProviders returns providers in preference order
	GetProviders() []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

// ProviderStats is the router's view of one provider.
type ProviderStats struct {
	Name             string        `json:"name"`
	SuccessCount     int           `json:"success_count"`
	FailureCount     int           `json:"failure_count"`
	AverageLatency   time.Duration `json:"average_latency"`
	ConsecutiveFails int           `json:"consecutive_fails"`
	CircuitOpen      bool          `json:"circuit_open"`
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpen      bool
}

// DefaultRouter keeps providers in registration order and moves providers
// with an open circuit to the back until their cooldown passes.
type DefaultRouter struct {
	mu             sync.RWMutex
	providers      []provider.Provider
	providerHealth map[string]*providerMetrics

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewRouter creates a router that opens a provider's circuit after 5
// consecutive failures for 30 seconds.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		providerHealth:   make(map[string]*providerMetrics),
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
}

// AddProvider registers a provider.
func (r *DefaultRouter) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.providerHealth[p.GetName()] = &providerMetrics{}
}

// GetProvider returns the first provider in preference order.
func (r *DefaultRouter) GetProvider() (provider.Provider, error) {
	providers := r.GetProviders()
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return providers[0], nil
}

// GetProviders returns healthy providers first, then the rest as a last resort.
func (r *DefaultRouter) GetProviders() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := make([]provider.Provider, 0, len(r.providers))
	var degraded []provider.Provider
	for _, p := range r.providers {
		if r.usableLocked(p) {
			healthy = append(healthy, p)
		} else {
			degraded = append(degraded, p)
		}
	}
	return append(healthy, degraded...)
}

func (r *DefaultRouter) usableLocked(p provider.Provider) bool {
	if !p.IsAvailable() {
		return false
	}
	m := r.providerHealth[p.GetName()]
	if m == nil || !m.circuitOpen {
		return true
	}
	return r.now().Sub(m.lastFailureAt) >= r.cooldown
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}
	m.successCount++
	m.totalLatency += latency
	m.consecutiveFails = 0
	m.circuitOpen = false
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}
	m.failureCount++
	m.lastFailureAt = r.now()
	m.consecutiveFails++
	if m.consecutiveFails >= r.failureThreshold {
		m.circuitOpen = true
	}
}

// Stats returns per-provider routing statistics in registration order.
func (r *DefaultRouter) Stats() []ProviderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderStats, 0, len(r.providers))
	for _, p := range r.providers {
		m := r.providerHealth[p.GetName()]
		s := ProviderStats{
			Name:             p.GetName(),
			SuccessCount:     m.successCount,
			FailureCount:     m.failureCount,
			ConsecutiveFails: m.consecutiveFails,
			CircuitOpen:      m.circuitOpen,
		}
		if m.successCount > 0 {
			s.AverageLatency = m.totalLatency / time.Duration(m.successCount)
		}
		out = append(out, s)
	}
	return out
}
