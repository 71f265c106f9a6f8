// Package rpc provides a resilient JSON-RPC client for EVM nodes.
//
// This package offers:
//   - Multiple provider support with ordered failover
//   - Retry with exponential backoff for transport failures
//   - Single-attempt calls for non-idempotent writes
//   - Health monitoring and prometheus metrics
//
// # Quick Start
//
//	import "github.com/vietddude/dappwatch/internal/infra/rpc"
//
//	router := rpc.NewRouter()
//	router.AddProvider(rpc.NewHTTPProvider("local", "http://127.0.0.1:8545", 30*time.Second))
//
//	client := rpc.NewClient(router, rpc.DefaultRetryConfig)
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - HTTPProvider and monitoring
//   - routing/  - provider selection, retry and failover
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/dappwatch/internal/infra/rpc/provider"
	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// RPCError is a node-side JSON-RPC error.
type RPCError = provider.RPCError

// HTTPError is a non-200 transport response.
type HTTPError = provider.HTTPError

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// Router handles provider selection and health tracking.
type Router = routing.Router

// DefaultRouter implements ordered failover with a circuit breaker.
type DefaultRouter = routing.DefaultRouter

// ProviderStats is the router's view of one provider.
type ProviderStats = routing.ProviderStats

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// ErrNoProviders is returned when no provider is registered.
var ErrNoProviders = routing.ErrNoProviders

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}
