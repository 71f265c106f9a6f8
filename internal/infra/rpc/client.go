package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/dappwatch/internal/infra/rpc/routing"
)

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	router routing.Router
	retry  RetryConfig
	log    *slog.Logger
}

// NewClient creates a new RPC client.
func NewClient(router routing.Router, retry RetryConfig) *Client {
	return &Client{
		router: router,
		retry:  retry,
		log:    slog.Default().With("component", "rpc"),
	}
}

// Call makes an idempotent RPC call with retry and provider failover.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	result, err := routing.CallWithRetryAndFailover(ctx, c.router, method, params, c.retry)
	if err != nil {
		c.log.Debug("rpc call failed", "method", method, "action", routing.ClassifyError(err).String(), "error", err)
		return nil, err
	}
	return result, nil
}

// CallOnce makes exactly one attempt against the preferred provider.
// Use it for calls that must never be repeated, such as sending a transaction.
func (c *Client) CallOnce(ctx context.Context, method string, params []any) (any, error) {
	p, err := c.router.GetProvider()
	if err != nil {
		return nil, err
	}
	result, err := p.Call(ctx, method, params)
	if err != nil {
		if routing.ClassifyError(err) != routing.ActionFatal {
			c.router.RecordFailure(p.GetName(), err)
		}
		return nil, fmt.Errorf("%s via %s: %w", method, p.GetName(), err)
	}
	c.router.RecordSuccess(p.GetName(), 0)
	return result, nil
}

// ProviderStats returns routing statistics when the router exposes them.
func (c *Client) ProviderStats() []ProviderStats {
	if r, ok := c.router.(*routing.DefaultRouter); ok {
		return r.Stats()
	}
	return nil
}
