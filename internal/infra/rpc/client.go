package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/ticketchain/internal/infra/rpc/provider"
	"github.com/vietddude/ticketchain/internal/infra/rpc/routing"
)

// ErrNoSubscriptions is returned by Subscribe when no websocket endpoint is configured.
var ErrNoSubscriptions = errors.New("rpc: no websocket endpoint for subscriptions")

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
//
// Reads fail over across providers and retry transient errors. Writes
// (Send) go to exactly one provider once: a resubmitted transaction is a
// second transaction.
type Client struct {
	providers []provider.Provider
	ws        *provider.WSProvider
	retry     routing.RetryConfig
	log       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig overrides the retry policy used for reads.
func WithRetryConfig(cfg routing.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithWebSocket sets the provider used for eth_subscribe.
func WithWebSocket(ws *provider.WSProvider) ClientOption {
	return func(c *Client) { c.ws = ws }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a new RPC client over providers, tried in order.
func NewClient(providers []provider.Provider, opts ...ClientOption) *Client {
	c := &Client{
		providers: providers,
		retry:     routing.DefaultRetryConfig,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call makes a read-only RPC call with automatic failover and retry.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	res, err := routing.CallWithFailover(ctx, c.providers, method, params, c.retry)
	if err != nil {
		c.log.Debug("rpc call failed", "method", method, "error", err)
	}
	return res, err
}

// BatchCall sends requests as one batch to the first provider that accepts it.
func (c *Client) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		res, err := p.BatchCall(ctx, requests)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if routing.ClassifyError(err) == routing.ActionFatal {
			return nil, err
		}
		c.log.Warn("batch call failed, trying next provider", "provider", p.GetName(), "error", err)
	}
	if lastErr == nil {
		return nil, routing.ErrNoProviders
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Send submits a state-changing request exactly once to the first
// available provider.
func (c *Client) Send(ctx context.Context, method string, params []any) (any, error) {
	for _, p := range c.providers {
		if !p.IsAvailable() {
			continue
		}
		c.log.Debug("rpc send", "provider", p.GetName(), "method", method)
		return p.Call(ctx, method, params)
	}
	return nil, routing.ErrNoProviders
}

// CanSubscribe reports whether a websocket endpoint is configured.
func (c *Client) CanSubscribe() bool {
	return c.ws != nil
}

// Subscribe opens an eth_subscribe stream.
func (c *Client) Subscribe(ctx context.Context, params []any) (<-chan json.RawMessage, func(), error) {
	if c.ws == nil {
		return nil, nil, ErrNoSubscriptions
	}
	return c.ws.Subscribe(ctx, params)
}

// ProviderStats returns the health of each provider keyed by name.
func (c *Client) ProviderStats() map[string]provider.HealthStatus {
	out := make(map[string]provider.HealthStatus, len(c.providers)+1)
	for _, p := range c.providers {
		out[p.GetName()] = p.GetHealth()
	}
	if c.ws != nil {
		out[c.ws.GetName()] = c.ws.GetHealth()
	}
	return out
}

// Close closes every provider.
func (c *Client) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.ws != nil {
		if err := c.ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
