// Package rpc provides a resilient JSON-RPC client for EVM networks.
//
// Reads fail over across configured HTTP endpoints with retry on
// transient errors; writes are sent once; log subscriptions go over an
// optional websocket endpoint.
//
//	client := rpc.NewClient(
//	    []rpc.Provider{rpc.NewHTTPProvider("lisk-sepolia", url, 30*time.Second)},
//	    rpc.WithWebSocket(rpc.NewWSProvider("lisk-sepolia-ws", wsURL)),
//	)
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// The package is organized into sub-packages:
//
//   - provider/ - transports (HTTP, WebSocket), error types, monitoring
//   - routing/  - error classification, retry and failover
package rpc

import (
	"time"

	"github.com/vietddude/ticketchain/internal/infra/rpc/provider"
	"github.com/vietddude/ticketchain/internal/infra/rpc/routing"
)

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// WSProvider implements Provider over a websocket with subscriptions.
type WSProvider = provider.WSProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// BatchRequest represents a single request in a batch call.
type BatchRequest = provider.BatchRequest

// BatchResponse represents a single response from a batch call.
type BatchResponse = provider.BatchResponse

// RPCError is an error object returned by the node.
type RPCError = provider.RPCError

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// JSON-RPC error codes the callers branch on.
const (
	CodeInvalidRequest = provider.CodeInvalidRequest
	CodeMethodNotFound = provider.CodeMethodNotFound
	CodeInvalidParams  = provider.CodeInvalidParams
	CodeUserRejected   = provider.CodeUserRejected
)

// AsRPCError extracts an *RPCError from err.
var AsRPCError = provider.AsRPCError

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// NewWSProvider creates a websocket provider.
func NewWSProvider(name, url string) *WSProvider {
	return provider.NewWSProvider(name, url)
}
