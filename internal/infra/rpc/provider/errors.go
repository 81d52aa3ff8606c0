package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Well-known JSON-RPC and EIP-1193 error codes.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeExecutionError  = 3
	CodeUserRejected    = 4001
	CodeUnauthorized    = 4100
	CodeServerErrorBase = -32000
)

// RPCError is a JSON-RPC error object as returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// UserRejected reports whether the signer declined the request.
func (e *RPCError) UserRejected() bool {
	if e.Code == CodeUserRejected {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

// Reverted reports whether the node refused the call because execution reverted.
func (e *RPCError) Reverted() bool {
	return e.Code == CodeExecutionError || strings.Contains(strings.ToLower(e.Message), "execution reverted")
}

// InsufficientFunds reports whether the sender cannot pay for the transaction.
func (e *RPCError) InsufficientFunds() bool {
	return strings.Contains(strings.ToLower(e.Message), "insufficient funds")
}

// AsRPCError extracts an *RPCError from err.
func AsRPCError(err error) (*RPCError, bool) {
	var re *RPCError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ThrottleError is returned when the provider is rate limiting or blocking requests.
type ThrottleError struct {
	StatusCode int
	RetryAfter string
	Detail     string
}

func (e *ThrottleError) Error() string {
	switch {
	case e.StatusCode == 403:
		return "ip blocked (403)"
	case e.StatusCode == 429:
		return fmt.Sprintf("rate limited (429), retry after: %s", e.RetryAfter)
	default:
		return fmt.Sprintf("throttle detected: %s", e.Detail)
	}
}
