package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vietddude/ticketchain/internal/metrics"
)

// HTTPProvider implements Provider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	*BaseProvider
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	ID     uint64    `json:"id"`
	Result any       `json:"result"`
	Error  *RPCError `json:"error"`
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(name),
		endpoint:     endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Endpoint returns the URL the provider posts to.
func (p *HTTPProvider) Endpoint() string {
	return p.endpoint
}

// Call makes a single JSON-RPC call. Errors returned by the node are
// *RPCError; throttling is *ThrottleError.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	if params == nil {
		params = []any{}
	}
	body, latency, err := p.post(ctx, method, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      p.nextID.Add(1),
	})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.RecordFailure(method, "decode")
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.Error != nil {
		if p.Monitor.DetectThrottlePattern(resp.Error.Message) {
			p.Monitor.RecordThrottle(429, "")
			p.RecordFailure(method, "throttle")
			return nil, &ThrottleError{Detail: resp.Error.Message}
		}
		// The node answered; only the request itself was refused.
		p.RecordSuccess(method, latency)
		metrics.RPCErrorsTotal.WithLabelValues(p.Name, "rpc").Inc()
		return nil, resp.Error
	}

	p.RecordSuccess(method, latency)
	return resp.Result, nil
}

// BatchCall makes multiple RPC calls in one request. Responses are matched
// to requests by id; an entry missing from the reply carries an error.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	batch := make([]rpcRequest, len(requests))
	index := make(map[uint64]int, len(requests))
	for i, req := range requests {
		params := req.Params
		if params == nil {
			params = []any{}
		}
		id := p.nextID.Add(1)
		batch[i] = rpcRequest{JSONRPC: "2.0", Method: req.Method, Params: params, ID: id}
		index[id] = i
	}

	body, latency, err := p.post(ctx, "batch", batch)
	if err != nil {
		return nil, err
	}

	var batchResp []rpcResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		// Some nodes answer a rejected batch with a single error object.
		var single rpcResponse
		if json.Unmarshal(body, &single) == nil && single.Error != nil {
			p.RecordSuccess("batch", latency)
			return nil, single.Error
		}
		p.RecordFailure("batch", "decode")
		return nil, fmt.Errorf("parse batch response: %w", err)
	}

	responses := make([]BatchResponse, len(requests))
	seen := make([]bool, len(requests))
	for _, r := range batchResp {
		i, ok := index[r.ID]
		if !ok {
			continue
		}
		seen[i] = true
		if r.Error != nil {
			responses[i] = BatchResponse{Error: r.Error}
			continue
		}
		responses[i] = BatchResponse{Result: r.Result}
	}
	for i, ok := range seen {
		if !ok {
			responses[i] = BatchResponse{Error: fmt.Errorf("batch: no response for %s", requests[i].Method)}
		}
	}

	p.RecordSuccess("batch", latency)
	return responses, nil
}

func (p *HTTPProvider) post(ctx context.Context, method string, payload any) ([]byte, time.Duration, error) {
	start := time.Now()

	// Pre-call checks
	switch p.Monitor.CheckProviderStatus() {
	case StatusThrottled:
		return nil, 0, &ThrottleError{StatusCode: 429, RetryAfter: p.Monitor.GetRetryAfter().String()}
	case StatusBlocked:
		return nil, 0, &ThrottleError{StatusCode: 403}
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.RecordFailure(method, "transport")
		return nil, 0, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		p.Monitor.RecordThrottle(429, retryAfter)
		p.RecordFailure(method, "throttle")
		return nil, latency, &ThrottleError{StatusCode: 429, RetryAfter: retryAfter}
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(403, "")
		p.RecordFailure(method, "blocked")
		return nil, latency, &ThrottleError{StatusCode: 403}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.RecordFailure(method, "transport")
		return nil, latency, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if p.Monitor.DetectThrottlePattern(string(body)) {
			p.Monitor.RecordThrottle(429, "")
			p.RecordFailure(method, "throttle")
			return nil, latency, &ThrottleError{Detail: string(body)}
		}
		// JSON-RPC servers may put an error object in a non-200 reply.
		var rr rpcResponse
		if json.Unmarshal(body, &rr) == nil && rr.Error != nil {
			return body, latency, nil
		}
		p.RecordFailure(method, "http")
		return nil, latency, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return body, latency, nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
