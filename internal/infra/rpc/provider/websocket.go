package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subscriptionBuffer = 64
	unsubscribeTimeout = 5 * time.Second
)

// ErrConnectionClosed is returned for calls on a closed websocket.
var ErrConnectionClosed = errors.New("ws: connection closed")

// WSProvider implements Provider over a WebSocket connection and adds
// eth_subscribe support. The connection is dialled lazily on first use.
type WSProvider struct {
	*BaseProvider
	url    string
	nextID atomic.Uint64

	mu   sync.Mutex // serialises writes
	conn *websocket.Conn

	connOnce sync.Once
	connErr  error

	pendMu  sync.Mutex
	pending map[uint64]chan rpcResponse

	subMu   sync.Mutex
	subs    map[string]chan json.RawMessage
	early   map[string][]json.RawMessage
	closed  chan struct{}
	closeMu sync.Once
}

// NewWSProvider creates a websocket provider for url.
func NewWSProvider(name, url string) *WSProvider {
	return &WSProvider{
		BaseProvider: NewBaseProvider(name),
		url:          url,
		pending:      make(map[uint64]chan rpcResponse),
		subs:         make(map[string]chan json.RawMessage),
		early:        make(map[string][]json.RawMessage),
		closed:       make(chan struct{}),
	}
}

func (p *WSProvider) connect(ctx context.Context) error {
	p.connOnce.Do(func() {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, p.url, nil)
		if err != nil {
			p.connErr = fmt.Errorf("ws: dial %s: %w", p.Name, err)
			p.RecordFailure("dial", "transport")
			return
		}
		p.conn = conn
		go p.readLoop()
	})
	return p.connErr
}

// Call sends a JSON-RPC request and waits for its response.
func (p *WSProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	raw, err := p.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return raw.Result, nil
}

func (p *WSProvider) call(ctx context.Context, method string, params []any) (rpcResponse, error) {
	if err := p.connect(ctx); err != nil {
		return rpcResponse{}, err
	}
	if params == nil {
		params = []any{}
	}

	start := time.Now()
	id := p.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	p.pendMu.Lock()
	p.pending[id] = ch
	p.pendMu.Unlock()
	defer func() {
		p.pendMu.Lock()
		delete(p.pending, id)
		p.pendMu.Unlock()
	}()

	p.mu.Lock()
	err := p.conn.WriteJSON(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	p.mu.Unlock()
	if err != nil {
		p.RecordFailure(method, "transport")
		return rpcResponse{}, fmt.Errorf("ws: write: %w", err)
	}

	select {
	case <-ctx.Done():
		return rpcResponse{}, ctx.Err()
	case <-p.closed:
		p.RecordFailure(method, "transport")
		return rpcResponse{}, ErrConnectionClosed
	case resp := <-ch:
		p.RecordSuccess(method, time.Since(start))
		if resp.Error != nil {
			return rpcResponse{}, resp.Error
		}
		return resp, nil
	}
}

// BatchCall issues the requests one by one over the shared connection.
func (p *WSProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	out := make([]BatchResponse, len(requests))
	for i, req := range requests {
		res, err := p.Call(ctx, req.Method, req.Params)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out[i] = BatchResponse{Result: res, Error: err}
	}
	return out, nil
}

// Subscribe calls eth_subscribe with params and streams the notification
// results. The returned cancel func unsubscribes and closes the channel.
func (p *WSProvider) Subscribe(ctx context.Context, params []any) (<-chan json.RawMessage, func(), error) {
	res, err := p.call(ctx, "eth_subscribe", params)
	if err != nil {
		return nil, nil, err
	}
	subID, ok := res.Result.(string)
	if !ok || subID == "" {
		return nil, nil, fmt.Errorf("ws: unexpected subscription id %v", res.Result)
	}

	ch := make(chan json.RawMessage, subscriptionBuffer)
	p.subMu.Lock()
	for _, msg := range p.early[subID] {
		ch <- msg
	}
	delete(p.early, subID)
	p.subs[subID] = ch
	p.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, subID)
			close(ch)
			p.subMu.Unlock()

			select {
			case <-p.closed:
				return
			default:
			}
			uctx, done := context.WithTimeout(context.Background(), unsubscribeTimeout)
			defer done()
			_, _ = p.Call(uctx, "eth_unsubscribe", []any{subID})
		})
	}
	return ch, cancel, nil
}

// Close terminates the connection.
func (p *WSProvider) Close() error {
	p.closeMu.Do(func() { close(p.closed) })
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// readLoop routes responses by request id and notifications by
// subscription id.
func (p *WSProvider) readLoop() {
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			p.closeMu.Do(func() { close(p.closed) })
			return
		}

		var envelope struct {
			ID     uint64    `json:"id"`
			Result any       `json:"result"`
			Error  *RPCError `json:"error"`
			Method string    `json:"method"`
			Params struct {
				Subscription string          `json:"subscription"`
				Result       json.RawMessage `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}

		if envelope.Method == "eth_subscription" {
			p.notify(envelope.Params.Subscription, envelope.Params.Result)
			continue
		}

		p.pendMu.Lock()
		ch, ok := p.pending[envelope.ID]
		p.pendMu.Unlock()
		if ok {
			ch <- rpcResponse{ID: envelope.ID, Result: envelope.Result, Error: envelope.Error}
		}
	}
}

func (p *WSProvider) notify(subID string, result json.RawMessage) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	ch, ok := p.subs[subID]
	if !ok {
		// Notification raced ahead of the eth_subscribe response.
		if len(p.early[subID]) < subscriptionBuffer {
			p.early[subID] = append(p.early[subID], result)
		}
		return
	}
	select {
	case ch <- result:
	default:
	}
}
