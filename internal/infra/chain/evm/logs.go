package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// SubscribeToLog streams logs of address with topic0 eventTopic, starting
// at fromBlock. Logs already mined are fetched with eth_getLogs; newer ones
// arrive over eth_subscribe when a websocket endpoint is configured, else
// by polling eth_getLogs. onMatch is called from a single goroutine, once
// per log.
func (g *Gateway) SubscribeToLog(
	ctx context.Context,
	address domain.Address,
	eventTopic string,
	fromBlock uint64,
	onMatch func(domain.Log),
) (func(), error) {
	if !domain.IsValidAddress(string(address)) {
		return nil, domain.NewError(domain.KindInvalidInput, "subscribe logs", fmt.Errorf("invalid address %q", address))
	}

	var (
		stream      <-chan json.RawMessage
		unsubscribe = func() {}
	)
	if g.rpc.CanSubscribe() {
		ch, cancel, err := g.rpc.Subscribe(ctx, []any{"logs", map[string]any{
			"address": string(address),
			"topics":  []any{eventTopic},
		}})
		if err != nil {
			g.log.Warn("log subscription failed, polling instead", "address", address, "error", err)
		} else {
			stream, unsubscribe = ch, cancel
		}
	}

	ctx, stop := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			unsubscribe()
		})
	}

	w := &logWatcher{
		g:       g,
		address: address,
		topic:   eventTopic,
		next:    fromBlock,
		seen:    make(map[string]struct{}),
		onMatch: onMatch,
	}
	go func() {
		defer cancel()
		w.run(ctx, stream)
	}()
	return cancel, nil
}

type logWatcher struct {
	g       *Gateway
	address domain.Address
	topic   string
	next    uint64
	seen    map[string]struct{}
	onMatch func(domain.Log)
}

func (w *logWatcher) run(ctx context.Context, stream <-chan json.RawMessage) {
	w.poll(ctx)

	ticker := time.NewTicker(w.g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				// Subscription closed; keep going by polling.
				stream = nil
				continue
			}
			var l rpcLog
			if err := json.Unmarshal(msg, &l); err != nil {
				w.g.log.Debug("undecodable log notification", "error", err)
				continue
			}
			w.deliver(l)
		case <-ticker.C:
			if stream == nil {
				w.poll(ctx)
			}
		}
	}
}

func (w *logWatcher) poll(ctx context.Context) {
	res, err := w.g.rpc.Call(ctx, "eth_getLogs", []any{map[string]any{
		"address":   string(w.address),
		"topics":    []any{w.topic},
		"fromBlock": hexutil.EncodeUint64(w.next),
		"toBlock":   "latest",
	}})
	if err != nil {
		if ctx.Err() == nil {
			w.g.log.Warn("eth_getLogs failed", "address", w.address, "error", err)
		}
		return
	}
	var logs []rpcLog
	if err := decodeResult(res, &logs); err != nil {
		w.g.log.Warn("eth_getLogs decode failed", "error", err)
		return
	}
	for _, l := range logs {
		w.deliver(l)
	}
}

func (w *logWatcher) deliver(l rpcLog) {
	if l.Removed {
		return
	}
	d := l.toDomain()
	key := fmt.Sprintf("%s:%d", d.TxHash, d.LogIndex)
	if _, dup := w.seen[key]; dup {
		return
	}
	w.seen[key] = struct{}{}
	if d.BlockNumber > w.next {
		w.next = d.BlockNumber
	}
	w.onMatch(d)
}
