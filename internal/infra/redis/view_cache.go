package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/metrics"
	"github.com/vietddude/ticketchain/internal/snapshot"
)

// DefaultTTL is the staleness window applied when none is configured.
const DefaultTTL = 15 * time.Second

// Store is the key/value surface the cache needs. *Client implements it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ViewCache is a snapshot.Reader that serves repeated view calls from Redis
// for a short TTL. Failed reads are never cached, and cache errors fall
// through to the wrapped reader.
type ViewCache struct {
	next  snapshot.Reader
	store Store
	chain string
	ttl   time.Duration
	log   *slog.Logger
}

var _ snapshot.Reader = (*ViewCache)(nil)

// NewViewCache wraps next with a cache scoped to chain.
func NewViewCache(next snapshot.Reader, store Store, chain domain.ChainID, ttl time.Duration, log *slog.Logger) *ViewCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &ViewCache{next: next, store: store, chain: string(chain), ttl: ttl, log: log}
}

func viewPrefix(chain string) string {
	return "ticketchain:view:" + chain + ":"
}

// cacheKey returns chain:to:method:args. ok is false when an argument has no
// stable encoding.
func (c *ViewCache) cacheKey(call domain.Call) (string, bool) {
	args := make([]value, len(call.Args))
	for i, a := range call.Args {
		enc, err := encodeValue(a)
		if err != nil {
			return "", false
		}
		args[i] = enc
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%s%s:%s:%s", viewPrefix(c.chain), call.To, call.Method, raw), true
}

func (c *ViewCache) lookup(ctx context.Context, key string) ([]any, bool) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.ViewCacheHits.WithLabelValues("error").Inc()
		c.log.Warn("view cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		metrics.ViewCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	values, err := decodeValues([]byte(raw))
	if err != nil {
		metrics.ViewCacheHits.WithLabelValues("error").Inc()
		c.log.Warn("view cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	metrics.ViewCacheHits.WithLabelValues("hit").Inc()
	return values, true
}

func (c *ViewCache) save(ctx context.Context, key string, values []any) {
	raw, err := encodeValues(values)
	if err != nil {
		c.log.Debug("view result not cacheable", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(raw), c.ttl); err != nil {
		c.log.Warn("view cache write failed", "key", key, "error", err)
	}
}

// ReadView implements snapshot.Reader.
func (c *ViewCache) ReadView(ctx context.Context, call domain.Call) ([]any, error) {
	key, ok := c.cacheKey(call)
	if !ok {
		return c.next.ReadView(ctx, call)
	}
	if values, hit := c.lookup(ctx, key); hit {
		return values, nil
	}

	values, err := c.next.ReadView(ctx, call)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, values)
	return values, nil
}

// BatchReadView implements snapshot.Reader. Only the entries missing from
// the cache are forwarded, as one batch.
func (c *ViewCache) BatchReadView(ctx context.Context, calls []domain.Call) ([]domain.ViewResult, error) {
	out := make([]domain.ViewResult, len(calls))
	keys := make([]string, len(calls))
	var (
		missIdx   []int
		missCalls []domain.Call
	)
	for i, call := range calls {
		key, ok := c.cacheKey(call)
		if ok {
			if values, hit := c.lookup(ctx, key); hit {
				out[i] = domain.ViewResult{Values: values}
				continue
			}
			keys[i] = key
		}
		missIdx = append(missIdx, i)
		missCalls = append(missCalls, call)
	}
	if len(missCalls) == 0 {
		return out, nil
	}

	results, err := c.next.BatchReadView(ctx, missCalls)
	if err != nil {
		return nil, err
	}
	if len(results) != len(missCalls) {
		return nil, domain.NewError(domain.KindRPCUnavailable, "batch read",
			fmt.Errorf("got %d results for %d calls", len(results), len(missCalls)))
	}
	for j, r := range results {
		i := missIdx[j]
		out[i] = r
		if r.Err == nil && keys[i] != "" {
			c.save(ctx, keys[i], r.Values)
		}
	}
	return out, nil
}
