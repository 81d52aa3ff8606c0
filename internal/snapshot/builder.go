// Package snapshot aggregates independent view calls into read-only domain
// snapshots. The builder holds no state between calls; every request reads
// the chain afresh.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/metrics"
)

const defaultConcurrency = 5

// Builder reads event and ticket state through a Reader.
type Builder struct {
	reader      Reader
	factory     domain.Address
	token       domain.Address
	now         func() time.Time
	concurrency int
	log         *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// WithLogger sets the builder logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// WithFactory sets the EventFactory address used by ListEvents.
func WithFactory(a domain.Address) Option {
	return func(b *Builder) { b.factory = a }
}

// WithToken sets the payment token address used by Balance.
func WithToken(a domain.Address) Option {
	return func(b *Builder) { b.token = a }
}

// WithConcurrency limits parallel reads when the reader cannot batch.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBuilder creates a snapshot builder.
func NewBuilder(r Reader, opts ...Option) *Builder {
	b := &Builder{
		reader:      r,
		now:         time.Now,
		concurrency: defaultConcurrency,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build reads the event at eventAddress and its tiers and derives stats.
// A malformed address is NotFound without any call being made.
func (b *Builder) Build(ctx context.Context, eventAddress string) (*domain.DomainSnapshot, error) {
	snap, err := b.build(ctx, eventAddress)
	switch kind := domain.KindOf(err); {
	case err == nil:
		metrics.SnapshotBuilds.WithLabelValues("ok").Inc()
	default:
		metrics.SnapshotBuilds.WithLabelValues(string(kind)).Inc()
		b.log.Debug("snapshot build failed", "event", eventAddress, "kind", kind, "error", err)
	}
	return snap, err
}

func (b *Builder) build(ctx context.Context, eventAddress string) (*domain.DomainSnapshot, error) {
	addr, err := domain.ParseAddress(eventAddress)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, "build snapshot", err)
	}

	head, err := b.batch(ctx, []domain.Call{
		eventCall(addr, "getEventDetails"),
		eventCall(addr, "tierCount"),
		eventCall(addr, "getTotalSold"),
		eventCall(addr, "getTicketNFTAddress"),
	})
	if err != nil {
		return nil, err
	}

	record, err := decodeEvent(addr, head[0])
	if err != nil {
		return nil, err
	}
	count, err := decodeCount(head[1])
	if err != nil {
		return nil, err
	}
	if record.TotalSold, err = decodeSingleBig("event.getTotalSold", head[2]); err != nil {
		return nil, err
	}
	nftValue, err := single("event.getTicketNFTAddress", head[3])
	if err != nil {
		return nil, err
	}
	nft, ok := Addr(nftValue)
	if !ok {
		return nil, decodeError("event.getTicketNFTAddress", "expected address, got %v", nftValue)
	}
	record.TicketNFT = nft

	tiers := make([]domain.TierRecord, 0, count)
	if count > 0 {
		calls := make([]domain.Call, count)
		for i := range calls {
			calls[i] = eventCall(addr, "getTierDetails", new(big.Int).SetUint64(uint64(i)))
		}
		rows, err := b.batch(ctx, calls)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			tier, err := decodeTier(uint64(i), row)
			if err != nil {
				return nil, err
			}
			tiers = append(tiers, tier)
		}
	}

	return &domain.DomainSnapshot{
		Event:     record,
		Tiers:     tiers,
		Stats:     ComputeStats(tiers),
		FetchedAt: b.now(),
	}, nil
}

// ComputeStats derives remaining supply, sellout ratio and revenue. It uses
// only the given values.
func ComputeStats(tiers []domain.TierRecord) domain.Stats {
	st := domain.Stats{
		Available: new(big.Int),
		Sold:      new(big.Int),
		Revenue:   new(big.Int),
		PerTier:   make([]domain.TierStats, 0, len(tiers)),
	}
	for _, t := range tiers {
		avail, sold, price := nz(t.Available), nz(t.Sold), nz(t.Price)
		revenue := new(big.Int).Mul(price, sold)

		st.Available.Add(st.Available, avail)
		st.Sold.Add(st.Sold, sold)
		st.Revenue.Add(st.Revenue, revenue)
		st.PerTier = append(st.PerTier, domain.TierStats{
			Remaining:    t.Remaining(),
			SelloutRatio: ratio(sold, avail),
			Revenue:      revenue,
		})
	}
	st.Remaining = new(big.Int).Sub(st.Available, st.Sold)
	st.SelloutRatio = ratio(st.Sold, st.Available)
	return st
}

func ratio(sold, available *big.Int) float64 {
	if available.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(sold, available).Float64()
	return f
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// batch runs calls as one batched read, falling back to concurrent single
// reads when the reader cannot batch. Any failed entry fails the batch.
func (b *Builder) batch(ctx context.Context, calls []domain.Call) ([][]any, error) {
	results, err := b.reader.BatchReadView(ctx, calls)
	if errors.Is(err, ErrBatchUnsupported) {
		return b.concurrent(ctx, calls)
	}
	if err != nil {
		return nil, classify("batch read", err)
	}
	if len(results) != len(calls) {
		return nil, domain.NewError(domain.KindRPCUnavailable, "batch read",
			fmt.Errorf("got %d results for %d calls", len(results), len(calls)))
	}

	out := make([][]any, len(results))
	for i, r := range results {
		if r.Err != nil {
			return nil, classify(string(calls[i].Contract)+"."+calls[i].Method, r.Err)
		}
		out[i] = r.Values
	}
	return out, nil
}

func (b *Builder) concurrent(ctx context.Context, calls []domain.Call) ([][]any, error) {
	out := make([][]any, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			values, err := b.reader.ReadView(ctx, call)
			if err != nil {
				return classify(string(call.Contract)+"."+call.Method, err)
			}
			out[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func eventCall(addr domain.Address, method string, args ...any) domain.Call {
	return domain.Call{To: addr, Contract: domain.ContractEvent, Method: method, Args: args}
}

func decodeEvent(addr domain.Address, values []any) (domain.EventRecord, error) {
	const op = "event.getEventDetails"
	if len(values) < 5 {
		return domain.EventRecord{}, decodeError(op, "expected 5 values, got %d", len(values))
	}
	name, ok1 := values[0].(string)
	desc, ok2 := values[1].(string)
	date, ok3 := Big(values[2])
	venue, ok4 := values[3].(string)
	organizer, ok5 := Addr(values[4])
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return domain.EventRecord{}, decodeError(op, "unexpected value types")
	}
	return domain.EventRecord{
		Address:     addr,
		Name:        name,
		Description: desc,
		Date:        date,
		Venue:       venue,
		Organizer:   organizer,
	}, nil
}

func decodeCount(values []any) (int, error) {
	n, err := decodeSingleBig("event.tierCount", values)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() < 0 || n.Int64() > 1<<16 {
		return 0, decodeError("event.tierCount", "implausible tier count %s", n)
	}
	return int(n.Int64()), nil
}

func decodeSingleBig(op string, values []any) (*big.Int, error) {
	v, err := single(op, values)
	if err != nil {
		return nil, err
	}
	n, ok := Big(v)
	if !ok {
		return nil, decodeError(op, "expected integer, got %T", v)
	}
	return n, nil
}

func decodeTier(id uint64, values []any) (domain.TierRecord, error) {
	const op = "event.getTierDetails"
	v, err := single(op, values)
	if err != nil {
		return domain.TierRecord{}, err
	}
	f, err := tuple(op, v)
	if err != nil {
		return domain.TierRecord{}, err
	}

	t := domain.TierRecord{ID: id}
	if t.Name, err = f.str("name"); err != nil {
		return t, err
	}
	if t.Price, err = f.big("price"); err != nil {
		return t, err
	}
	if t.Available, err = f.big("available"); err != nil {
		return t, err
	}
	if t.Sold, err = f.big("sold"); err != nil {
		return t, err
	}
	if t.MaxPerPurchase, err = f.big("maxPerPurchase"); err != nil {
		return t, err
	}
	if t.Description, err = f.str("description"); err != nil {
		return t, err
	}
	if t.Active, err = f.boolean("isActive"); err != nil {
		return t, err
	}
	return t, nil
}
