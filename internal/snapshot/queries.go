package snapshot

import (
	"context"
	"errors"
	"math/big"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// ErrNoFactory is returned by ListEvents when no factory address is configured.
var ErrNoFactory = errors.New("snapshot: event factory address not configured")

// ErrNoToken is returned by Balance when no token address is configured.
var ErrNoToken = errors.New("snapshot: token address not configured")

// ListEvents returns every event deployed through the factory.
func (b *Builder) ListEvents(ctx context.Context) ([]domain.Address, error) {
	const op = "event_factory.getEvents"
	if b.factory == "" {
		return nil, domain.NewError(domain.KindInvalidInput, op, ErrNoFactory)
	}

	values, err := b.reader.ReadView(ctx, domain.Call{
		To:       b.factory,
		Contract: domain.ContractEventFactory,
		Method:   "getEvents",
	})
	if err != nil {
		return nil, classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return nil, err
	}
	return addressList(op, v)
}

// Tickets returns metadata for every ticket of the event held by owner.
func (b *Builder) Tickets(ctx context.Context, eventAddress string, owner domain.Address) ([]domain.TicketMetadata, error) {
	event, err := domain.ParseAddress(eventAddress)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, "tickets", err)
	}
	if !domain.IsValidAddress(string(owner)) {
		return nil, domain.NewError(domain.KindInvalidInput, "tickets", errors.New("invalid owner address"))
	}

	nft, err := b.ticketNFT(ctx, event)
	if err != nil {
		return nil, err
	}

	const op = "ticket_nft.getTicketsByOwner"
	values, err := b.reader.ReadView(ctx, domain.Call{
		To:       nft,
		Contract: domain.ContractTicketNFT,
		Method:   "getTicketsByOwner",
		Args:     []any{owner},
	})
	if err != nil {
		return nil, classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return nil, err
	}
	ids, err := bigList(op, v)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	calls := make([]domain.Call, len(ids))
	for i, id := range ids {
		calls[i] = domain.Call{
			To:       nft,
			Contract: domain.ContractTicketNFT,
			Method:   "getTicketMetadata",
			Args:     []any{id},
		}
	}
	rows, err := b.batch(ctx, calls)
	if err != nil {
		return nil, err
	}

	tickets := make([]domain.TicketMetadata, 0, len(rows))
	for i, row := range rows {
		t, err := decodeTicket(ids[i], event, row)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// BurnHistory returns the check-ins recorded by the event.
func (b *Builder) BurnHistory(ctx context.Context, eventAddress string) ([]domain.BurnRecord, error) {
	const op = "event.getBurnHistory"
	event, err := domain.ParseAddress(eventAddress)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, op, err)
	}

	values, err := b.reader.ReadView(ctx, eventCall(event, "getBurnHistory"))
	if err != nil {
		return nil, classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]map[string]any)
	if !ok {
		if raw, isAny := v.([]any); isAny {
			for _, item := range raw {
				m, isMap := item.(map[string]any)
				if !isMap {
					return nil, decodeError(op, "expected tuple, got %T", item)
				}
				items = append(items, m)
			}
		} else {
			return nil, decodeError(op, "expected tuple list, got %T", v)
		}
	}

	out := make([]domain.BurnRecord, 0, len(items))
	for _, m := range items {
		f := fields{op: op, m: m}
		var r domain.BurnRecord
		if r.TokenID, err = f.big("tokenId"); err != nil {
			return nil, err
		}
		if r.Attendee, err = f.addr("attendee"); err != nil {
			return nil, err
		}
		if r.BurnedBy, err = f.addr("burnedBy"); err != nil {
			return nil, err
		}
		if r.Timestamp, err = f.big("timestamp"); err != nil {
			return nil, err
		}
		if r.TierID, err = f.big("tierId"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Balance returns the payment token balance of owner in base units.
func (b *Builder) Balance(ctx context.Context, owner domain.Address) (*big.Int, error) {
	if b.token == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "token.balanceOf", ErrNoToken)
	}
	if !domain.IsValidAddress(string(owner)) {
		return nil, domain.NewError(domain.KindInvalidInput, "token.balanceOf", errors.New("invalid owner address"))
	}
	return ReadBig(ctx, b.reader, domain.Call{
		To:       b.token,
		Contract: domain.ContractToken,
		Method:   "balanceOf",
		Args:     []any{owner},
	})
}

// IsStaff reports whether addr may check tickets in at the event.
func (b *Builder) IsStaff(ctx context.Context, event, addr domain.Address) (bool, error) {
	return ReadBool(ctx, b.reader, eventCall(event, "isAuthorizedStaff", addr))
}

// TicketValid reports whether the ticket exists on the event's NFT and is unused.
func (b *Builder) TicketValid(ctx context.Context, event domain.Address, tokenID *big.Int) (bool, error) {
	nft, err := b.ticketNFT(ctx, event)
	if err != nil {
		return false, err
	}
	return ReadBool(ctx, b.reader, domain.Call{
		To:       nft,
		Contract: domain.ContractTicketNFT,
		Method:   "isTicketValid",
		Args:     []any{tokenID},
	})
}

func (b *Builder) ticketNFT(ctx context.Context, event domain.Address) (domain.Address, error) {
	const op = "event.getTicketNFTAddress"
	values, err := b.reader.ReadView(ctx, eventCall(event, "getTicketNFTAddress"))
	if err != nil {
		return "", classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return "", err
	}
	nft, ok := Addr(v)
	if !ok || nft.IsZero() {
		return "", decodeError(op, "no ticket contract for %s", event)
	}
	return nft, nil
}

func decodeTicket(id *big.Int, event domain.Address, values []any) (domain.TicketMetadata, error) {
	const op = "ticket_nft.getTicketMetadata"
	v, err := single(op, values)
	if err != nil {
		return domain.TicketMetadata{}, err
	}
	f, err := tuple(op, v)
	if err != nil {
		return domain.TicketMetadata{}, err
	}

	t := domain.TicketMetadata{TokenID: id, EventAddress: event}
	if t.TierID, err = f.big("tierId"); err != nil {
		return t, err
	}
	if t.OriginalOwner, err = f.addr("originalOwner"); err != nil {
		return t, err
	}
	if t.CurrentOwner, err = f.addr("currentOwner"); err != nil {
		return t, err
	}
	if t.MintTimestamp, err = f.big("mintTimestamp"); err != nil {
		return t, err
	}
	if t.BurnTimestamp, err = f.big("burnTimestamp"); err != nil {
		return t, err
	}
	if t.BurnedBy, err = f.addr("burnedBy"); err != nil {
		return t, err
	}
	if t.IsUsed, err = f.boolean("isUsed"); err != nil {
		return t, err
	}
	return t, nil
}

func addressList(op string, v any) ([]domain.Address, error) {
	switch t := v.(type) {
	case []domain.Address:
		return t, nil
	case []any:
		out := make([]domain.Address, 0, len(t))
		for _, item := range t {
			a, ok := Addr(item)
			if !ok {
				return nil, decodeError(op, "expected address, got %v", item)
			}
			out = append(out, a)
		}
		return out, nil
	}
	return nil, decodeError(op, "expected address list, got %T", v)
}

func bigList(op string, v any) ([]*big.Int, error) {
	switch t := v.(type) {
	case []*big.Int:
		return t, nil
	case []any:
		out := make([]*big.Int, 0, len(t))
		for _, item := range t {
			n, ok := Big(item)
			if !ok {
				return nil, decodeError(op, "expected integer, got %T", item)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, decodeError(op, "expected integer list, got %T", v)
}
