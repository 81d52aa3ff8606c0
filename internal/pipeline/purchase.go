package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// OutputTokenIDs is the output key of ticket ids minted by a purchase.
const OutputTokenIDs = "tokenIds"

// PurchaseRequest asks for quantity tickets of one tier.
type PurchaseRequest struct {
	Event    string
	TierID   uint64
	Quantity uint64
}

// Purchase is a preflighted approve-then-purchase workflow.
type Purchase struct {
	wf    *txflow.Workflow
	Event domain.Address
	Tier  domain.TierRecord
	Cost  *big.Int
}

// Workflow exposes the underlying workflow for progress subscription.
func (p *Purchase) Workflow() *txflow.Workflow { return p.wf }

// PurchaseResult reports the purchase outcome.
type PurchaseResult struct {
	*txflow.Result
	Cost *big.Int
	// Approved is true once the allowance step was confirmed.
	Approved bool
	TokenIDs []*big.Int
}

// Run executes approve and then purchase.
func (p *Purchase) Run(ctx context.Context) (*PurchaseResult, error) {
	res, err := p.wf.Run(ctx)
	if res == nil {
		return nil, err
	}
	out := &PurchaseResult{Result: res, Cost: p.Cost}
	for _, s := range res.Confirmed() {
		if s.Index == 0 {
			out.Approved = true
		}
	}
	if ids, ok := res.Output(1)[OutputTokenIDs].([]*big.Int); ok {
		out.TokenIDs = ids
	}
	return out, err
}

// PreparePurchase checks quantity, supply and balance against fresh chain
// state. Any violation is returned before a workflow exists, so no write
// is ever submitted for a request that cannot succeed.
func (s *Service) PreparePurchase(ctx context.Context, pc Context, req PurchaseRequest) (*Purchase, error) {
	const op = "purchase tickets"
	if err := pc.validate(op); err != nil {
		return nil, err
	}
	event, err := domain.ParseAddress(req.Event)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidAddress(string(s.contracts.Token)) {
		return nil, domain.NewError(domain.KindInvalidInput, op, fmt.Errorf("token address not configured"))
	}
	if req.Quantity < 1 {
		return nil, domain.NewError(domain.KindQuantityOutOfRange, op, fmt.Errorf("quantity must be at least 1"))
	}

	snap, err := s.deps.Snapshots.Build(ctx, string(event))
	if err != nil {
		return nil, err
	}
	tier, ok := snap.Tier(req.TierID)
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, op, fmt.Errorf("tier %d does not exist", req.TierID))
	}
	if !tier.Active {
		return nil, domain.NewError(domain.KindInvalidInput, op, fmt.Errorf("tier %d is not on sale", req.TierID))
	}

	qty := new(big.Int).SetUint64(req.Quantity)
	if tier.MaxPerPurchase != nil && tier.MaxPerPurchase.Sign() > 0 && qty.Cmp(tier.MaxPerPurchase) > 0 {
		return nil, domain.NewError(domain.KindQuantityOutOfRange, op,
			fmt.Errorf("quantity %d exceeds max %s per purchase", req.Quantity, tier.MaxPerPurchase))
	}
	if remaining := tier.Remaining(); qty.Cmp(remaining) > 0 {
		return nil, domain.NewError(domain.KindQuantityOutOfRange, op,
			fmt.Errorf("quantity %d exceeds remaining supply %s", req.Quantity, remaining))
	}

	cost := domain.TotalCost(tier.Price, req.Quantity)
	balance, err := s.deps.Snapshots.Balance(ctx, pc.Caller)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(cost) < 0 {
		return nil, domain.NewError(domain.KindInsufficientFunds, op,
			fmt.Errorf("balance %s below cost %s", domain.FormatAmount(balance, 2), domain.FormatAmount(cost, 2)))
	}

	steps := []txflow.StepSpec{
		{
			Name:     "approve payment",
			Contract: domain.ContractToken,
			Method:   "approve",
			Target:   s.contracts.Token,
			Args:     []any{event, cost},
		},
		{
			Name:     "purchase ticket",
			Contract: domain.ContractEvent,
			Method:   "purchaseTicket",
			Target:   event,
			Args:     []any{new(big.Int).SetUint64(req.TierID), qty},
			Extract:  s.mintedTickets(event),
		},
	}

	wf, err := s.workflow(NamePurchase, pc, steps)
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase preflight passed",
		"event", event,
		"tier", req.TierID,
		"quantity", req.Quantity,
		"cost", cost,
		"workflow", wf.ID(),
	)
	return &Purchase{wf: wf, Event: event, Tier: tier, Cost: cost}, nil
}

// PurchaseTickets prepares and runs a purchase.
func (s *Service) PurchaseTickets(ctx context.Context, pc Context, req PurchaseRequest) (*PurchaseResult, error) {
	p, err := s.PreparePurchase(ctx, pc, req)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// mintedTickets collects token ids from TicketPurchased logs. Missing or
// undecodable logs leave the output empty rather than failing a confirmed purchase.
func (s *Service) mintedTickets(event domain.Address) txflow.Extractor {
	return txflow.ExtractorFunc(func(ctx context.Context, call domain.Call, r *domain.Receipt) (domain.StepOutput, error) {
		out := domain.StepOutput{}
		if s.deps.Decoder == nil || r == nil {
			return out, nil
		}
		topic, err := s.deps.Decoder.EventTopic(domain.ContractEvent, "TicketPurchased")
		if err != nil {
			return out, nil
		}

		var ids []*big.Int
		for _, l := range r.Logs {
			if len(l.Topics) == 0 || !strings.EqualFold(l.Topics[0], topic) || !l.Address.Equal(event) {
				continue
			}
			fields, err := s.deps.Decoder.DecodeLog(domain.ContractEvent, "TicketPurchased", l)
			if err != nil {
				s.log.Warn("undecodable purchase log", "tx", r.TxHash, "error", err)
				continue
			}
			if id, ok := fields["tokenId"].(*big.Int); ok {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			out[OutputTokenIDs] = ids
		}
		return out, nil
	})
}
