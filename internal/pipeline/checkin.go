package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// ErrNotStaff is returned when the caller may not check tickets in at the event.
var ErrNotStaff = errors.New("caller is not authorized staff for this event")

// CheckInRequest identifies the ticket to burn at the venue.
type CheckInRequest struct {
	Event   string
	TokenID *big.Int
}

// CheckIn is a preflighted burn workflow.
type CheckIn struct {
	wf *txflow.Workflow
}

// Workflow exposes the underlying workflow for progress subscription.
func (c *CheckIn) Workflow() *txflow.Workflow { return c.wf }

// Run burns the ticket.
func (c *CheckIn) Run(ctx context.Context) (*txflow.Result, error) {
	return c.wf.Run(ctx)
}

// PrepareCheckIn verifies staff authorization and ticket validity.
func (s *Service) PrepareCheckIn(ctx context.Context, pc Context, req CheckInRequest) (*CheckIn, error) {
	const op = "check in"
	if err := pc.validate(op); err != nil {
		return nil, err
	}
	event, err := domain.ParseAddress(req.Event)
	if err != nil {
		return nil, err
	}
	if req.TokenID == nil || req.TokenID.Sign() < 0 {
		return nil, domain.NewError(domain.KindInvalidInput, op, errors.New("token id is required"))
	}

	staff, err := s.deps.Snapshots.IsStaff(ctx, event, pc.Caller)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, domain.NewError(domain.KindInvalidInput, op, ErrNotStaff)
	}

	valid, err := s.deps.Snapshots.TicketValid(ctx, event, req.TokenID)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domain.NewError(domain.KindNotFound, op,
			fmt.Errorf("ticket %s is not valid for %s", req.TokenID, event))
	}

	wf, err := s.workflow(NameCheckIn, pc, []txflow.StepSpec{{
		Name:     "check in and burn",
		Contract: domain.ContractEvent,
		Method:   "checkInAndBurn",
		Target:   event,
		Args:     []any{req.TokenID},
	}})
	if err != nil {
		return nil, err
	}
	return &CheckIn{wf: wf}, nil
}

// CheckInTicket prepares and runs a check-in.
func (s *Service) CheckInTicket(ctx context.Context, pc Context, req CheckInRequest) (*txflow.Result, error) {
	c, err := s.PrepareCheckIn(ctx, pc, req)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx)
}
