package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// OutputEventAddress is the output key of the created event address.
const OutputEventAddress = "eventAddress"

// TierConfig describes one ticket tier to add.
type TierConfig struct {
	Name           string
	Price          *big.Int
	Available      *big.Int
	MaxPerPurchase *big.Int
	Description    string
}

// EventConfig is everything needed to deploy an event with its tiers.
type EventConfig struct {
	Name         string
	Description  string
	Date         time.Time
	Venue        string
	IPFSMetadata string
	Tiers        []TierConfig
}

// CreateEventParams is the tuple argument of EventFactory.createEvent.
type CreateEventParams struct {
	Name         string   `abi:"name"`
	Description  string   `abi:"description"`
	Date         *big.Int `abi:"date"`
	Venue        string   `abi:"venue"`
	IpfsMetadata string   `abi:"ipfsMetadata"`
}

// Validate checks the configuration locally.
func (c EventConfig) Validate() error {
	const op = "validate event"
	if strings.TrimSpace(c.Name) == "" {
		return domain.NewError(domain.KindInvalidInput, op, errors.New("event name is required"))
	}
	if c.Date.IsZero() || c.Date.Unix() <= 0 {
		return domain.NewError(domain.KindInvalidInput, op, errors.New("event date is required"))
	}
	if len(c.Tiers) == 0 {
		return domain.NewError(domain.KindInvalidInput, op, errors.New("at least one tier is required"))
	}
	return validateTiers(c.Tiers)
}

func validateTiers(tiers []TierConfig) error {
	for i, t := range tiers {
		if strings.TrimSpace(t.Name) == "" {
			return domain.NewError(domain.KindInvalidInput, "validate tier",
				fmt.Errorf("tier %d: name is required", i))
		}
		if err := domain.ValidatePositive(fmt.Sprintf("tier %d price", i), t.Price); err != nil {
			return err
		}
		if err := domain.ValidatePositive(fmt.Sprintf("tier %d available", i), t.Available); err != nil {
			return err
		}
		if err := domain.ValidatePositive(fmt.Sprintf("tier %d max per purchase", i), t.MaxPerPurchase); err != nil {
			return err
		}
	}
	return nil
}

// Deployment is a prepared deployment workflow.
type Deployment struct {
	wf     *txflow.Workflow
	tiers  []TierConfig
	offset int
	event  domain.Address
}

// Workflow exposes the underlying workflow for progress subscription.
func (d *Deployment) Workflow() *txflow.Workflow { return d.wf }

// DeployResult reports what a deployment achieved, including partial progress.
type DeployResult struct {
	*txflow.Result
	// EventAddress is set as soon as the create step was confirmed.
	EventAddress domain.Address
	// TiersCreated lists the configuration indices of confirmed tiers.
	TiersCreated []int
	// TiersPending are the tiers not confirmed, in configuration order.
	TiersPending []TierConfig
}

// Run executes the deployment.
func (d *Deployment) Run(ctx context.Context) (*DeployResult, error) {
	res, err := d.wf.Run(ctx)
	if res == nil {
		return nil, err
	}

	out := &DeployResult{Result: res, EventAddress: d.event}
	if d.offset == 1 {
		if addr, ok := res.Output(0).Address(OutputEventAddress); ok {
			out.EventAddress = addr
		}
	}

	created := make(map[int]bool)
	for _, s := range res.Confirmed() {
		if s.Index >= d.offset {
			tier := s.Index - d.offset
			created[tier] = true
			out.TiersCreated = append(out.TiersCreated, tier)
		}
	}
	for i, t := range d.tiers {
		if !created[i] {
			out.TiersPending = append(out.TiersPending, t)
		}
	}
	return out, err
}

// PrepareDeploy validates cfg and builds the create-then-add-tiers workflow.
// Nothing touches the network until Run.
func (s *Service) PrepareDeploy(pc Context, cfg EventConfig) (*Deployment, error) {
	if err := pc.validate("deploy event"); err != nil {
		return nil, err
	}
	if !domain.IsValidAddress(string(s.contracts.EventFactory)) {
		return nil, domain.NewError(domain.KindInvalidInput, "deploy event",
			errors.New("event factory address not configured"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	steps := []txflow.StepSpec{{
		Name:     "create event",
		Contract: domain.ContractEventFactory,
		Method:   "createEvent",
		Target:   s.contracts.EventFactory,
		Args: []any{CreateEventParams{
			Name:         cfg.Name,
			Description:  cfg.Description,
			Date:         big.NewInt(cfg.Date.Unix()),
			Venue:        cfg.Venue,
			IpfsMetadata: cfg.IPFSMetadata,
		}},
		Extract: &txflow.LogExtractor{
			Decoder:    s.deps.Decoder,
			Subscriber: s.deps.Subscriber,
			Contract:   domain.ContractEventFactory,
			Event:      "EventCreated",
			Fields:     map[string]string{"eventAddress": OutputEventAddress},
			Logger:     s.log,
		},
	}}
	steps = append(steps, tierSteps(cfg.Tiers, txflow.Binding{Step: 0, Key: OutputEventAddress})...)

	wf, err := s.workflow(NameDeploy, pc, steps)
	if err != nil {
		return nil, err
	}
	return &Deployment{wf: wf, tiers: cfg.Tiers, offset: 1}, nil
}

// DeployEvent prepares and runs a deployment.
func (s *Service) DeployEvent(ctx context.Context, pc Context, cfg EventConfig) (*DeployResult, error) {
	d, err := s.PrepareDeploy(pc, cfg)
	if err != nil {
		return nil, err
	}
	return d.Run(ctx)
}

// RetryTiers builds a fresh workflow adding tiers to an already deployed event,
// typically the TiersPending of a failed deployment.
func (s *Service) RetryTiers(pc Context, event string, tiers []TierConfig) (*Deployment, error) {
	if err := pc.validate("add tiers"); err != nil {
		return nil, err
	}
	addr, err := domain.ParseAddress(event)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, domain.NewError(domain.KindInvalidInput, "add tiers", errors.New("no tiers to add"))
	}
	if err := validateTiers(tiers); err != nil {
		return nil, err
	}

	wf, err := s.workflow(NameTiers, pc, tierSteps(tiers, addr))
	if err != nil {
		return nil, err
	}
	return &Deployment{wf: wf, tiers: tiers, event: addr}, nil
}

func tierSteps(tiers []TierConfig, target any) []txflow.StepSpec {
	steps := make([]txflow.StepSpec, 0, len(tiers))
	for _, t := range tiers {
		steps = append(steps, txflow.StepSpec{
			Name:     "add tier " + t.Name,
			Contract: domain.ContractEvent,
			Method:   "addTicketTier",
			Target:   target,
			Args:     []any{t.Name, t.Price, t.Available, t.MaxPerPurchase, t.Description},
		})
	}
	return steps
}
