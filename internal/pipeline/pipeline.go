// Package pipeline builds the concrete workflows of the ticketing system:
// event deployment, ticket purchase and venue check-in. Each pipeline runs
// its preflight checks before any write and then hands an ordered step list
// to a txflow.Workflow.
package pipeline

import (
	"errors"
	"log/slog"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/snapshot"
	"github.com/vietddude/ticketchain/internal/txflow"
)

// Pipeline names used for workflows, logs and metrics.
const (
	NameDeploy   = "deploy_event"
	NameTiers    = "add_tiers"
	NamePurchase = "purchase_tickets"
	NameCheckIn  = "check_in"
)

// ErrNoCaller is returned when a write is prepared without a connected wallet.
var ErrNoCaller = errors.New("no wallet connected")

// Context carries the caller and chain explicitly instead of reading them
// from ambient session state.
type Context struct {
	Caller  domain.Address
	ChainID domain.ChainID
}

func (c Context) validate(op string) error {
	if c.Caller == "" {
		return domain.NewError(domain.KindInvalidInput, op, ErrNoCaller)
	}
	if !domain.IsValidAddress(string(c.Caller)) {
		return domain.NewError(domain.KindInvalidInput, op, errors.New("malformed caller address"))
	}
	return nil
}

// Contracts are the deployment-wide contract addresses.
type Contracts struct {
	EventFactory  domain.Address
	Token         domain.Address
	AccessControl domain.Address
}

// Deps are the collaborators shared by all pipelines.
type Deps struct {
	Executor   *txflow.Executor
	Decoder    txflow.LogDecoder
	Subscriber txflow.LogSubscriber
	Snapshots  *snapshot.Builder
}

// Service prepares pipeline workflows.
type Service struct {
	deps      Deps
	contracts Contracts
	observers []txflow.Observer
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithObserver attaches an observer to every workflow the service creates.
func WithObserver(o txflow.Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService creates a pipeline service.
func NewService(deps Deps, contracts Contracts, opts ...Option) *Service {
	s := &Service{
		deps:      deps,
		contracts: contracts,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) workflow(name string, pc Context, steps []txflow.StepSpec) (*txflow.Workflow, error) {
	opts := []txflow.Option{
		txflow.WithCaller(pc.Caller),
		txflow.WithLogger(s.log.With("chain", pc.ChainID)),
	}
	for _, o := range s.observers {
		opts = append(opts, txflow.WithObserver(o))
	}
	return txflow.NewWorkflow(name, s.deps.Executor, steps, opts...)
}
