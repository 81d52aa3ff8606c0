package txflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/metrics"
)

var (
	// ErrCancelled marks a step that was not attempted because the caller cancelled.
	ErrCancelled = errors.New("txflow: workflow cancelled")

	// ErrAlreadyRunning is returned when Run is called while a run is in progress.
	ErrAlreadyRunning = errors.New("txflow: workflow already running")

	// ErrNoSteps is returned when a workflow is built without steps.
	ErrNoSteps = errors.New("txflow: workflow has no steps")
)

// Observer is notified of every transition after subscribers.
type Observer interface {
	OnTransition(ctx context.Context, p domain.Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, p domain.Progress)

func (f ObserverFunc) OnTransition(ctx context.Context, p domain.Progress) { f(ctx, p) }

// StepRecord is what the workflow learned about one attempted step.
type StepRecord struct {
	Index     int
	Name      string
	TxHash    string
	Receipt   *domain.Receipt
	Output    domain.StepOutput
	Confirmed bool
}

// Result is the terminal outcome of a workflow run.
type Result struct {
	WorkflowID string
	Pipeline   string
	State      domain.WorkflowState
	// FailedStep is -1 when every step completed.
	FailedStep int
	Kind       domain.ErrorKind
	Err        error
	Cancelled  bool
	// Steps lists attempted steps in order, including the failed one.
	Steps []StepRecord
	// Transitions is the applied state history, oldest first.
	Transitions []Transition
}

// Succeeded reports whether the workflow completed.
func (r *Result) Succeeded() bool {
	return r != nil && r.State == domain.WorkflowCompleted
}

// Confirmed returns the steps whose receipts were observed successful.
func (r *Result) Confirmed() []StepRecord {
	var out []StepRecord
	for _, s := range r.Steps {
		if s.Confirmed {
			out = append(out, s)
		}
	}
	return out
}

// Output returns the extracted output of a confirmed step, or nil.
func (r *Result) Output(step int) domain.StepOutput {
	for _, s := range r.Steps {
		if s.Index == step && s.Confirmed {
			return s.Output
		}
	}
	return nil
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the workflow logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.log = l
		}
	}
}

// WithObserver registers an observer for every transition.
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		if o != nil {
			w.observers = append(w.observers, o)
		}
	}
}

// WithCaller sets the sender address used for every step.
func WithCaller(a domain.Address) Option {
	return func(w *Workflow) { w.caller = a }
}

// WithID overrides the generated workflow id.
func WithID(id string) Option {
	return func(w *Workflow) {
		if id != "" {
			w.id = id
		}
	}
}

// Workflow is a state machine over an ordered list of dependent writes.
type Workflow struct {
	id        string
	pipeline  string
	caller    domain.Address
	steps     []StepSpec
	exec      *Executor
	observers []Observer
	log       *slog.Logger

	cancelled atomic.Bool

	mu      sync.Mutex
	pos     Position
	history []Transition
	running bool
	subs    []chan domain.Progress
	last    domain.Progress
	result  *Result
}

// NewWorkflow creates a workflow. The step list is copied and is not
// modified afterwards.
func NewWorkflow(pipeline string, exec *Executor, steps []StepSpec, opts ...Option) (*Workflow, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	if exec == nil {
		return nil, errors.New("txflow: nil executor")
	}

	w := &Workflow{
		id:       uuid.NewString(),
		pipeline: pipeline,
		steps:    append([]StepSpec(nil), steps...),
		exec:     exec,
		log:      slog.Default(),
		pos:      Position{State: domain.WorkflowIdle},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("workflow", w.id, "pipeline", pipeline)
	return w, nil
}

// ID returns the workflow identifier.
func (w *Workflow) ID() string { return w.id }

// TotalSteps returns the number of steps.
func (w *Workflow) TotalSteps() int { return len(w.steps) }

// State returns the current state and step index.
func (w *Workflow) State() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

// Cancel prevents steps that have not been submitted yet from starting.
// A step already handed to the network is still watched to its outcome.
func (w *Workflow) Cancel() {
	w.cancelled.Store(true)
}

// Subscribe returns a channel receiving every progress event. The channel
// is closed after the terminal event. Subscribing to a finished workflow
// yields only the terminal event.
func (w *Workflow) Subscribe() <-chan domain.Progress {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Upper bound on events: Running and AwaitingConfirmation per step plus the terminal one.
	ch := make(chan domain.Progress, 2*len(w.steps)+2)
	if w.result != nil {
		ch <- w.last
		close(ch)
		return ch
	}
	w.subs = append(w.subs, ch)
	return ch
}

// Run executes the steps in order. Calling Run on a finished workflow
// returns the stored result without side effects.
func (w *Workflow) Run(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	if w.result != nil {
		res := w.result
		w.mu.Unlock()
		return res, res.Err
	}
	if w.running {
		w.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	metrics.WorkflowsStarted.WithLabelValues(w.pipeline).Inc()
	w.log.Info("workflow started", "steps", len(w.steps), "caller", w.caller)

	res := &Result{
		WorkflowID: w.id,
		Pipeline:   w.pipeline,
		FailedStep: -1,
	}
	outputs := make([]domain.StepOutput, 0, len(w.steps))

	for i, step := range w.steps {
		if w.cancelled.Load() || ctx.Err() != nil {
			// Cancellation carries no kind: nothing was declined or sent.
			cause := ErrCancelled
			if ctx.Err() != nil {
				cause = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			}
			res.Cancelled = true
			return w.fail(ctx, res, i, step.Name, fmt.Errorf("step %d %s: %w", i, step.Name, cause))
		}

		call, err := step.Resolve(i, w.caller, outputs)
		if err != nil {
			return w.fail(ctx, res, i, step.Name, err)
		}

		if err := w.transition(ctx, domain.WorkflowRunning, i, step.Name, ""); err != nil {
			return w.fail(ctx, res, i, step.Name, err)
		}

		rec := StepRecord{Index: i, Name: step.Name}
		var awaitErr error
		receipt, err := w.exec.Execute(ctx, i, step.Name, call, func(h domain.TxHandle) {
			rec.TxHash = string(h)
			awaitErr = w.transition(ctx, domain.WorkflowAwaitingConfirmation, i, step.Name, string(h))
		})
		rec.Receipt = receipt
		if err == nil {
			err = awaitErr
		}
		if err != nil {
			res.Steps = append(res.Steps, rec)
			return w.fail(ctx, res, i, step.Name, err)
		}

		out := domain.StepOutput{}
		if step.Extract != nil {
			extracted, err := step.Extract.Extract(context.WithoutCancel(ctx), call, receipt)
			if err != nil {
				// The write itself is confirmed; only its output is missing.
				rec.Confirmed = true
				res.Steps = append(res.Steps, rec)
				if domain.KindOf(err) == "" {
					err = domain.StepError(domain.KindNotFound, i, step.Name, err)
				}
				return w.fail(ctx, res, i, step.Name, err)
			}
			if extracted != nil {
				out = extracted
			}
		}

		rec.Output = out
		rec.Confirmed = true
		res.Steps = append(res.Steps, rec)
		outputs = append(outputs, out)
	}

	last := len(w.steps) - 1
	res.State = domain.WorkflowCompleted
	w.finish(ctx, res, domain.Progress{
		StepIndex: last,
		StepName:  w.steps[last].Name,
		State:     domain.WorkflowCompleted,
		TxHash:    res.Steps[last].TxHash,
	})
	w.log.Info("workflow completed", "steps", len(w.steps))
	return res, nil
}

func (w *Workflow) fail(ctx context.Context, res *Result, index int, name string, err error) (*Result, error) {
	kind := domain.KindOf(err)
	res.State = domain.WorkflowStepFailed
	res.FailedStep = index
	res.Kind = kind
	res.Err = err

	var tx string
	if n := len(res.Steps); n > 0 && res.Steps[n-1].Index == index {
		tx = res.Steps[n-1].TxHash
	}

	w.log.Warn("workflow stopped",
		"step", index,
		"name", name,
		"kind", kind,
		"confirmed_steps", len(res.Confirmed()),
		"error", err,
	)
	w.finish(ctx, res, domain.Progress{
		StepIndex: index,
		StepName:  name,
		State:     domain.WorkflowStepFailed,
		TxHash:    tx,
		Err:       err,
	})
	return res, err
}

func (w *Workflow) finish(ctx context.Context, res *Result, p domain.Progress) {
	// A refused terminal move is logged by emit; the result is stored either way.
	_ = w.emit(ctx, p, res)
	metrics.WorkflowsFinished.WithLabelValues(w.pipeline, string(res.State)).Inc()
}

func (w *Workflow) transition(ctx context.Context, state domain.WorkflowState, index int, name, tx string) error {
	return w.emit(ctx, domain.Progress{
		StepIndex: index,
		StepName:  name,
		State:     state,
		TxHash:    tx,
	}, nil)
}

// emit applies the transition and fans the event out. A move the state
// machine does not allow is refused and leaves the position unchanged.
//
// A non-nil res marks the terminal event: the result is stored, the event
// sent and every subscriber closed under one lock, so a concurrent
// Subscribe either sees the event or gets the stored one. Subscriber
// channels are sized for every possible event, so sends never block.
func (w *Workflow) emit(ctx context.Context, p domain.Progress, res *Result) error {
	p.WorkflowID = w.id
	p.Pipeline = w.pipeline
	p.TotalSteps = len(w.steps)

	w.mu.Lock()
	t := NewTransition(w.pos, Position{State: p.State, Step: p.StepIndex})
	p.At = t.Timestamp
	valid := t.IsValid()
	if valid {
		w.pos = t.To
		w.history = append(w.history, t)
		for _, ch := range w.subs {
			select {
			case ch <- p:
			default:
				w.log.Warn("progress subscriber full, event dropped", "state", p.State, "step", p.StepIndex)
			}
		}
	}
	if res != nil {
		res.Transitions = append([]Transition(nil), w.history...)
		w.result = res
		w.running = false
		w.last = p
		for _, ch := range w.subs {
			close(ch)
		}
		w.subs = nil
	}
	w.mu.Unlock()

	if !valid {
		w.log.Error("invalid transition refused",
			"from", t.From.State, "from_step", t.From.Step,
			"to", t.To.State, "to_step", t.To.Step)
		return fmt.Errorf("%w: %s at step %d to %s at step %d",
			ErrInvalidTransition, t.From.State, t.From.Step, t.To.State, t.To.Step)
	}

	octx := context.WithoutCancel(ctx)
	for _, o := range w.observers {
		o.OnTransition(octx, p)
	}

	w.log.Debug("transition", "state", p.State, "step", p.StepIndex, "of", p.TotalSteps, "tx", p.TxHash)
	return nil
}
