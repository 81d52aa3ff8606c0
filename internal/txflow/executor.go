package txflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/metrics"
)

// DefaultReceiptTimeout bounds how long a submitted step is watched.
const DefaultReceiptTimeout = 2 * time.Minute

// ExecutorConfig controls confirmation depth and receipt wait bounds.
type ExecutorConfig struct {
	MinConfirmations uint64
	ReceiptTimeout   time.Duration
}

// Executor submits a single step and waits for its receipt.
// It never resubmits: a failed step is reported, not retried.
type Executor struct {
	writer Writer
	cfg    ExecutorConfig
	log    *slog.Logger
}

// NewExecutor creates an executor. Zero config values take defaults.
func NewExecutor(w Writer, cfg ExecutorConfig) *Executor {
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 1
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	return &Executor{
		writer: w,
		cfg:    cfg,
		log:    slog.Default(),
	}
}

// WithLogger sets the logger used by the executor.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	if l != nil {
		e.log = l
	}
	return e
}

// Execute submits call and waits for inclusion plus confirmation depth.
// onSubmitted runs once the network has accepted the transaction.
//
// The receipt wait is detached from ctx cancellation: once a write is handed
// to the network it cannot be withdrawn, so the outcome is still observed,
// bounded by the receipt timeout.
func (e *Executor) Execute(
	ctx context.Context,
	index int,
	name string,
	call domain.Call,
	onSubmitted func(domain.TxHandle),
) (*domain.Receipt, error) {
	if hasPlaceholder(call) {
		return nil, domain.StepError(domain.KindUnresolvedBinding, index, name,
			errors.New("late-bound argument left unresolved"))
	}
	if !domain.IsValidAddress(string(call.To)) {
		return nil, domain.StepError(domain.KindInvalidInput, index, name,
			fmt.Errorf("invalid target %q", call.To))
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.StepError(domain.KindSubmissionTimeout, index, name, err)
	}

	h, err := e.writer.SubmitWrite(ctx, call)
	if err != nil {
		kind := classifySubmitError(err)
		metrics.StepFailures.WithLabelValues(string(kind)).Inc()
		e.log.Warn("step submission failed", "step", index, "name", name, "kind", kind, "error", err)
		return nil, domain.StepError(kind, index, name, err)
	}
	metrics.StepsSubmitted.WithLabelValues(call.Method).Inc()
	e.log.Info("step submitted", "step", index, "name", name, "tx", h)

	if onSubmitted != nil {
		onSubmitted(h)
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ReceiptTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := e.writer.WaitForReceipt(waitCtx, h, e.cfg.MinConfirmations)
	if err != nil {
		kind := classifyWaitError(err)
		metrics.StepFailures.WithLabelValues(string(kind)).Inc()
		e.log.Warn("receipt wait failed", "step", index, "tx", h, "kind", kind, "error", err)
		return nil, submittedError(kind, index, name, h, fmt.Errorf("tx %s: %w", h, err))
	}
	metrics.ConfirmationLatency.WithLabelValues(call.Method).Observe(time.Since(start).Seconds())

	if !receipt.Succeeded() {
		metrics.StepFailures.WithLabelValues(string(domain.KindExecutionReverted)).Inc()
		e.log.Warn("step reverted", "step", index, "tx", h, "block", receipt.BlockNumber)
		return receipt, submittedError(domain.KindExecutionReverted, index, name, h,
			fmt.Errorf("tx %s reverted in block %d", h, receipt.BlockNumber))
	}

	e.log.Info("step confirmed",
		"step", index,
		"tx", h,
		"block", receipt.BlockNumber,
		"confirmations", receipt.Confirmations,
	)
	return receipt, nil
}

// classifySubmitError keeps kinds assigned by the collaborator and treats
// anything else as a submission that never reached the network.
func classifySubmitError(err error) domain.ErrorKind {
	if k := domain.KindOf(err); k != "" {
		if k == domain.KindRPCUnavailable {
			return domain.KindSubmissionTimeout
		}
		return k
	}
	return domain.KindSubmissionTimeout
}

// submittedError marks a failure of a write the network already accepted.
func submittedError(kind domain.ErrorKind, index int, name string, h domain.TxHandle, err error) *domain.Error {
	e := domain.StepError(kind, index, name, err)
	e.TxHash = string(h)
	return e
}

func classifyWaitError(err error) domain.ErrorKind {
	if k := domain.KindOf(err); k != "" && k != domain.KindRPCUnavailable {
		return k
	}
	return domain.KindSubmissionTimeout
}
