// Package txflow sequences dependent on-chain writes.
//
// A Workflow runs an ordered list of StepSpecs one at a time. Each step is
// submitted through the Executor, awaited until it reaches the configured
// confirmation depth, and may declare an Extractor that turns its receipt
// into named outputs. Later steps refer to those outputs through Binding
// placeholders, resolved just before submission.
package txflow

import (
	"context"
	"fmt"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// Writer submits writes and waits for their receipts.
type Writer interface {
	SubmitWrite(ctx context.Context, call domain.Call) (domain.TxHandle, error)
	WaitForReceipt(ctx context.Context, h domain.TxHandle, minConfirmations uint64) (*domain.Receipt, error)
}

// LogSubscriber streams logs emitted by address matching the event topic.
// onMatch is called for every matching log until the returned cancel func
// is called or ctx ends.
type LogSubscriber interface {
	SubscribeToLog(
		ctx context.Context,
		address domain.Address,
		eventTopic string,
		fromBlock uint64,
		onMatch func(domain.Log),
	) (func(), error)
}

// LogDecoder decodes logs against the contract ABIs known to the collaborator.
type LogDecoder interface {
	EventTopic(contract domain.Contract, event string) (string, error)
	DecodeLog(contract domain.Contract, event string, log domain.Log) (map[string]any, error)
}

// Binding is a placeholder for an output of an earlier step.
type Binding struct {
	Step int
	Key  string
}

func (b Binding) String() string {
	return fmt.Sprintf("step[%d].%s", b.Step, b.Key)
}

// StepSpec describes one on-chain write. Target and Args entries may be
// Binding values; everything else is literal.
type StepSpec struct {
	Name     string
	Contract domain.Contract
	Method   string
	Target   any
	Args     []any
	Extract  Extractor
}

// Resolve replaces bindings using outputs captured from previous steps.
func (s StepSpec) Resolve(index int, from domain.Address, outputs []domain.StepOutput) (domain.Call, error) {
	target, err := resolveArg(index, s.Target, outputs)
	if err != nil {
		return domain.Call{}, err
	}

	to, ok := asAddress(target)
	if !ok {
		return domain.Call{}, domain.StepError(domain.KindInvalidInput, index, s.Name,
			fmt.Errorf("target %v is not a valid address", target))
	}

	args := make([]any, len(s.Args))
	for i, a := range s.Args {
		v, err := resolveArg(index, a, outputs)
		if err != nil {
			return domain.Call{}, err
		}
		args[i] = v
	}

	return domain.Call{
		From:     from,
		To:       to,
		Contract: s.Contract,
		Method:   s.Method,
		Args:     args,
	}, nil
}

func resolveArg(index int, a any, outputs []domain.StepOutput) (any, error) {
	b, ok := a.(Binding)
	if !ok {
		return a, nil
	}
	if b.Step < 0 || b.Step >= index || b.Step >= len(outputs) {
		return nil, domain.StepError(domain.KindUnresolvedBinding, index, "resolve",
			fmt.Errorf("%s is not produced before step %d", b, index))
	}
	v, ok := outputs[b.Step][b.Key]
	if !ok || v == nil {
		return nil, domain.StepError(domain.KindUnresolvedBinding, index, "resolve",
			fmt.Errorf("%s was never produced", b))
	}
	return v, nil
}

func asAddress(v any) (domain.Address, bool) {
	switch t := v.(type) {
	case domain.Address:
		if domain.IsValidAddress(string(t)) {
			return t, true
		}
	case string:
		if a, err := domain.ParseAddress(t); err == nil {
			return a, true
		}
	}
	return "", false
}

// hasPlaceholder reports whether any binding survived resolution.
func hasPlaceholder(call domain.Call) bool {
	for _, a := range call.Args {
		if _, ok := a.(Binding); ok {
			return true
		}
	}
	return false
}
