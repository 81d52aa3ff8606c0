package txflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

const (
	addrFactory = domain.Address("0x1111111111111111111111111111111111111111")
	addrEvent   = domain.Address("0x2222222222222222222222222222222222222222")
	addrCaller  = domain.Address("0x3333333333333333333333333333333333333333")
	topicMade   = "0xaaaa"
)

// fakeWriter records submissions. Hooks are optional; by default every
// write succeeds and is included in block 100 + n.
type fakeWriter struct {
	mu        sync.Mutex
	submitted []domain.Call

	submitFn func(n int, call domain.Call) (domain.TxHandle, error)
	waitFn   func(ctx context.Context, h domain.TxHandle) (*domain.Receipt, error)
}

func (w *fakeWriter) SubmitWrite(ctx context.Context, call domain.Call) (domain.TxHandle, error) {
	w.mu.Lock()
	n := len(w.submitted)
	w.submitted = append(w.submitted, call)
	w.mu.Unlock()

	if w.submitFn != nil {
		return w.submitFn(n, call)
	}
	return domain.TxHandle(fmt.Sprintf("0xtx%d", n)), nil
}

func (w *fakeWriter) WaitForReceipt(ctx context.Context, h domain.TxHandle, minConfirmations uint64) (*domain.Receipt, error) {
	if w.waitFn != nil {
		return w.waitFn(ctx, h)
	}
	return &domain.Receipt{
		TxHash:        string(h),
		Status:        domain.TxStatusSuccess,
		BlockNumber:   100,
		Confirmations: minConfirmations,
	}, nil
}

func (w *fakeWriter) calls() []domain.Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Call(nil), w.submitted...)
}

type fakeDecoder struct{}

func (fakeDecoder) EventTopic(contract domain.Contract, event string) (string, error) {
	return topicMade, nil
}

func (fakeDecoder) DecodeLog(contract domain.Contract, event string, l domain.Log) (map[string]any, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("missing indexed topic")
	}
	return map[string]any{"eventAddress": domain.Address(l.Topics[1])}, nil
}

type fakeSubscriber struct {
	logs []domain.Log
	err  error
}

func (s *fakeSubscriber) SubscribeToLog(
	ctx context.Context,
	address domain.Address,
	eventTopic string,
	fromBlock uint64,
	onMatch func(domain.Log),
) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	go func() {
		for _, l := range s.logs {
			onMatch(l)
		}
	}()
	return func() {}, nil
}

// staticExtractor always yields the same output.
func staticExtractor(out domain.StepOutput) Extractor {
	return ExtractorFunc(func(ctx context.Context, call domain.Call, r *domain.Receipt) (domain.StepOutput, error) {
		return out, nil
	})
}
