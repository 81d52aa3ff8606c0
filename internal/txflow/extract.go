package txflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// DefaultSubscribeTimeout bounds the log subscription fallback.
const DefaultSubscribeTimeout = 30 * time.Second

// ErrLogNotFound is returned when the expected log is neither in the
// receipt nor observed through the subscription.
var ErrLogNotFound = errors.New("txflow: expected log not found")

// Extractor turns a confirmed receipt into named outputs.
type Extractor interface {
	Extract(ctx context.Context, call domain.Call, receipt *domain.Receipt) (domain.StepOutput, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, call domain.Call, receipt *domain.Receipt) (domain.StepOutput, error)

func (f ExtractorFunc) Extract(ctx context.Context, call domain.Call, receipt *domain.Receipt) (domain.StepOutput, error) {
	return f(ctx, call, receipt)
}

// LogExtractor decodes a named event emitted by the called contract and
// exposes selected fields as outputs. Fields maps event field name to
// output key.
//
// Receipt logs are searched first. When the event is absent there, the
// extractor subscribes to the contract starting at the receipt block and
// takes the first log carrying the receipt's transaction hash.
type LogExtractor struct {
	Decoder    LogDecoder
	Subscriber LogSubscriber
	Contract   domain.Contract
	Event      string
	Fields     map[string]string
	Timeout    time.Duration
	Logger     *slog.Logger
}

func (x *LogExtractor) Extract(ctx context.Context, call domain.Call, receipt *domain.Receipt) (domain.StepOutput, error) {
	if receipt == nil {
		return nil, fmt.Errorf("%s: nil receipt", x.Event)
	}
	topic, err := x.Decoder.EventTopic(x.Contract, x.Event)
	if err != nil {
		return nil, err
	}

	for _, l := range receipt.Logs {
		if !x.matches(l, call.To, topic) {
			continue
		}
		return x.decode(l)
	}

	if x.Subscriber == nil {
		return nil, fmt.Errorf("%w: %s in tx %s", ErrLogNotFound, x.Event, receipt.TxHash)
	}
	return x.await(ctx, call.To, topic, receipt)
}

func (x *LogExtractor) await(
	ctx context.Context,
	address domain.Address,
	topic string,
	receipt *domain.Receipt,
) (domain.StepOutput, error) {
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan domain.Log, 1)
	unsubscribe, err := x.Subscriber.SubscribeToLog(ctx, address, topic, receipt.BlockNumber, func(l domain.Log) {
		if !strings.EqualFold(l.TxHash, receipt.TxHash) {
			return
		}
		select {
		case found <- l:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", x.Event, err)
	}
	defer unsubscribe()

	x.logger().Debug("log missing from receipt, subscribed", "event", x.Event, "tx", receipt.TxHash)

	select {
	case l := <-found:
		return x.decode(l)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s in tx %s", ErrLogNotFound, x.Event, receipt.TxHash)
	}
}

func (x *LogExtractor) matches(l domain.Log, address domain.Address, topic string) bool {
	if len(l.Topics) == 0 || !strings.EqualFold(l.Topics[0], topic) {
		return false
	}
	return address == "" || l.Address.Equal(address)
}

func (x *LogExtractor) decode(l domain.Log) (domain.StepOutput, error) {
	fields, err := x.Decoder.DecodeLog(x.Contract, x.Event, l)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", x.Event, err)
	}
	out := domain.StepOutput{}
	for field, key := range x.Fields {
		v, ok := fields[field]
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", x.Event, field)
		}
		out[key] = v
	}
	return out, nil
}

func (x *LogExtractor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return slog.Default()
}
