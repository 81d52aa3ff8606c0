package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// ErrBatchUnsupported may be returned by BatchReadView when the reader
// cannot batch; the builder then issues the calls concurrently.
var ErrBatchUnsupported = errors.New("snapshot: batched reads unsupported")

// Reader performs view calls. Results are decoded values: *big.Int for
// integers, domain.Address, string, bool, slices of those, and
// map[string]any for tuples keyed by component name.
type Reader interface {
	ReadView(ctx context.Context, call domain.Call) ([]any, error)
	BatchReadView(ctx context.Context, calls []domain.Call) ([]domain.ViewResult, error)
}

// decodeError marks a value that does not have the expected shape. The
// read surface is not what the ABI promises, so it is reported as NotFound.
func decodeError(op string, format string, args ...any) error {
	return domain.NewError(domain.KindNotFound, op, fmt.Errorf(format, args...))
}

// classify maps reader errors onto the two kinds a read can fail with.
func classify(op string, err error) error {
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindInvalidInput, domain.KindRPCUnavailable:
		return err
	}
	return domain.NewError(domain.KindRPCUnavailable, op, err)
}

func single(op string, values []any) (any, error) {
	if len(values) == 0 {
		return nil, decodeError(op, "empty result")
	}
	return values[0], nil
}

// Big coerces a decoded integer.
func Big(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return nil, false
		}
		return t, true
	case big.Int:
		return &t, true
	case uint8:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(t)), true
	case uint64:
		return new(big.Int).SetUint64(t), true
	case int64:
		return big.NewInt(t), true
	case int:
		return big.NewInt(int64(t)), true
	}
	return nil, false
}

// Addr coerces a decoded address.
func Addr(v any) (domain.Address, bool) {
	switch t := v.(type) {
	case domain.Address:
		return t, domain.IsValidAddress(string(t))
	case string:
		if a, err := domain.ParseAddress(t); err == nil {
			return a, true
		}
	}
	return "", false
}

// Bool coerces a decoded bool.
func Bool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// ReadBool reads a single boolean view.
func ReadBool(ctx context.Context, r Reader, call domain.Call) (bool, error) {
	op := string(call.Contract) + "." + call.Method
	values, err := r.ReadView(ctx, call)
	if err != nil {
		return false, classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return false, err
	}
	b, ok := Bool(v)
	if !ok {
		return false, decodeError(op, "expected bool, got %T", v)
	}
	return b, nil
}

// ReadBig reads a single integer view.
func ReadBig(ctx context.Context, r Reader, call domain.Call) (*big.Int, error) {
	op := string(call.Contract) + "." + call.Method
	values, err := r.ReadView(ctx, call)
	if err != nil {
		return nil, classify(op, err)
	}
	v, err := single(op, values)
	if err != nil {
		return nil, err
	}
	n, ok := Big(v)
	if !ok {
		return nil, decodeError(op, "expected integer, got %T", v)
	}
	return n, nil
}

type fields struct {
	op string
	m  map[string]any
}

func tuple(op string, v any) (fields, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return fields{}, decodeError(op, "expected tuple, got %T", v)
	}
	return fields{op: op, m: m}, nil
}

func (f fields) big(key string) (*big.Int, error) {
	n, ok := Big(f.m[key])
	if !ok {
		return nil, decodeError(f.op, "field %s: expected integer, got %T", key, f.m[key])
	}
	return n, nil
}

func (f fields) str(key string) (string, error) {
	s, ok := f.m[key].(string)
	if !ok {
		return "", decodeError(f.op, "field %s: expected string, got %T", key, f.m[key])
	}
	return s, nil
}

func (f fields) addr(key string) (domain.Address, error) {
	a, ok := Addr(f.m[key])
	if !ok {
		return "", decodeError(f.op, "field %s: expected address, got %v", key, f.m[key])
	}
	return a, nil
}

func (f fields) boolean(key string) (bool, error) {
	b, ok := Bool(f.m[key])
	if !ok {
		return false, decodeError(f.op, "field %s: expected bool, got %T", key, f.m[key])
	}
	return b, nil
}
