package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/ticketchain/internal/infra/rpc/provider"
)

// MockProvider implements provider.Provider for client tests
type MockProvider struct {
	name       string
	shouldFail bool
	down       bool
	failWith   error
	callCount  int
	batchCount int
}

func (m *MockProvider) GetName() string {
	return m.name
}

func (m *MockProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	m.callCount++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.shouldFail {
		return nil, fmt.Errorf("mock provider %s failed", m.name)
	}
	return m.name + "_result", nil
}

func (m *MockProvider) BatchCall(
	ctx context.Context,
	requests []provider.BatchRequest,
) ([]provider.BatchResponse, error) {
	m.batchCount++
	if m.shouldFail {
		return nil, fmt.Errorf("mock provider %s failed", m.name)
	}
	out := make([]provider.BatchResponse, len(requests))
	for i := range requests {
		out[i] = provider.BatchResponse{Result: m.name}
	}
	return out, nil
}

func (m *MockProvider) GetHealth() provider.HealthStatus {
	return provider.HealthStatus{
		Available: !m.down,
	}
}

func (m *MockProvider) IsAvailable() bool {
	return !m.down
}

func (m *MockProvider) Close() error {
	return nil
}

var testRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        time.Millisecond,
	BackoffMultiple: 1,
}

// TestRPC_RetryAndFailover verifies retry on primary provider
// and failover to secondary provider
func TestRPC_RetryAndFailover(t *testing.T) {
	ctx := context.Background()

	// Primary provider always fails
	primary := &MockProvider{
		name:       "primary",
		shouldFail: true,
	}

	// Secondary provider succeeds
	secondary := &MockProvider{
		name: "secondary",
	}

	client := NewClient([]Provider{primary, secondary}, WithRetryConfig(testRetry))

	result, err := client.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if result != "secondary_result" {
		t.Fatalf("unexpected result: %v", result)
	}

	if primary.callCount != testRetry.MaxAttempts {
		t.Errorf(
			"primary provider expected %d retries, got %d",
			testRetry.MaxAttempts,
			primary.callCount,
		)
	}

	if secondary.callCount != 1 {
		t.Errorf("secondary provider expected 1 call, got %d", secondary.callCount)
	}
}

func TestRPC_SendIsNotRetried(t *testing.T) {
	primary := &MockProvider{name: "primary", shouldFail: true}
	secondary := &MockProvider{name: "secondary"}

	client := NewClient([]Provider{primary, secondary}, WithRetryConfig(testRetry))
	_, err := client.Send(context.Background(), "eth_sendTransaction", []any{map[string]any{}})
	if err == nil {
		t.Fatal("expected the primary's error")
	}
	if primary.callCount != 1 || secondary.callCount != 0 {
		t.Errorf("send must hit one provider once: primary=%d secondary=%d", primary.callCount, secondary.callCount)
	}
}

func TestRPC_SendSkipsUnavailable(t *testing.T) {
	down := &MockProvider{name: "down", down: true}
	up := &MockProvider{name: "up"}

	res, err := NewClient([]Provider{down, up}).Send(context.Background(), "eth_sendTransaction", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "up_result" || down.callCount != 0 {
		t.Errorf("unexpected routing: res=%v down=%d", res, down.callCount)
	}
}

func TestRPC_FatalErrorNotFailedOver(t *testing.T) {
	primary := &MockProvider{name: "primary", failWith: &RPCError{Code: 3, Message: "execution reverted"}}
	secondary := &MockProvider{name: "secondary"}

	_, err := NewClient([]Provider{primary, secondary}, WithRetryConfig(testRetry)).
		Call(context.Background(), "eth_call", nil)
	if _, ok := AsRPCError(err); !ok {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if secondary.callCount != 0 {
		t.Error("revert must not be retried elsewhere")
	}
}

func TestRPC_BatchFailover(t *testing.T) {
	primary := &MockProvider{name: "primary", shouldFail: true}
	secondary := &MockProvider{name: "secondary"}

	res, err := NewClient([]Provider{primary, secondary}).BatchCall(context.Background(), []BatchRequest{
		{Method: "eth_call"}, {Method: "eth_call"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 || res[0].Result != "secondary" {
		t.Errorf("unexpected batch result: %+v", res)
	}
}

func TestRPC_NoProvidersAndNoSubscriptions(t *testing.T) {
	client := NewClient(nil)
	if _, err := client.Send(context.Background(), "eth_sendTransaction", nil); err == nil {
		t.Error("expected error with no providers")
	}
	if _, _, err := client.Subscribe(context.Background(), nil); !errors.Is(err, ErrNoSubscriptions) {
		t.Errorf("expected ErrNoSubscriptions, got %v", err)
	}
	if client.CanSubscribe() {
		t.Error("no websocket configured")
	}
}
