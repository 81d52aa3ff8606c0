package txflow

import (
	"testing"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

func TestCanTransition(t *testing.T) {
	pos := func(s domain.WorkflowState, step int) Position { return Position{State: s, Step: step} }

	tests := []struct {
		name     string
		from     Position
		to       Position
		expected bool
	}{
		{"idle to running", pos(domain.WorkflowIdle, 0), pos(domain.WorkflowRunning, 0), true},
		{"idle to failed", pos(domain.WorkflowIdle, 0), pos(domain.WorkflowStepFailed, 0), true},
		{"idle to later step", pos(domain.WorkflowIdle, 0), pos(domain.WorkflowRunning, 1), false},
		{"idle to completed", pos(domain.WorkflowIdle, 0), pos(domain.WorkflowCompleted, 0), false},
		{"running to awaiting", pos(domain.WorkflowRunning, 1), pos(domain.WorkflowAwaitingConfirmation, 1), true},
		{"running to awaiting other step", pos(domain.WorkflowRunning, 1), pos(domain.WorkflowAwaitingConfirmation, 2), false},
		{"running to completed", pos(domain.WorkflowRunning, 1), pos(domain.WorkflowCompleted, 1), false},
		{"awaiting to next running", pos(domain.WorkflowAwaitingConfirmation, 1), pos(domain.WorkflowRunning, 2), true},
		{"awaiting to same running", pos(domain.WorkflowAwaitingConfirmation, 1), pos(domain.WorkflowRunning, 1), false},
		{"awaiting to skipped running", pos(domain.WorkflowAwaitingConfirmation, 1), pos(domain.WorkflowRunning, 3), false},
		{"awaiting to completed", pos(domain.WorkflowAwaitingConfirmation, 2), pos(domain.WorkflowCompleted, 2), true},
		{"awaiting to failed next", pos(domain.WorkflowAwaitingConfirmation, 0), pos(domain.WorkflowStepFailed, 1), true},
		{"step goes back", pos(domain.WorkflowAwaitingConfirmation, 2), pos(domain.WorkflowStepFailed, 1), false},
		{"failed is terminal", pos(domain.WorkflowStepFailed, 1), pos(domain.WorkflowRunning, 2), false},
		{"completed is terminal", pos(domain.WorkflowCompleted, 1), pos(domain.WorkflowRunning, 2), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTransitionIsValid(t *testing.T) {
	tr := NewTransition(
		Position{State: domain.WorkflowRunning, Step: 0},
		Position{State: domain.WorkflowAwaitingConfirmation, Step: 0},
	)
	if !tr.IsValid() {
		t.Error("expected running -> awaiting to be valid")
	}
	if tr.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestStateDescription(t *testing.T) {
	states := []domain.WorkflowState{
		domain.WorkflowIdle,
		domain.WorkflowRunning,
		domain.WorkflowAwaitingConfirmation,
		domain.WorkflowStepFailed,
		domain.WorkflowCompleted,
	}
	for _, s := range states {
		if d := StateDescription(s); d == "" || d == "unknown" {
			t.Errorf("StateDescription(%s) = %q", s, d)
		}
	}
	if StateDescription(domain.WorkflowAwaitingConfirmation) != "awaiting confirmation" {
		t.Error("unexpected awaiting confirmation wording")
	}
	if StateDescription("bogus") != "unknown" {
		t.Error("expected unknown state description")
	}
}
