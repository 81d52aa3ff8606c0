package txflow

import (
	"errors"
	"time"

	"github.com/vietddude/ticketchain/internal/core/domain"
)

// ErrInvalidTransition is returned by a workflow that refused a move the
// state graph does not allow.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[domain.WorkflowState][]domain.WorkflowState{
	domain.WorkflowIdle: {domain.WorkflowRunning, domain.WorkflowStepFailed},
	domain.WorkflowRunning: {
		domain.WorkflowAwaitingConfirmation,
		domain.WorkflowStepFailed,
	},
	domain.WorkflowAwaitingConfirmation: {
		domain.WorkflowRunning,
		domain.WorkflowStepFailed,
		domain.WorkflowCompleted,
	},
}

// Position is a state paired with the step index it refers to.
type Position struct {
	State domain.WorkflowState
	Step  int
}

// CanTransition checks the state graph and that the step index never goes back.
// Leaving Idle always lands on the first step. Running always moves to a new
// step; the other states stay on or after the current one.
func CanTransition(from, to Position) bool {
	validTargets, ok := ValidTransitions[from.State]
	if !ok {
		return false
	}
	if to.Step < from.Step {
		return false
	}
	if from.State == domain.WorkflowIdle && to.Step != 0 {
		return false
	}
	if from.State == domain.WorkflowAwaitingConfirmation && to.State == domain.WorkflowRunning &&
		to.Step != from.Step+1 {
		return false
	}
	if from.State == domain.WorkflowRunning && to.State == domain.WorkflowAwaitingConfirmation &&
		to.Step != from.Step {
		return false
	}

	for _, target := range validTargets {
		if target == to.State {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      Position
	To        Position
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to Position) Transition {
	return Transition{
		From:      from,
		To:        to,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns the human wording of a state.
func StateDescription(s domain.WorkflowState) string {
	switch s {
	case domain.WorkflowIdle:
		return "not started"
	case domain.WorkflowRunning:
		return "submitting"
	case domain.WorkflowAwaitingConfirmation:
		return "awaiting confirmation"
	case domain.WorkflowStepFailed:
		return "failed"
	case domain.WorkflowCompleted:
		return "completed"
	default:
		return "unknown"
	}
}
