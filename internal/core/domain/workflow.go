package domain

import "time"

// WorkflowState is the coordinator's state for a multi-step write sequence.
type WorkflowState string

const (
	WorkflowIdle                 WorkflowState = "idle"
	WorkflowRunning              WorkflowState = "running"
	WorkflowAwaitingConfirmation WorkflowState = "awaiting_confirmation"
	WorkflowStepFailed           WorkflowState = "step_failed"
	WorkflowCompleted            WorkflowState = "completed"
)

// IsTerminal reports whether no further transition can follow.
func (s WorkflowState) IsTerminal() bool {
	return s == WorkflowStepFailed || s == WorkflowCompleted
}

// Progress is emitted after every workflow state transition.
type Progress struct {
	WorkflowID string
	Pipeline   string
	StepIndex  int
	TotalSteps int
	StepName   string
	State      WorkflowState
	TxHash     string
	Err        error
	At         time.Time
}

// JournalEntry records a workflow transition that involved a submitted transaction.
type JournalEntry struct {
	ID         uint64        `json:"id"          db:"id"`
	WorkflowID string        `json:"workflow_id" db:"workflow_id"`
	Pipeline   string        `json:"pipeline"    db:"pipeline"`
	ChainID    ChainID       `json:"chain_id"    db:"chain_id"`
	StepIndex  int           `json:"step_index"  db:"step_index"`
	StepName   string        `json:"step_name"   db:"step_name"`
	State      WorkflowState `json:"state"       db:"state"`
	TxHash     string        `json:"tx_hash"     db:"tx_hash"`
	ErrorKind  string        `json:"error_kind"  db:"error_kind"`
	Detail     string        `json:"detail"      db:"detail"`
	CreatedAt  time.Time     `json:"created_at"  db:"created_at"`
}
