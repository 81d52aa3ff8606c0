package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide whether to retry,
// surface an actionable message, or start a fresh workflow.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindUserRejected       ErrorKind = "user_rejected"
	KindSubmissionTimeout  ErrorKind = "submission_timeout"
	KindExecutionReverted  ErrorKind = "execution_reverted"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindQuantityOutOfRange ErrorKind = "quantity_out_of_range"
	KindUnresolvedBinding  ErrorKind = "unresolved_binding"
	KindNotFound           ErrorKind = "not_found"
	KindRPCUnavailable     ErrorKind = "rpc_unavailable"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrUserRejected       = &Error{Kind: KindUserRejected}
	ErrSubmissionTimeout  = &Error{Kind: KindSubmissionTimeout}
	ErrExecutionReverted  = &Error{Kind: KindExecutionReverted}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrQuantityOutOfRange = &Error{Kind: KindQuantityOutOfRange}
	ErrUnresolvedBinding  = &Error{Kind: KindUnresolvedBinding}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrRPCUnavailable     = &Error{Kind: KindRPCUnavailable}
)

// Retryable reports whether the kind allows attempting the operation again.
// It says nothing about whether a transaction was already handed to the
// network; use the package-level Retryable for a concrete error.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRPCUnavailable, KindSubmissionTimeout, KindUserRejected:
		return true
	default:
		return false
	}
}

// Recoverable reports whether the user can fix the condition directly.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindInvalidInput, KindQuantityOutOfRange, KindInsufficientFunds, KindNotFound, KindUserRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the kind ends the current workflow instance
// and requires a fresh one to retry.
func (k ErrorKind) Terminal() bool {
	return k == KindExecutionReverted || k == KindUnresolvedBinding
}

// Error is the typed error carried through every layer.
type Error struct {
	Kind ErrorKind
	Op   string
	// Step is the workflow step index, -1 when not tied to a step.
	Step int
	// TxHash is set once the network accepted the write. A failure after
	// that point must not be answered by submitting again.
	TxHash string
	Err    error
}

// NewError builds an Error that is not tied to a workflow step.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Step: -1, Err: err}
}

// StepError builds an Error for a workflow step.
func StepError(kind ErrorKind, step int, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Step: step, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Step >= 0 && e.Op != "" {
		msg = fmt.Sprintf("step %d: %s", e.Step, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// SubmittedTx returns the hash of the write err refers to, or "" when the
// failure happened before anything reached the network.
func SubmittedTx(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.TxHash
	}
	return ""
}

// Retryable reports whether err may be answered by running the same step
// again. A step whose transaction was already accepted never is, whatever
// its kind.
func Retryable(err error) bool {
	return KindOf(err).Retryable() && SubmittedTx(err) == ""
}

// Resolution is the follow-up a failure calls for.
type Resolution string

const (
	ResolveNone     Resolution = ""
	ResolveRetry    Resolution = "retry"
	ResolveCheckTx  Resolution = "check_tx"
	ResolveFixInput Resolution = "fix_input"
	ResolveRestart  Resolution = "restart"
)

// ResolutionOf maps err onto the action a user should take next.
func ResolutionOf(err error) Resolution {
	kind := KindOf(err)
	switch {
	case kind == "":
		return ResolveNone
	case kind.Terminal():
		return ResolveRestart
	case SubmittedTx(err) != "" && kind.Retryable():
		return ResolveCheckTx
	case kind.Retryable():
		return ResolveRetry
	case kind.Recoverable():
		return ResolveFixInput
	}
	return ResolveNone
}

// Message returns a short actionable text for kinds surfaced to users.
func Message(err error) string {
	if tx := SubmittedTx(err); tx != "" && ResolutionOf(err) == ResolveCheckTx {
		return fmt.Sprintf("Transaction %s was sent but not confirmed in time. It may still be mined; check its status before trying again.", tx)
	}
	switch KindOf(err) {
	case KindInvalidInput:
		return "Invalid input: check addresses and amounts and try again."
	case KindUserRejected:
		return "The signature request was declined. You can retry this step."
	case KindSubmissionTimeout:
		return "The network did not respond in time. Nothing was confirmed; it is safe to retry."
	case KindExecutionReverted:
		return "The transaction reverted on-chain. Start a new attempt after checking the inputs."
	case KindInsufficientFunds:
		return "Token balance is too low for this purchase."
	case KindQuantityOutOfRange:
		return "Requested quantity is outside the allowed range for this tier."
	case KindUnresolvedBinding:
		return "Internal error: a step depended on an output that was never produced."
	case KindNotFound:
		return "Not found: the address does not point to a known contract."
	case KindRPCUnavailable:
		return "The RPC endpoint is unavailable. Please retry shortly."
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
