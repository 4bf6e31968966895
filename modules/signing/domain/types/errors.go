package types

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidTransition   ErrorKind = "INVALID_TRANSITION"
	KindAlreadySigned       ErrorKind = "ALREADY_SIGNED"
	KindOutOfOrderSignature ErrorKind = "OUT_OF_ORDER_SIGNATURE"
	KindWorkflowTerminal    ErrorKind = "WORKFLOW_TERMINAL"
	KindLedgerCorruption    ErrorKind = "LEDGER_CORRUPTION"
	KindElapsedTimeAnomaly  ErrorKind = "ELAPSED_TIME_ANOMALY"
	KindConcurrencyConflict ErrorKind = "CONCURRENCY_CONFLICT"
	KindRoleMismatch        ErrorKind = "ROLE_MISMATCH"
	KindContractNotFound    ErrorKind = "CONTRACT_NOT_FOUND"
	KindInvalidArgument     ErrorKind = "INVALID_ARGUMENT"
)

// Error is the typed outcome of a rejected workflow operation.
// Role is the role the caller acted on; Required is the prerequisite
// role for OUT_OF_ORDER_SIGNATURE.
type Error struct {
	Kind     ErrorKind
	Role     Role
	Required Role
	State    State
	Message  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrAlreadySigned       = &Error{Kind: KindAlreadySigned}
	ErrOutOfOrderSignature = &Error{Kind: KindOutOfOrderSignature}
	ErrWorkflowTerminal    = &Error{Kind: KindWorkflowTerminal}
	ErrLedgerCorruption    = &Error{Kind: KindLedgerCorruption}
	ErrElapsedTimeAnomaly  = &Error{Kind: KindElapsedTimeAnomaly}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
	ErrRoleMismatch        = &Error{Kind: KindRoleMismatch}
	ErrContractNotFound    = &Error{Kind: KindContractNotFound}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
)

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a workflow error, or "" for any other error.
func KindOf(err error) ErrorKind {
	if e, ok := errors.AsType[*Error](err); ok && e != nil {
		return e.Kind
	}
	return ""
}
