// Package apierr maps domain and infrastructure errors to the stable,
// externally-visible error codes the HTTP transport and dispatcher log
// against. It generalizes a per-handler errors.Is switch into one
// table so every caller (HTTP handlers, the dispatcher, the seed tool) maps
// errors the same way.
package apierr

import (
	"errors"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// Code is a stable, machine-readable error code safe to expose to clients.
type Code string

const (
	CodeNotFound               Code = "not_found"
	CodeValidation             Code = "validation_error"
	CodeConflict               Code = "conflict"
	CodeImmutableField         Code = "immutable_field"
	CodeInvalidStateTransition Code = "invalid_state_transition"
	CodeMissingActorContext    Code = "missing_actor_context"
	CodeDuplicateExecution     Code = "duplicate_execution"
	CodeCapabilityDenied       Code = "capability_denied"
	CodeAdapterSync            Code = "adapter_error"
	CodeInternal               Code = "internal_error"
)

// HTTPStatus mirrors a handler-level switch table, but keyed
// centrally rather than repeated per handler.
var httpStatus = map[Code]int{
	CodeNotFound:               404,
	CodeValidation:             400,
	CodeConflict:               409,
	CodeImmutableField:         409,
	CodeInvalidStateTransition: 409,
	CodeMissingActorContext:    400,
	CodeDuplicateExecution:     409,
	CodeCapabilityDenied:       403,
	CodeAdapterSync:            502,
	CodeInternal:               500,
}

// Error is the typed, client-safe error wrapping an internal cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code a Gin handler should respond with.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

func wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// NewCapabilityDenied builds the typed error for a capability-gate denial,
// so internal/capability doesn't need to know about HTTP status mapping.
func NewCapabilityDenied(reason string, cause error) *Error {
	return wrap(CodeCapabilityDenied, reason, cause)
}

// NewAdapterSync builds the typed error for a post-commit timer-adapter
// sync failure. The DB transaction is never rolled back for this — reason
// is the "adapter_sync_failed:<event>:<code>" string also recorded on the
// follow-up audit row.
func NewAdapterSync(reason string, cause error) *Error {
	return wrap(CodeAdapterSync, reason, cause)
}

// Map translates a domain/infrastructure error into the stable taxonomy.
// Unrecognized errors map to CodeInternal, matching the usual
// handler-level default branch.
func Map(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return wrap(CodeNotFound, "resource not found", err)
	case errors.Is(err, domain.ErrValidation):
		return wrap(CodeValidation, "validation failed", err)
	case errors.Is(err, domain.ErrConflict):
		return wrap(CodeConflict, "conflicting state", err)
	case errors.Is(err, domain.ErrImmutableField):
		return wrap(CodeImmutableField, "field is immutable", err)
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return wrap(CodeInvalidStateTransition, "invalid state transition", err)
	case errors.Is(err, domain.ErrMissingActorContext):
		return wrap(CodeMissingActorContext, "missing actor context", err)
	case errors.Is(err, domain.ErrDuplicateExecution):
		return wrap(CodeDuplicateExecution, "duplicate execution", err)
	default:
		return wrap(CodeInternal, "internal server error", err)
	}
}
