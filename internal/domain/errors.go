package domain

import "errors"

// Sentinel errors returned by the data access layer. internal/apierr maps
// these once, at the command/query service boundary, into the stable
// taxonomy.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflicting entity already exists")
	ErrImmutableField      = errors.New("field is immutable after creation")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrMissingActorContext = errors.New("actor context is incomplete")
	ErrDuplicateExecution  = errors.New("execution already exists for this trace id")
)
