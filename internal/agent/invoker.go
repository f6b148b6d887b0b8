// Package agent defines the agent-runtime boundary: the
// InvocationRequest built from an execution/schedule/task-intent triple, the
// InvocationResult the runtime reports back, and the Invoker port the
// dispatcher calls through out-of-transaction.
package agent

import (
	"context"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// ExecutionSnapshot is the execution slice of an InvocationRequest.
type ExecutionSnapshot struct {
	ID              string
	ScheduleID      string
	TaskIntentID    string
	ScheduledFor    time.Time
	AttemptNumber   int
	MaxAttempts     int
	BackoffStrategy *domain.BackoffStrategy
	RetryAfter      *time.Time
	TraceID         string
}

// TaskIntentSnapshot is the task-intent slice of an InvocationRequest.
type TaskIntentSnapshot struct {
	Summary         string
	Details         *string
	OriginReference *string
}

// ScheduleSnapshot is the schedule slice of an InvocationRequest.
type ScheduleSnapshot struct {
	ScheduleType  domain.ScheduleType
	Timezone      string
	Definition    domain.ScheduleDefinition
	NextRunAt     *time.Time
	LastRunAt     *time.Time
	LastRunStatus *string
}

// Metadata carries callback provenance through to the agent runtime.
type Metadata struct {
	ActualStartedAt time.Time
	TriggerSource   string
	CallbackID      string
}

// InvocationRequest is the language-neutral record the dispatcher builds and
// commits before calling out to the agent runtime (the outbound
// boundary). ActorContext is always the fixed scheduled/constrained/limited
// identity.
type InvocationRequest struct {
	Execution    ExecutionSnapshot
	TaskIntent   TaskIntentSnapshot
	Schedule     ScheduleSnapshot
	ActorContext domain.ActorContext
	Metadata     Metadata
}

// RetryHint carries the runtime's own opinion on backoff, when it has one.
type RetryHint struct {
	RetryAfter      *time.Time
	BackoffStrategy *domain.BackoffStrategy
}

// InvocationError is the structured error slice of an InvocationResult.
type InvocationError struct {
	ErrorCode    string
	ErrorMessage string
}

// InvocationResult is what the agent runtime reports back for one attempt.
type InvocationResult struct {
	Status             domain.InvocationOutcome
	ResultCode         string
	AttentionRequired  bool
	Message            *string
	SideEffectsSummary *string
	RetryHint          *RetryHint
	Error              *InvocationError
}

// Invoker is the agent-runtime boundary. Implementations must never panic;
// any unexpected failure is the dispatcher's job to translate into a
// failure InvocationResult with error_code=invoker_exception ("on thrown
// exception, treat as failure").
type Invoker interface {
	Invoke(ctx context.Context, req InvocationRequest) (InvocationResult, error)
}
