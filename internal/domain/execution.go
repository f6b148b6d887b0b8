package domain

import "time"

// ExecutionStatus is the execution lifecycle status.
type ExecutionStatus string

const (
	ExecQueued         ExecutionStatus = "queued"
	ExecRunning        ExecutionStatus = "running"
	ExecSucceeded      ExecutionStatus = "succeeded"
	ExecFailed         ExecutionStatus = "failed"
	ExecRetryScheduled ExecutionStatus = "retry_scheduled"
	ExecCanceled       ExecutionStatus = "canceled"
)

// BackoffStrategy is the retry backoff function used to compute
// next_retry_at.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffNone        BackoffStrategy = "none"
)

// InvocationOutcome is the tagged variant of what the agent runtime reports
// back for one invocation attempt (replaces the source's duck-typed result
// dataclass).
type InvocationOutcome string

const (
	OutcomeSuccess  InvocationOutcome = "success"
	OutcomeFailure  InvocationOutcome = "failure"
	OutcomeDeferred InvocationOutcome = "deferred"
)

// Execution is one invocation attempt for a schedule firing.
type Execution struct {
	ID           string
	TaskIntentID string
	ScheduleID   string
	ScheduledFor time.Time
	TraceID      string

	Status       ExecutionStatus
	AttemptCount int
	RetryCount   int
	MaxAttempts  int

	StartedAt  *time.Time
	FinishedAt *time.Time

	FailureCount          int
	RetryBackoffStrategy  *BackoffStrategy
	NextRetryAt           *time.Time
	LastErrorCode         *string
	LastErrorMessage      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invariant checks the two universal execution invariants.
func (e *Execution) Invariant() error {
	if e.AttemptCount > e.MaxAttempts {
		return ErrValidation
	}
	if e.Status == ExecRetryScheduled {
		if e.NextRetryAt == nil || e.AttemptCount >= e.MaxAttempts {
			return ErrValidation
		}
	}
	return nil
}

// ExecutionCreateInput is the input to creating a queued execution row.
type ExecutionCreateInput struct {
	TaskIntentID         string
	ScheduleID           string
	ScheduledFor         time.Time
	TraceID              string
	Status               ExecutionStatus
	AttemptCount         int
	MaxAttempts          int
	RetryBackoffStrategy *BackoffStrategy
}

// ExecutionUpdateInput carries Opt-wrapped fields for an execution state
// transition; only set fields are written.
type ExecutionUpdateInput struct {
	Status               Opt[ExecutionStatus]
	StartedAt            Opt[*time.Time]
	FinishedAt           Opt[*time.Time]
	AttemptCount         Opt[int]
	RetryCount           Opt[int]
	FailureCount         Opt[int]
	RetryBackoffStrategy Opt[*BackoffStrategy]
	NextRetryAt          Opt[*time.Time]
	LastErrorCode        Opt[*string]
	LastErrorMessage     Opt[*string]
}

// ExecutionFilter composes conjunctively over the query service's list
// operation.
type ExecutionFilter struct {
	ScheduleID *string
	Status     *ExecutionStatus
}
