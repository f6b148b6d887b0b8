// Package dispatch implements the execution dispatcher: it turns a
// timer-engine callback into execution rows, invokes the agent runtime,
// maps the result into a state transition via the retry policy engine, and
// updates the parent schedule. Dispatcher failures never surface to the
// caller of the timer engine — they are logged, and a retried
// delivery becomes a no-op via the idempotency check.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cmtonkinson/brain-scheduler/internal/agent"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/notify"
	"github.com/cmtonkinson/brain-scheduler/internal/predicate"
	"github.com/cmtonkinson/brain-scheduler/internal/retry"
	"github.com/cmtonkinson/brain-scheduler/internal/timeradapter"
	"github.com/cmtonkinson/brain-scheduler/internal/timing"
)

// scheduleStore is the slice of the schedule data access layer the
// dispatcher needs: load the firing schedule and persist its post-fire
// bookkeeping.
type scheduleStore interface {
	Get(ctx context.Context, id string) (*domain.Schedule, error)
	Update(ctx context.Context, actor domain.ActorContext, id string, in domain.ScheduleUpdateInput) (*domain.Schedule, error)
}

// taskIntentStore is the slice of the task-intent data access layer the
// dispatcher needs: resolve the intent a schedule points at.
type taskIntentStore interface {
	Get(ctx context.Context, id string) (*domain.TaskIntent, error)
}

// executionLookup is the idempotency check the dispatcher runs before
// standing up a new execution for a callback.
type executionLookup interface {
	FindByScheduleAndTrace(ctx context.Context, scheduleID, traceID string) (*domain.Execution, error)
}

// executionRunner drives the two atomic, multi-statement execution
// transitions: standing an execution up, and settling its final outcome
// alongside the parent schedule update.
type executionRunner interface {
	CreateAndStart(ctx context.Context, actor domain.ActorContext, in domain.ExecutionCreateInput) (*domain.Execution, error)
	Settle(ctx context.Context, actor domain.ActorContext, executionID string, execUpdate domain.ExecutionUpdateInput, eventType string, scheduleID string, scheduleUpdate domain.ScheduleUpdateInput) (*domain.Execution, error)
}

// Status is the dispatch entry point's own result tag — distinct from
// execution status, since "duplicate" and "skipped" never create or update
// an execution row at all.
type Status string

const (
	StatusDuplicate  Status = "duplicate"
	StatusSkipped    Status = "skipped"
	StatusDispatched Status = "dispatched"
)

// Result is dispatch's return value.
type Result struct {
	Status      Status
	ExecutionID *string
}

// ErrScheduleInactive is returned (and not retried) when the callback's
// schedule is not in a state that permits firing.
var ErrScheduleInactive = errors.New("schedule is not active")

// Dispatcher wires together the stores and boundary ports dispatch needs.
// Its dependencies are narrow interfaces rather than concrete store types so
// tests can substitute fakes without a live database.
type Dispatcher struct {
	schedules    scheduleStore
	taskIntents  taskIntentStore
	executions   executionLookup
	runner       executionRunner
	predicateSvc *predicate.Service
	invoker      agent.Invoker
	notifier     *notify.Router
	policy       retry.Policy
	log          *slog.Logger
}

// New builds a Dispatcher backed by the given pool-derived stores.
func New(schedules scheduleStore, taskIntents taskIntentStore, executions executionLookup, runner executionRunner, predicateSvc *predicate.Service, invoker agent.Invoker, notifier *notify.Router, policy retry.Policy, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		schedules:    schedules,
		taskIntents:  taskIntents,
		executions:   executions,
		runner:       runner,
		predicateSvc: predicateSvc,
		invoker:      invoker,
		notifier:     notifier,
		policy:       policy,
		log:          log,
	}
}

// Dispatch runs the full load-evaluate-execute-settle protocol for one timer callback.
func (d *Dispatcher) Dispatch(ctx context.Context, cb timeradapter.Callback) (Result, error) {
	schedule, err := d.schedules.Get(ctx, cb.ScheduleID)
	if err != nil {
		return Result{}, fmt.Errorf("load schedule: %w", err)
	}
	if !schedulePermitsFiring(schedule, cb.TriggerSource) {
		return Result{}, ErrScheduleInactive
	}

	taskIntent, err := d.taskIntents.Get(ctx, schedule.TaskIntentID)
	if err != nil {
		return Result{}, fmt.Errorf("load task intent: %w", err)
	}

	if existing, err := d.executions.FindByScheduleAndTrace(ctx, schedule.ID, cb.TraceID); err == nil {
		return Result{Status: StatusDuplicate, ExecutionID: &existing.ID}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	if schedule.ScheduleType == domain.ScheduleConditional {
		triggered, err := d.evaluateCondition(ctx, schedule, taskIntent, cb)
		if err != nil {
			return Result{}, err
		}
		if !triggered {
			return Result{Status: StatusSkipped}, nil
		}
	}

	execution, err := d.createAndStartExecution(ctx, schedule, taskIntent, cb)
	if err != nil {
		return Result{}, fmt.Errorf("create execution: %w", err)
	}

	invResult := d.invokeAgent(ctx, execution, schedule, taskIntent, cb)

	if err := d.applyInvocationResult(ctx, schedule, execution, invResult); err != nil {
		return Result{}, fmt.Errorf("apply invocation result: %w", err)
	}

	return Result{Status: StatusDispatched, ExecutionID: &execution.ID}, nil
}

func schedulePermitsFiring(s *domain.Schedule, source timeradapter.TriggerSource) bool {
	if s.State == domain.StateActive {
		return true
	}
	if s.State == domain.StatePaused && source == timeradapter.TriggerRunNow {
		return true
	}
	return false
}

// evaluateCondition runs the predicate-evaluation branch for a conditional schedule and
// updates the schedule's evaluation bookkeeping + next_run_at regardless of
// outcome. Returns triggered=true only when the dispatcher should proceed
// to create an execution.
func (d *Dispatcher) evaluateCondition(ctx context.Context, schedule *domain.Schedule, taskIntent *domain.TaskIntent, cb timeradapter.Callback) (bool, error) {
	actor := domain.ScheduledActorContext(cb.TraceID)
	now := time.Now().UTC()

	req := predicate.Request{
		EvaluationID:   uuid.NewString(),
		ScheduleID:     schedule.ID,
		TaskIntentID:   taskIntent.ID,
		EvaluationTime: now,
		Predicate: predicate.Definition{
			Subject:  schedule.Definition.PredicateSubject,
			Operator: schedule.Definition.PredicateOperator,
			Value:    schedule.Definition.PredicateValue,
		},
		Actor:           actor,
		ProviderName:    "subject_resolver",
		ProviderAttempt: 1,
		TraceID:         cb.TraceID,
		CorrelationID:   uuid.NewString(),
	}

	result := d.predicateSvc.Evaluate(ctx, req)

	nextEval := timing.NextConditionalEval(schedule.Definition.EvaluationIntervalCount, schedule.Definition.EvaluationIntervalUnit, now)
	statusStr := string(result.Status)
	update := domain.ScheduleUpdateInput{
		LastEvaluatedAt:      domain.Set(&now),
		LastEvaluationStatus: domain.Set(&statusStr),
		NextRunAt:            domain.Set(&nextEval),
	}
	if result.Status == predicate.StatusError {
		code := string(result.ResultCode)
		update.LastEvaluationErrorCode = domain.Set(&code)
	}

	if _, err := d.schedules.Update(ctx, actor, schedule.ID, update); err != nil {
		return false, fmt.Errorf("update schedule after evaluation: %w", err)
	}

	return result.Triggered, nil
}

// createAndStartExecution creates the queued execution row and transitions
// it to running, both audited — committed before the out-of-transaction
// agent call.
func (d *Dispatcher) createAndStartExecution(ctx context.Context, schedule *domain.Schedule, taskIntent *domain.TaskIntent, cb timeradapter.Callback) (*domain.Execution, error) {
	actor := domain.ScheduledActorContext(cb.TraceID)
	return d.runner.CreateAndStart(ctx, actor, domain.ExecutionCreateInput{
		TaskIntentID: taskIntent.ID,
		ScheduleID:   schedule.ID,
		ScheduledFor: cb.ScheduledFor,
		TraceID:      cb.TraceID,
		Status:       domain.ExecQueued,
		AttemptCount: 1,
		MaxAttempts:  d.policy.MaxAttempts,
	})
}

// invokeAgent calls the agent runtime and translates any transport-level
// error into a failure InvocationResult with error_code=invoker_exception
// rather than propagating it — the retry engine's decision table already
// knows how to handle a failure outcome.
func (d *Dispatcher) invokeAgent(ctx context.Context, execution *domain.Execution, schedule *domain.Schedule, taskIntent *domain.TaskIntent, cb timeradapter.Callback) agent.InvocationResult {
	req := agent.InvocationRequest{
		Execution: agent.ExecutionSnapshot{
			ID:              execution.ID,
			ScheduleID:      schedule.ID,
			TaskIntentID:    taskIntent.ID,
			ScheduledFor:    execution.ScheduledFor,
			AttemptNumber:   execution.AttemptCount,
			MaxAttempts:     execution.MaxAttempts,
			BackoffStrategy: execution.RetryBackoffStrategy,
			RetryAfter:      execution.NextRetryAt,
			TraceID:         execution.TraceID,
		},
		TaskIntent: agent.TaskIntentSnapshot{
			Summary:         taskIntent.Summary,
			Details:         taskIntent.Details,
			OriginReference: taskIntent.OriginReference,
		},
		Schedule: agent.ScheduleSnapshot{
			ScheduleType:  schedule.ScheduleType,
			Timezone:      schedule.Timezone,
			Definition:    schedule.Definition,
			NextRunAt:     schedule.NextRunAt,
			LastRunAt:     schedule.LastRunAt,
			LastRunStatus: schedule.LastRunStatus,
		},
		ActorContext: domain.ScheduledActorContext(cb.TraceID),
		Metadata: agent.Metadata{
			ActualStartedAt: time.Now().UTC(),
			TriggerSource:   string(cb.TriggerSource),
			CallbackID:      cb.TraceID,
		},
	}

	if d.invoker == nil {
		errCode := "invoker_exception"
		return agent.InvocationResult{
			Status:     domain.OutcomeFailure,
			ResultCode: errCode,
			Error:      &agent.InvocationError{ErrorCode: errCode, ErrorMessage: "no agent invoker configured"},
		}
	}
	result, err := d.invoker.Invoke(ctx, req)
	if err != nil {
		errCode := "invoker_exception"
		errMsg := err.Error()
		return agent.InvocationResult{
			Status:     domain.OutcomeFailure,
			ResultCode: errCode,
			Error:      &agent.InvocationError{ErrorCode: errCode, ErrorMessage: errMsg},
		}
	}
	return result
}

// applyInvocationResult maps the invocation outcome to an execution state
// transition via the retry engine, persists it, and updates the parent
// schedule per its schedule-type-specific rules. The follow-on notification
// is best-effort and never returns an error to the caller.
func (d *Dispatcher) applyInvocationResult(ctx context.Context, schedule *domain.Schedule, execution *domain.Execution, result agent.InvocationResult) error {
	now := time.Now().UTC()
	decision := retry.Decide(result.Status, d.policy, now, execution.AttemptCount, execution.RetryCount, schedule.FailureCount)
	actor := domain.ScheduledActorContext(execution.TraceID)

	execUpdate := domain.ExecutionUpdateInput{
		Status:       domain.Set(decision.NextStatus),
		FinishedAt:   domain.Set(&now),
		RetryCount:   domain.Set(decision.RetryCount),
		FailureCount: domain.Set(decision.FailureCount),
	}
	if decision.NextRetryAt != nil {
		execUpdate.NextRetryAt = domain.Set(decision.NextRetryAt)
	}
	if result.Error != nil {
		execUpdate.LastErrorCode = domain.Set(&result.Error.ErrorCode)
		execUpdate.LastErrorMessage = domain.Set(&result.Error.ErrorMessage)
	} else if decision.ErrorCode != nil {
		execUpdate.LastErrorCode = domain.Set(decision.ErrorCode)
	}

	scheduleUpdate := domain.ScheduleUpdateInput{
		LastRunAt:       domain.Set(&now),
		LastExecutionID: domain.Set(&execution.ID),
	}
	lastStatus := string(decision.NextStatus)
	scheduleUpdate.LastRunStatus = domain.Set(&lastStatus)

	switch decision.NextStatus {
	case domain.ExecSucceeded:
		scheduleUpdate.FailureCount = domain.Set(0)
	case domain.ExecFailed, domain.ExecRetryScheduled:
		scheduleUpdate.FailureCount = domain.Set(decision.FailureCount)
	}

	switch schedule.ScheduleType {
	case domain.ScheduleInterval:
		next := timing.NextInterval(schedule.Definition.IntervalCount, schedule.Definition.IntervalUnit, schedule.Definition.AnchorAt, now, schedule.CreatedAt)
		scheduleUpdate.NextRunAt = domain.Set(&next)
	case domain.ScheduleCalendarRule:
		loc, locErr := time.LoadLocation(schedule.Timezone)
		if locErr != nil {
			loc = time.UTC
		}
		next, rErr := timing.NextCalendar(schedule.Definition.RRule, schedule.Definition.CalendarAnchorAt, now, loc)
		if rErr == nil {
			scheduleUpdate.NextRunAt = domain.Set(&next)
		} else {
			scheduleUpdate.NextRunAt = domain.Set[*time.Time](nil)
			d.log.Warn("rrule exhausted, clearing next_run_at", "schedule_id", schedule.ID, "error", rErr)
		}
	case domain.ScheduleOneTime:
		scheduleUpdate.NextRunAt = domain.Set[*time.Time](nil)
		if decision.NextStatus == domain.ExecSucceeded {
			scheduleUpdate.State = domain.Set(domain.StateCompleted)
		}
	}

	updatedExec, err := d.runner.Settle(ctx, actor, execution.ID, execUpdate, string(decision.NextStatus), schedule.ID, scheduleUpdate)
	if err != nil {
		return err
	}

	d.notify(ctx, updatedExec, schedule, result)
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, execution *domain.Execution, schedule *domain.Schedule, result agent.InvocationResult) {
	if d.notifier == nil {
		return
	}
	if execution.Status == domain.ExecSucceeded && !result.AttentionRequired {
		return
	}
	severity := notify.SeverityWarning
	if execution.Status == domain.ExecFailed {
		severity = notify.SeverityCritical
	}
	n := notify.Notification{
		ExecutionID: execution.ID,
		ScheduleID:  schedule.ID,
		ResultCode:  result.ResultCode,
		Severity:    severity,
		Message:     result.Message,
	}
	if result.Error != nil {
		n.ErrorCode = &result.Error.ErrorCode
		n.ErrorMessage = &result.Error.ErrorMessage
	}
	d.notifier.NotifyIfNeeded(ctx, n)
}
