// Package reaper recovers executions stranded in running by a worker that
// crashed between the dispatcher's create-and-start commit and the
// invocation it was about to make. It never invokes the agent runtime
// itself — it only moves a stale execution to retry_scheduled or failed via
// the same retry policy engine the dispatcher uses.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/retry"
)

// executionLister finds executions stuck in running past a heartbeat
// cutoff.
type executionLister interface {
	ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error)
}

// executionSettler applies a final state to a stale execution without
// touching the parent schedule's next-fire bookkeeping — the schedule's
// own next_run_at was already set when the execution was created.
type executionSettler interface {
	Settle(ctx context.Context, actor domain.ActorContext, executionID string, execUpdate domain.ExecutionUpdateInput, eventType string, scheduleID string, scheduleUpdate domain.ScheduleUpdateInput) (*domain.Execution, error)
}

// batchSize bounds how many stale executions one sweep reschedules or
// fails, matching the fixed-batch shape of the reference reaper.
const batchSize = 100

// Reaper periodically scans for executions stranded in running and
// resolves them via the retry policy.
type Reaper struct {
	executions       executionLister
	runner           executionSettler
	policy           retry.Policy
	interval         time.Duration
	heartbeatTimeout time.Duration
	log              *slog.Logger
}

// New builds a Reaper. policy governs whether a stale execution gets
// another attempt or is failed outright, identically to how the dispatcher
// decides after a real invocation.
func New(executions executionLister, runner executionSettler, policy retry.Policy, interval, heartbeatTimeout time.Duration, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{
		executions:       executions,
		runner:           runner,
		policy:           policy,
		interval:         interval,
		heartbeatTimeout: heartbeatTimeout,
		log:              log,
	}
}

// Start runs the scan loop until ctx is canceled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.log.Info("reaper started", "interval", r.interval, "heartbeat_timeout", r.heartbeatTimeout)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper shut down")
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// actorContext identifies the reaper's own mutations in the audit trail —
// actor_type=system rather than scheduled, which validateMutationActor
// reserves for the dispatcher alone.
func actorContext(traceID string) domain.ActorContext {
	return domain.ActorContext{
		ActorType: domain.ActorSystem,
		Channel:   "reaper",
		TraceID:   traceID,
	}
}

// Reap runs one scan: every execution stuck in running past the heartbeat
// cutoff is moved to retry_scheduled (retries remain) or failed
// (exhausted), exactly as the dispatcher's own retry.Decide would for an
// invocation that never returned.
func (r *Reaper) Reap(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.heartbeatTimeout)
	stale, err := r.executions.ListStaleRunning(ctx, cutoff, batchSize)
	if err != nil {
		r.log.ErrorContext(ctx, "reaper: list stale running executions", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	var rescheduled, failed int
	for _, exec := range stale {
		decision := retry.Decide(domain.OutcomeFailure, r.policy, time.Now().UTC(), exec.AttemptCount, exec.RetryCount, exec.FailureCount)

		code := "heartbeat_timeout"
		execUpdate := domain.ExecutionUpdateInput{
			Status:           domain.Set(decision.NextStatus),
			RetryCount:       domain.Set(decision.RetryCount),
			FailureCount:     domain.Set(decision.FailureCount),
			LastErrorCode:    domain.Set(&code),
			LastErrorMessage: domain.Set(strPtr("execution exceeded heartbeat timeout while running")),
		}
		if decision.NextRetryAt != nil {
			execUpdate.NextRetryAt = domain.Set(decision.NextRetryAt)
		} else {
			now := time.Now().UTC()
			execUpdate.FinishedAt = domain.Set(&now)
		}

		actor := actorContext(exec.TraceID)
		if _, err := r.runner.Settle(ctx, actor, exec.ID, execUpdate, string(decision.NextStatus), exec.ScheduleID, domain.ScheduleUpdateInput{}); err != nil {
			r.log.ErrorContext(ctx, "reaper: settle stale execution", "error", err, "execution_id", exec.ID)
			continue
		}
		if decision.NextStatus == domain.ExecRetryScheduled {
			rescheduled++
		} else {
			failed++
		}
	}

	if rescheduled > 0 {
		r.log.Info("reaper: rescheduled stale executions", "count", rescheduled)
	}
	if failed > 0 {
		r.log.Info("reaper: permanently failed stale executions", "count", failed)
	}
}

func strPtr(s string) *string { return &s }
