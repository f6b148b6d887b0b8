package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// ScheduleRunner owns the command-service's transactional writes: standing
// up a schedule with its inline task intent, and applying an update
// alongside its audit row. Each method commits one transaction; adapter
// sync against the external timer engine always happens after, never
// inside, these transactions — the post-commit step in the command
// service is what may fail independently of the already-durable write.
type ScheduleRunner struct {
	pool *pgxpool.Pool
}

func NewScheduleRunner(pool *pgxpool.Pool) *ScheduleRunner { return &ScheduleRunner{pool: pool} }

// CreateWithIntent creates the task intent, creates the schedule in draft,
// activates it with the computed next_run_at, and audits the creation —
// all in one transaction.
func (r *ScheduleRunner) CreateWithIntent(ctx context.Context, actor domain.ActorContext, in domain.ScheduleCreateInput, nextRunAt *time.Time, requestID *string) (*domain.TaskIntent, *domain.Schedule, error) {
	var intent *domain.TaskIntent
	var schedule *domain.Schedule

	err := WithTx(ctx, r.pool, func(q Querier) error {
		taskIntents := NewTaskIntentStore(q)
		schedules := NewScheduleStore(q)
		audits := NewAuditStore(q)

		var err error
		intent, err = taskIntents.Create(ctx, actor, in.Intent)
		if err != nil {
			return fmt.Errorf("create task intent: %w", err)
		}

		schedule, err = schedules.Create(ctx, actor, intent.ID, in)
		if err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}

		schedule, err = schedules.Update(ctx, actor, schedule.ID, domain.ScheduleUpdateInput{
			State:     domain.Set(domain.StateActive),
			NextRunAt: domain.Set(nextRunAt),
		})
		if err != nil {
			return fmt.Errorf("activate schedule: %w", err)
		}

		if _, err := audits.AppendSchedule(ctx, domain.ScheduleAuditRow{
			ScheduleID:   schedule.ID,
			TaskIntentID: intent.ID,
			EventType:    "create",
			Actor:        actor,
			TraceID:      actor.TraceID,
			RequestID:    requestID,
		}); err != nil {
			return fmt.Errorf("audit schedule create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return intent, schedule, nil
}

// UpdateAndAudit applies update to schedule scheduleID and audits it under
// eventType, with an optional diff summary and idempotency request id — one
// transaction.
func (r *ScheduleRunner) UpdateAndAudit(ctx context.Context, actor domain.ActorContext, scheduleID string, update domain.ScheduleUpdateInput, eventType string, requestID *string, diffSummary *string) (*domain.Schedule, error) {
	var result *domain.Schedule
	err := WithTx(ctx, r.pool, func(q Querier) error {
		schedules := NewScheduleStore(q)
		audits := NewAuditStore(q)

		updated, err := schedules.Update(ctx, actor, scheduleID, update)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}

		if _, err := audits.AppendSchedule(ctx, domain.ScheduleAuditRow{
			ScheduleID:   updated.ID,
			TaskIntentID: updated.TaskIntentID,
			EventType:    eventType,
			Actor:        actor,
			TraceID:      actor.TraceID,
			RequestID:    requestID,
			DiffSummary:  diffSummary,
		}); err != nil {
			return fmt.Errorf("audit schedule %s: %w", eventType, err)
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AppendAudit appends one schedule-audit row directly against the pool, for
// the callers that need an audit row without an accompanying schedule
// mutation (run_now, and the adapter_sync_failed follow-up row after a
// post-commit adapter failure) — a single insert is already atomic, so no
// transaction is needed.
func (r *ScheduleRunner) AppendAudit(ctx context.Context, row domain.ScheduleAuditRow) (string, error) {
	return NewAuditStore(r.pool).AppendSchedule(ctx, row)
}
