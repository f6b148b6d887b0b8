package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// ExecutionRunner owns the two multi-statement execution transitions the
// dispatcher drives: standing an execution up (create, then running) and
// settling it (final state, audit, parent schedule update). Both run as one
// committed transaction each, mirroring the atomic-claim shape a repository
// applies around its own multi-step writes rather than leaving transaction
// boundaries to the caller.
type ExecutionRunner struct {
	pool *pgxpool.Pool
}

func NewExecutionRunner(pool *pgxpool.Pool) *ExecutionRunner { return &ExecutionRunner{pool: pool} }

// CreateAndStart inserts a queued execution row, audits it, transitions it
// to running, and audits that too — all inside one transaction committed
// before the caller invokes the agent runtime.
func (r *ExecutionRunner) CreateAndStart(ctx context.Context, actor domain.ActorContext, in domain.ExecutionCreateInput) (*domain.Execution, error) {
	var result *domain.Execution
	err := WithTx(ctx, r.pool, func(q Querier) error {
		execStore := NewExecutionStore(q)
		auditStore := NewAuditStore(q)

		execution, err := execStore.Create(ctx, in)
		if err != nil {
			return err
		}
		if _, err := auditStore.AppendExecution(ctx, domain.ExecutionAuditRow{
			ExecutionID: execution.ID,
			EventType:   "created",
			Actor:       actor,
			Snapshot:    *execution,
		}); err != nil {
			return fmt.Errorf("audit execution created: %w", err)
		}

		now := time.Now().UTC()
		updated, err := execStore.Update(ctx, execution.ID, domain.ExecutionUpdateInput{
			Status:    domain.Set(domain.ExecRunning),
			StartedAt: domain.Set(&now),
		})
		if err != nil {
			return err
		}
		if _, err := auditStore.AppendExecution(ctx, domain.ExecutionAuditRow{
			ExecutionID: updated.ID,
			EventType:   "started",
			Actor:       actor,
			Snapshot:    *updated,
		}); err != nil {
			return fmt.Errorf("audit execution started: %w", err)
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Settle applies execUpdate to execution, audits it under eventType, and
// applies scheduleUpdate to the parent schedule — one committed transaction.
func (r *ExecutionRunner) Settle(ctx context.Context, actor domain.ActorContext, executionID string, execUpdate domain.ExecutionUpdateInput, eventType string, scheduleID string, scheduleUpdate domain.ScheduleUpdateInput) (*domain.Execution, error) {
	var result *domain.Execution
	err := WithTx(ctx, r.pool, func(q Querier) error {
		execStore := NewExecutionStore(q)
		scheduleStore := NewScheduleStore(q)
		auditStore := NewAuditStore(q)

		exec, err := execStore.Update(ctx, executionID, execUpdate)
		if err != nil {
			return fmt.Errorf("update execution: %w", err)
		}
		if _, err := auditStore.AppendExecution(ctx, domain.ExecutionAuditRow{
			ExecutionID: exec.ID,
			EventType:   eventType,
			Actor:       actor,
			Snapshot:    *exec,
		}); err != nil {
			return fmt.Errorf("audit execution result: %w", err)
		}
		if _, err := scheduleStore.Update(ctx, actor, scheduleID, scheduleUpdate); err != nil {
			return fmt.Errorf("update parent schedule: %w", err)
		}

		result = exec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
