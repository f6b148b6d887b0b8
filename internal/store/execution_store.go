package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// ExecutionStore is the execution slice of the data access layer.
type ExecutionStore struct {
	q Querier
}

func NewExecutionStore(q Querier) *ExecutionStore { return &ExecutionStore{q: q} }

func (s *ExecutionStore) Create(ctx context.Context, in domain.ExecutionCreateInput) (*domain.Execution, error) {
	if in.TraceID == "" {
		return nil, fmt.Errorf("%w: trace_id is required", domain.ErrMissingActorContext)
	}

	const q = `
		INSERT INTO executions (
			id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
			attempt_count, retry_count, max_attempts, failure_count,
			retry_backoff_strategy, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,0,$9, now(), now())
		RETURNING id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		          attempt_count, retry_count, max_attempts, started_at, finished_at,
		          failure_count, retry_backoff_strategy, next_retry_at,
		          last_error_code, last_error_message, created_at, updated_at`

	row := s.q.QueryRow(ctx, q, uuid.NewString(), in.TaskIntentID, in.ScheduleID,
		normalizeUTC(in.ScheduledFor), in.TraceID, in.Status, in.AttemptCount, in.MaxAttempts,
		backoffPtrToString(in.RetryBackoffStrategy))

	exec, err := scanExecution(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateExecution
		}
		return nil, err
	}
	return exec, nil
}

func (s *ExecutionStore) Get(ctx context.Context, id string) (*domain.Execution, error) {
	const q = `
		SELECT id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		       attempt_count, retry_count, max_attempts, started_at, finished_at,
		       failure_count, retry_backoff_strategy, next_retry_at,
		       last_error_code, last_error_message, created_at, updated_at
		FROM executions WHERE id = $1`
	return scanExecution(s.q.QueryRow(ctx, q, id))
}

// FindByScheduleAndTrace is the idempotency lookup the dispatcher performs before
// creating a new execution: one execution per (schedule_id, trace_id).
func (s *ExecutionStore) FindByScheduleAndTrace(ctx context.Context, scheduleID, traceID string) (*domain.Execution, error) {
	const q = `
		SELECT id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		       attempt_count, retry_count, max_attempts, started_at, finished_at,
		       failure_count, retry_backoff_strategy, next_retry_at,
		       last_error_code, last_error_message, created_at, updated_at
		FROM executions WHERE schedule_id = $1 AND trace_id = $2`
	return scanExecution(s.q.QueryRow(ctx, q, scheduleID, traceID))
}

func (s *ExecutionStore) Update(ctx context.Context, id string, in domain.ExecutionUpdateInput) (*domain.Execution, error) {
	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if in.Status.IsSet() {
		add("status", in.Status.Value)
	}
	if in.StartedAt.IsSet() {
		add("started_at", normalizeUTCPtr(in.StartedAt.Value))
	}
	if in.FinishedAt.IsSet() {
		add("finished_at", normalizeUTCPtr(in.FinishedAt.Value))
	}
	if in.AttemptCount.IsSet() {
		add("attempt_count", in.AttemptCount.Value)
	}
	if in.RetryCount.IsSet() {
		add("retry_count", in.RetryCount.Value)
	}
	if in.FailureCount.IsSet() {
		add("failure_count", in.FailureCount.Value)
	}
	if in.RetryBackoffStrategy.IsSet() {
		add("retry_backoff_strategy", backoffPtrToString(in.RetryBackoffStrategy.Value))
	}
	if in.NextRetryAt.IsSet() {
		add("next_retry_at", normalizeUTCPtr(in.NextRetryAt.Value))
	}
	if in.LastErrorCode.IsSet() {
		add("last_error_code", in.LastErrorCode.Value)
	}
	if in.LastErrorMessage.IsSet() {
		add("last_error_message", in.LastErrorMessage.Value)
	}

	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	q := fmt.Sprintf(`
		UPDATE executions SET %s WHERE id = $%d
		RETURNING id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		          attempt_count, retry_count, max_attempts, started_at, finished_at,
		          failure_count, retry_backoff_strategy, next_retry_at,
		          last_error_code, last_error_message, created_at, updated_at`,
		strings.Join(sets, ", "), len(args))

	return scanExecution(s.q.QueryRow(ctx, q, args...))
}

// List returns executions matching filter, newest-scheduled first,
// cursor-paginated by (scheduled_for, id) descending.
func (s *ExecutionStore) List(ctx context.Context, filter domain.ExecutionFilter, cursor string, limit int) ([]*domain.Execution, string, error) {
	if limit <= 0 {
		limit = 50
	}
	var where []string
	var args []any
	if filter.ScheduleID != nil {
		args = append(args, *filter.ScheduleID)
		where = append(where, fmt.Sprintf("schedule_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if cursor != "" {
		ts, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		args = append(args, ts, id)
		where = append(where, fmt.Sprintf("(scheduled_for, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	q := `
		SELECT id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		       attempt_count, retry_count, max_attempts, started_at, finished_at,
		       failure_count, retry_backoff_strategy, next_retry_at,
		       last_error_code, last_error_message, created_at, updated_at
		FROM executions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY scheduled_for DESC, id DESC LIMIT %d", limit+1)

	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, e)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = EncodeCursor(last.ScheduledFor, last.ID)
	}
	return out, next, nil
}

// ListStaleRunning returns executions stuck in running with started_at
// older than cutoff — candidates for the reaper to reschedule or fail.
func (s *ExecutionStore) ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT id, task_intent_id, schedule_id, scheduled_for, trace_id, status,
		       attempt_count, retry_count, max_attempts, started_at, finished_at,
		       failure_count, retry_backoff_strategy, next_retry_at,
		       last_error_code, last_error_message, created_at, updated_at
		FROM executions
		WHERE status = $1 AND started_at IS NOT NULL AND started_at < $2
		ORDER BY started_at ASC
		LIMIT $3`

	rows, err := s.q.Query(ctx, q, domain.ExecRunning, normalizeUTC(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale running executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	var backoff *string
	err := row.Scan(&e.ID, &e.TaskIntentID, &e.ScheduleID, &e.ScheduledFor, &e.TraceID, &e.Status,
		&e.AttemptCount, &e.RetryCount, &e.MaxAttempts, &e.StartedAt, &e.FinishedAt,
		&e.FailureCount, &backoff, &e.NextRetryAt, &e.LastErrorCode, &e.LastErrorMessage,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if backoff != nil {
		b := domain.BackoffStrategy(*backoff)
		e.RetryBackoffStrategy = &b
	}
	return &e, nil
}

func backoffPtrToString(b *domain.BackoffStrategy) any {
	if b == nil {
		return nil
	}
	return string(*b)
}
