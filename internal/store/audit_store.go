package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// AuditStore provides append(kind, row) / find_by_request_id(kind, request_id),
// cursor-paginated reads, append-only — no row is ever mutated or deleted.
type AuditStore struct {
	pool Querier
}

// NewAuditStore wraps a pool or transaction. Pass a pgx.Tx when the append
// must be atomic with an enclosing mutation.
func NewAuditStore(q Querier) *AuditStore {
	return &AuditStore{pool: q}
}

// AppendSchedule appends a schedule-audit row. If a row with the same
// (schedule_id, event_type, request_id) already exists and request_id is
// non-empty, this is a no-op returning the prior row's id.
func (s *AuditStore) AppendSchedule(ctx context.Context, row domain.ScheduleAuditRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO schedule_audit_log (
			id, schedule_id, task_intent_id, event_type, actor_type, actor_id,
			channel, trace_id, request_id, reason, diff_summary, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (schedule_id, event_type, request_id) WHERE request_id IS NOT NULL
		DO NOTHING
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, q,
		row.ID, row.ScheduleID, row.TaskIntentID, row.EventType,
		row.Actor.ActorType, row.Actor.ActorID, row.Actor.Channel,
		row.TraceID, row.RequestID, row.Reason, row.DiffSummary, row.OccurredAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.findPriorID(ctx, "schedule_audit_log", "schedule_id", row.ScheduleID, row.EventType, row.RequestID)
		}
		return "", fmt.Errorf("append schedule audit: %w", err)
	}
	return id, nil
}

// AppendExecution appends an execution-audit row — one per status change,
// carrying the full execution snapshot.
func (s *AuditStore) AppendExecution(ctx context.Context, row domain.ExecutionAuditRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO execution_audit_log (
			id, execution_id, event_type, actor_type, actor_id, channel,
			trace_id, request_id, status, attempt_count, retry_count,
			failure_count, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (execution_id, event_type, request_id) WHERE request_id IS NOT NULL
		DO NOTHING
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, q,
		row.ID, row.ExecutionID, row.EventType, row.Actor.ActorType, row.Actor.ActorID,
		row.Actor.Channel, row.Actor.TraceID, row.RequestID, row.Snapshot.Status,
		row.Snapshot.AttemptCount, row.Snapshot.RetryCount, row.Snapshot.FailureCount,
		row.OccurredAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.findPriorID(ctx, "execution_audit_log", "execution_id", row.ExecutionID, row.EventType, row.RequestID)
		}
		return "", fmt.Errorf("append execution audit: %w", err)
	}
	return id, nil
}

// AppendPredicate appends a predicate-evaluation-audit row. evaluation_id
// is globally unique, so this dedupes on evaluation_id alone rather than
// the (entity_id, event_type, request_id) triple the other two logs use.
func (s *AuditStore) AppendPredicate(ctx context.Context, row domain.PredicateAuditRow) (string, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO predicate_evaluation_audit_log (
			id, evaluation_id, schedule_id, execution_id, task_intent_id,
			predicate_subject, predicate_operator, predicate_value,
			evaluation_time, evaluated_at, status, result_code, observed_value,
			authorization_decision, authorization_reason_code,
			authorization_reason_message, authorization_policy_name,
			authorization_policy_version, provider_name, provider_attempt,
			correlation_id, trace_id, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (evaluation_id) DO NOTHING
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, q,
		row.ID, row.EvaluationID, row.ScheduleID, row.ExecutionID, row.TaskIntentID,
		row.PredicateSubject, row.PredicateOperator, row.PredicateValue,
		row.EvaluationTime, row.EvaluatedAt, row.Status, row.ResultCode, row.ObservedValue,
		row.AuthorizationDecision, row.AuthorizationReasonCode, row.AuthorizationReasonMessage,
		row.AuthorizationPolicyName, row.AuthorizationPolicyVersion, row.ProviderName,
		row.ProviderAttempt, row.CorrelationID, row.TraceID, row.OccurredAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var priorID string
			selErr := s.pool.QueryRow(ctx,
				`SELECT id FROM predicate_evaluation_audit_log WHERE evaluation_id = $1`, row.EvaluationID,
			).Scan(&priorID)
			if selErr != nil {
				return "", fmt.Errorf("lookup prior predicate audit row: %w", selErr)
			}
			return priorID, nil
		}
		return "", fmt.Errorf("append predicate audit: %w", err)
	}
	return id, nil
}

func (s *AuditStore) findPriorID(ctx context.Context, table, entityCol, entityID, eventType string, requestID *string) (string, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 AND event_type = $2 AND request_id = $3`, table, entityCol)
	var id string
	if err := s.pool.QueryRow(ctx, q, entityID, eventType, requestID).Scan(&id); err != nil {
		return "", fmt.Errorf("lookup prior %s row: %w", table, err)
	}
	return id, nil
}

// FindScheduleByRequestID looks up a schedule-audit row by its idempotency
// triple.
func (s *AuditStore) FindScheduleByRequestID(ctx context.Context, scheduleID, eventType, requestID string) (*domain.ScheduleAuditRow, error) {
	const q = `
		SELECT id, schedule_id, task_intent_id, event_type, actor_type, actor_id,
		       channel, trace_id, request_id, reason, diff_summary, occurred_at
		FROM schedule_audit_log
		WHERE schedule_id = $1 AND event_type = $2 AND request_id = $3`
	row := s.pool.QueryRow(ctx, q, scheduleID, eventType, requestID)
	var r domain.ScheduleAuditRow
	err := row.Scan(&r.ID, &r.ScheduleID, &r.TaskIntentID, &r.EventType, &r.Actor.ActorType,
		&r.Actor.ActorID, &r.Actor.Channel, &r.TraceID, &r.RequestID, &r.Reason, &r.DiffSummary, &r.OccurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find schedule audit by request id: %w", err)
	}
	return &r, nil
}

// ListSchedule returns schedule-audit rows for scheduleID, newest first,
// cursor-paginated by (occurred_at, id) descending.
func (s *AuditStore) ListSchedule(ctx context.Context, scheduleID string, cursor string, limit int) ([]domain.ScheduleAuditRow, string, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{scheduleID}
	q := `
		SELECT id, schedule_id, task_intent_id, event_type, actor_type, actor_id,
		       channel, trace_id, request_id, reason, diff_summary, occurred_at
		FROM schedule_audit_log
		WHERE schedule_id = $1`
	if cursor != "" {
		ts, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		q += ` AND (occurred_at, id) < ($2, $3)`
		args = append(args, ts, id)
	}
	q += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list schedule audit: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduleAuditRow
	for rows.Next() {
		var r domain.ScheduleAuditRow
		if err := rows.Scan(&r.ID, &r.ScheduleID, &r.TaskIntentID, &r.EventType, &r.Actor.ActorType,
			&r.Actor.ActorID, &r.Actor.Channel, &r.TraceID, &r.RequestID, &r.Reason, &r.DiffSummary, &r.OccurredAt); err != nil {
			return nil, "", fmt.Errorf("scan schedule audit: %w", err)
		}
		out = append(out, r)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = EncodeCursor(last.OccurredAt, last.ID)
	}
	return out, next, nil
}

// ListExecution returns execution-audit rows for executionID, newest first,
// cursor-paginated by (occurred_at, id) descending.
func (s *AuditStore) ListExecution(ctx context.Context, executionID string, cursor string, limit int) ([]domain.ExecutionAuditRow, string, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{executionID}
	q := `
		SELECT id, execution_id, event_type, actor_type, actor_id, channel,
		       trace_id, request_id, status, attempt_count, retry_count,
		       failure_count, occurred_at
		FROM execution_audit_log
		WHERE execution_id = $1`
	if cursor != "" {
		ts, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		q += ` AND (occurred_at, id) < ($2, $3)`
		args = append(args, ts, id)
	}
	q += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list execution audit: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionAuditRow
	for rows.Next() {
		var r domain.ExecutionAuditRow
		if err := rows.Scan(&r.ID, &r.ExecutionID, &r.EventType, &r.Actor.ActorType, &r.Actor.ActorID,
			&r.Actor.Channel, &r.Actor.TraceID, &r.RequestID, &r.Snapshot.Status, &r.Snapshot.AttemptCount,
			&r.Snapshot.RetryCount, &r.Snapshot.FailureCount, &r.OccurredAt); err != nil {
			return nil, "", fmt.Errorf("scan execution audit: %w", err)
		}
		out = append(out, r)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = EncodeCursor(last.OccurredAt, last.ID)
	}
	return out, next, nil
}

// ListPredicate returns predicate-evaluation-audit rows for scheduleID,
// newest first, cursor-paginated by (occurred_at, id) descending.
func (s *AuditStore) ListPredicate(ctx context.Context, scheduleID string, cursor string, limit int) ([]domain.PredicateAuditRow, string, error) {
	if limit <= 0 {
		limit = 50
	}
	args := []any{scheduleID}
	q := `
		SELECT id, evaluation_id, schedule_id, execution_id, task_intent_id,
		       predicate_subject, predicate_operator, predicate_value,
		       evaluation_time, evaluated_at, status, result_code, observed_value,
		       authorization_decision, authorization_reason_code,
		       authorization_reason_message, authorization_policy_name,
		       authorization_policy_version, provider_name, provider_attempt,
		       correlation_id, trace_id, occurred_at
		FROM predicate_evaluation_audit_log
		WHERE schedule_id = $1`
	if cursor != "" {
		ts, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		q += ` AND (occurred_at, id) < ($2, $3)`
		args = append(args, ts, id)
	}
	q += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT %d`, limit+1)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list predicate audit: %w", err)
	}
	defer rows.Close()

	var out []domain.PredicateAuditRow
	for rows.Next() {
		var r domain.PredicateAuditRow
		if err := rows.Scan(&r.ID, &r.EvaluationID, &r.ScheduleID, &r.ExecutionID, &r.TaskIntentID,
			&r.PredicateSubject, &r.PredicateOperator, &r.PredicateValue,
			&r.EvaluationTime, &r.EvaluatedAt, &r.Status, &r.ResultCode, &r.ObservedValue,
			&r.AuthorizationDecision, &r.AuthorizationReasonCode, &r.AuthorizationReasonMessage,
			&r.AuthorizationPolicyName, &r.AuthorizationPolicyVersion, &r.ProviderName, &r.ProviderAttempt,
			&r.CorrelationID, &r.TraceID, &r.OccurredAt); err != nil {
			return nil, "", fmt.Errorf("scan predicate audit: %w", err)
		}
		out = append(out, r)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = EncodeCursor(last.OccurredAt, last.ID)
	}
	return out, next, nil
}
