package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// ScheduleStore is the schedule slice of the data access layer.
type ScheduleStore struct {
	q Querier
}

func NewScheduleStore(q Querier) *ScheduleStore { return &ScheduleStore{q: q} }

func (s *ScheduleStore) Create(ctx context.Context, actor domain.ActorContext, taskIntentID string, in domain.ScheduleCreateInput) (*domain.Schedule, error) {
	if err := validateMutationActor(actor, false); err != nil {
		return nil, err
	}
	if in.Timezone == "" {
		return nil, fmt.Errorf("%w: timezone is required", domain.ErrValidation)
	}
	if err := validateDefinition(in.ScheduleType, in.Definition); err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO schedules (
			id, task_intent_id, schedule_type, state, timezone,
			run_at, interval_count, interval_unit, anchor_at,
			rrule, calendar_anchor_at,
			predicate_subject, predicate_operator, predicate_value,
			evaluation_interval_count, evaluation_interval_unit,
			failure_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,0, now(), now())
		RETURNING id, task_intent_id, schedule_type, state, timezone,
		          run_at, interval_count, interval_unit, anchor_at,
		          rrule, calendar_anchor_at,
		          predicate_subject, predicate_operator, predicate_value,
		          evaluation_interval_count, evaluation_interval_unit,
		          next_run_at, last_run_at, last_run_status, failure_count,
		          last_execution_id, last_evaluated_at, last_evaluation_status,
		          last_evaluation_error_code, created_at, updated_at`

	d := in.Definition
	row := s.q.QueryRow(ctx, q, uuid.NewString(), taskIntentID, in.ScheduleType, domain.StateDraft, in.Timezone,
		normalizeUTCPtr(d.RunAt), nilIfZero(d.IntervalCount), nilIfEmptyUnit(d.IntervalUnit), normalizeUTCPtr(d.AnchorAt),
		nilIfEmptyString(d.RRule), normalizeUTCPtr(d.CalendarAnchorAt),
		nilIfEmptyString(d.PredicateSubject), nilIfEmptyOperator(d.PredicateOperator), d.PredicateValue,
		nilIfZero(d.EvaluationIntervalCount), nilIfEmptyEvalUnit(d.EvaluationIntervalUnit),
	)
	return scanSchedule(row)
}

func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	const q = `
		SELECT id, task_intent_id, schedule_type, state, timezone,
		       run_at, interval_count, interval_unit, anchor_at,
		       rrule, calendar_anchor_at,
		       predicate_subject, predicate_operator, predicate_value,
		       evaluation_interval_count, evaluation_interval_unit,
		       next_run_at, last_run_at, last_run_status, failure_count,
		       last_execution_id, last_evaluated_at, last_evaluation_status,
		       last_evaluation_error_code, created_at, updated_at
		FROM schedules WHERE id = $1`
	return scanSchedule(s.q.QueryRow(ctx, q, id))
}

// Update applies only the Opt-set fields of in, matching the
// UNSET-sentinel contract. Returns the updated row.
func (s *ScheduleStore) Update(ctx context.Context, actor domain.ActorContext, id string, in domain.ScheduleUpdateInput) (*domain.Schedule, error) {
	if err := validateMutationActor(actor, true); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if in.Timezone.IsSet() {
		add("timezone", in.Timezone.Value)
	}
	if in.Definition.IsSet() {
		d := in.Definition.Value
		add("run_at", normalizeUTCPtr(d.RunAt))
		add("interval_count", nilIfZero(d.IntervalCount))
		add("interval_unit", nilIfEmptyUnit(d.IntervalUnit))
		add("anchor_at", normalizeUTCPtr(d.AnchorAt))
		add("rrule", nilIfEmptyString(d.RRule))
		add("calendar_anchor_at", normalizeUTCPtr(d.CalendarAnchorAt))
		add("predicate_subject", nilIfEmptyString(d.PredicateSubject))
		add("predicate_operator", nilIfEmptyOperator(d.PredicateOperator))
		add("predicate_value", d.PredicateValue)
		add("evaluation_interval_count", nilIfZero(d.EvaluationIntervalCount))
		add("evaluation_interval_unit", nilIfEmptyEvalUnit(d.EvaluationIntervalUnit))
	}
	if in.State.IsSet() {
		add("state", in.State.Value)
	}
	if in.NextRunAt.IsSet() {
		add("next_run_at", normalizeUTCPtr(in.NextRunAt.Value))
	}
	if in.LastRunAt.IsSet() {
		add("last_run_at", normalizeUTCPtr(in.LastRunAt.Value))
	}
	if in.LastRunStatus.IsSet() {
		add("last_run_status", in.LastRunStatus.Value)
	}
	if in.FailureCount.IsSet() {
		add("failure_count", in.FailureCount.Value)
	}
	if in.LastExecutionID.IsSet() {
		add("last_execution_id", in.LastExecutionID.Value)
	}
	if in.LastEvaluatedAt.IsSet() {
		add("last_evaluated_at", normalizeUTCPtr(in.LastEvaluatedAt.Value))
	}
	if in.LastEvaluationStatus.IsSet() {
		add("last_evaluation_status", in.LastEvaluationStatus.Value)
	}
	if in.LastEvaluationErrorCode.IsSet() {
		add("last_evaluation_error_code", in.LastEvaluationErrorCode.Value)
	}

	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, id)
	q := fmt.Sprintf(`
		UPDATE schedules SET %s WHERE id = $%d
		RETURNING id, task_intent_id, schedule_type, state, timezone,
		          run_at, interval_count, interval_unit, anchor_at,
		          rrule, calendar_anchor_at,
		          predicate_subject, predicate_operator, predicate_value,
		          evaluation_interval_count, evaluation_interval_unit,
		          next_run_at, last_run_at, last_run_status, failure_count,
		          last_execution_id, last_evaluated_at, last_evaluation_status,
		          last_evaluation_error_code, created_at, updated_at`,
		strings.Join(sets, ", "), len(args))

	return scanSchedule(s.q.QueryRow(ctx, q, args...))
}

// List returns schedules matching filter, newest-created first,
// cursor-paginated by (created_at, id) descending.
func (s *ScheduleStore) List(ctx context.Context, filter domain.ScheduleFilter, cursor string, limit int) ([]*domain.Schedule, string, error) {
	if limit <= 0 {
		limit = 50
	}
	var where []string
	var args []any
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.State != nil {
		add("state = $%d", *filter.State)
	}
	if filter.ScheduleType != nil {
		add("schedule_type = $%d", *filter.ScheduleType)
	}
	if filter.CreatorActorType != nil {
		add("task_intent_id IN (SELECT id FROM task_intents WHERE creator_actor_type = $%d)", *filter.CreatorActorType)
	}
	if filter.CreatedAfter != nil {
		add("created_at > $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}
	if cursor != "" {
		ts, id, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		args = append(args, ts, id)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	q := `
		SELECT id, task_intent_id, schedule_type, state, timezone,
		       run_at, interval_count, interval_unit, anchor_at,
		       rrule, calendar_anchor_at,
		       predicate_subject, predicate_operator, predicate_value,
		       evaluation_interval_count, evaluation_interval_unit,
		       next_run_at, last_run_at, last_run_status, failure_count,
		       last_execution_id, last_evaluated_at, last_evaluation_status,
		       last_evaluation_error_code, created_at, updated_at
		FROM schedules`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit+1)

	rows, err := s.q.Query(ctx, q, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, sch)
	}

	var next string
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

func validateDefinition(t domain.ScheduleType, d domain.ScheduleDefinition) error {
	switch t {
	case domain.ScheduleOneTime:
		if d.RunAt == nil {
			return fmt.Errorf("%w: one_time schedules require run_at", domain.ErrValidation)
		}
	case domain.ScheduleInterval:
		if d.IntervalCount <= 0 || d.IntervalUnit == "" {
			return fmt.Errorf("%w: interval schedules require interval_count and interval_unit", domain.ErrValidation)
		}
	case domain.ScheduleCalendarRule:
		if d.RRule == "" {
			return fmt.Errorf("%w: calendar_rule schedules require rrule", domain.ErrValidation)
		}
	case domain.ScheduleConditional:
		if d.PredicateSubject == "" || d.PredicateOperator == "" || d.EvaluationIntervalCount <= 0 || d.EvaluationIntervalUnit == "" {
			return fmt.Errorf("%w: conditional schedules require predicate_subject, predicate_operator, and an evaluation interval", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown schedule_type %q", domain.ErrValidation, t)
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sch domain.Schedule
	var d domain.ScheduleDefinition
	var intervalUnit, evalUnit, predicateOperator *string

	err := row.Scan(
		&sch.ID, &sch.TaskIntentID, &sch.ScheduleType, &sch.State, &sch.Timezone,
		&d.RunAt, &d.IntervalCount, &intervalUnit, &d.AnchorAt,
		&d.RRule, &d.CalendarAnchorAt,
		&d.PredicateSubject, &predicateOperator, &d.PredicateValue,
		&d.EvaluationIntervalCount, &evalUnit,
		&sch.NextRunAt, &sch.LastRunAt, &sch.LastRunStatus, &sch.FailureCount,
		&sch.LastExecutionID, &sch.LastEvaluatedAt, &sch.LastEvaluationStatus,
		&sch.LastEvaluationErrorCode, &sch.CreatedAt, &sch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if intervalUnit != nil {
		d.IntervalUnit = domain.IntervalUnit(*intervalUnit)
	}
	if evalUnit != nil {
		d.EvaluationIntervalUnit = domain.EvalIntervalUnit(*evalUnit)
	}
	if predicateOperator != nil {
		d.PredicateOperator = domain.PredicateOperator(*predicateOperator)
	}
	sch.Definition = d
	return &sch, nil
}

func nilIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nilIfEmptyString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfEmptyUnit(u domain.IntervalUnit) any {
	if u == "" {
		return nil
	}
	return string(u)
}

func nilIfEmptyEvalUnit(u domain.EvalIntervalUnit) any {
	if u == "" {
		return nil
	}
	return string(u)
}

func nilIfEmptyOperator(o domain.PredicateOperator) any {
	if o == "" {
		return nil
	}
	return string(o)
}
