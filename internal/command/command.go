// Package command implements the schedule command service: create, update,
// pause, resume, delete (cancel), and run_now. Each operation runs its
// database writes inside a managed transaction, commits, then performs
// timer-adapter sync as a post-commit step — adapter failures are wrapped
// and audited but never roll back the already-durable write, since the
// adapter is a projection of the schedule, not its source of truth.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cmtonkinson/brain-scheduler/internal/apierr"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/timeradapter"
	"github.com/cmtonkinson/brain-scheduler/internal/timing"
)

// scheduleReader is the slice of the schedule data access layer every
// mutating operation needs to load current state before deciding whether
// the transition is permitted.
type scheduleReader interface {
	Get(ctx context.Context, id string) (*domain.Schedule, error)
}

// scheduleRunner is the slice of the transactional write layer the command
// service drives.
type scheduleRunner interface {
	CreateWithIntent(ctx context.Context, actor domain.ActorContext, in domain.ScheduleCreateInput, nextRunAt *time.Time, requestID *string) (*domain.TaskIntent, *domain.Schedule, error)
	UpdateAndAudit(ctx context.Context, actor domain.ActorContext, scheduleID string, update domain.ScheduleUpdateInput, eventType string, requestID *string, diffSummary *string) (*domain.Schedule, error)
	AppendAudit(ctx context.Context, row domain.ScheduleAuditRow) (string, error)
}

// Service is the schedule command service.
type Service struct {
	schedules scheduleReader
	runner    scheduleRunner
	adapter   timeradapter.Port
	log       *slog.Logger
}

func New(schedules scheduleReader, runner scheduleRunner, adapter timeradapter.Port, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{schedules: schedules, runner: runner, adapter: adapter, log: log}
}

// CreateScheduleInput is the input to CreateSchedule.
type CreateScheduleInput struct {
	Schedule  domain.ScheduleCreateInput
	RequestID *string
}

// CreateSchedule persists the task intent and schedule, activates the
// schedule with its first computed next_run_at, and registers it with the
// timer adapter. A registration failure returns an AdapterSync error but the
// schedule remains active and durable — adapter reconciliation is expected
// to happen out of band.
func (s *Service) CreateSchedule(ctx context.Context, actor domain.ActorContext, in CreateScheduleInput) (*domain.Schedule, error) {
	nextRunAt, err := computeInitialNextRunAt(in.Schedule.ScheduleType, in.Schedule.Definition, in.Schedule.Timezone, time.Now().UTC())
	if err != nil {
		return nil, apierr.Map(err)
	}

	_, schedule, err := s.runner.CreateWithIntent(ctx, actor, in.Schedule, nextRunAt, in.RequestID)
	if err != nil {
		return nil, apierr.Map(err)
	}

	if err := s.syncAdapter(ctx, actor, schedule, "create", func() error {
		return s.adapter.Register(ctx, adapterPayload(schedule))
	}); err != nil {
		return schedule, err
	}
	return schedule, nil
}

// UpdateScheduleInput is the input to UpdateSchedule. Only Timezone/
// Definition are mutable — ScheduleType is fixed at creation, matching the
// ImmutableField taxonomy entry (there is simply no field to carry a
// changed schedule_type through).
type UpdateScheduleInput struct {
	Timezone   *string
	Definition *domain.ScheduleDefinition
	RequestID  *string
}

func (s *Service) UpdateSchedule(ctx context.Context, actor domain.ActorContext, scheduleID string, in UpdateScheduleInput) (*domain.Schedule, error) {
	sched, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, apierr.Map(err)
	}
	if !sched.CanMutate() {
		return nil, apierr.Map(fmt.Errorf("%w: schedule is in state %q", domain.ErrInvalidStateTransition, sched.State))
	}

	update := domain.ScheduleUpdateInput{}
	def := sched.Definition
	timezone := sched.Timezone
	if in.Timezone != nil {
		timezone = *in.Timezone
		update.Timezone = domain.Set(timezone)
	}
	if in.Definition != nil {
		def = *in.Definition
		update.Definition = domain.Set(def)
	}

	nextRunAt, err := computeInitialNextRunAt(sched.ScheduleType, def, timezone, time.Now().UTC())
	if err != nil {
		return nil, apierr.Map(err)
	}
	update.NextRunAt = domain.Set(nextRunAt)

	diff := "timezone/definition updated"
	updated, err := s.runner.UpdateAndAudit(ctx, actor, scheduleID, update, "update", in.RequestID, &diff)
	if err != nil {
		return nil, apierr.Map(err)
	}

	if err := s.syncAdapter(ctx, actor, updated, "update", func() error {
		return s.adapter.Update(ctx, adapterPayload(updated))
	}); err != nil {
		return updated, err
	}
	return updated, nil
}

// PauseSchedule suspends future callbacks for an active schedule.
func (s *Service) PauseSchedule(ctx context.Context, actor domain.ActorContext, scheduleID string, requestID *string) (*domain.Schedule, error) {
	return s.transition(ctx, actor, scheduleID, domain.StateActive, domain.StatePaused, "pause", requestID, func() error {
		return s.adapter.Pause(ctx, scheduleID)
	})
}

// ResumeSchedule reactivates a paused schedule, then re-registers its
// stored next_run_at with the adapter via Update.
func (s *Service) ResumeSchedule(ctx context.Context, actor domain.ActorContext, scheduleID string, requestID *string) (*domain.Schedule, error) {
	updated, err := s.transition(ctx, actor, scheduleID, domain.StatePaused, domain.StateActive, "resume", requestID, func() error {
		return s.adapter.Resume(ctx, scheduleID)
	})
	if err != nil {
		return updated, err
	}
	if err := s.syncAdapter(ctx, actor, updated, "resume", func() error {
		return s.adapter.Update(ctx, adapterPayload(updated))
	}); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteSchedule cancels a schedule, suppressing future callbacks. It does
// not cancel an in-flight execution — per the concurrency model, hard
// cancellation of a running invocation is not supported.
func (s *Service) DeleteSchedule(ctx context.Context, actor domain.ActorContext, scheduleID string, requestID *string) (*domain.Schedule, error) {
	sched, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, apierr.Map(err)
	}
	if !sched.CanTransitionTo(domain.StateCanceled) {
		return nil, apierr.Map(fmt.Errorf("%w: cannot cancel from state %q", domain.ErrInvalidStateTransition, sched.State))
	}

	updated, err := s.runner.UpdateAndAudit(ctx, actor, scheduleID, domain.ScheduleUpdateInput{
		State: domain.Set(domain.StateCanceled),
	}, "cancel", requestID, nil)
	if err != nil {
		return nil, apierr.Map(err)
	}

	if err := s.syncAdapter(ctx, actor, updated, "cancel", func() error {
		return s.adapter.Delete(ctx, scheduleID)
	}); err != nil {
		return updated, err
	}
	return updated, nil
}

// transition is the shared shape of pause/resume: verify the schedule is in
// fromState, move it to toState, audit under eventType, then sync the
// adapter.
func (s *Service) transition(ctx context.Context, actor domain.ActorContext, scheduleID string, fromState, toState domain.ScheduleState, eventType string, requestID *string, adapterCall func() error) (*domain.Schedule, error) {
	sched, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, apierr.Map(err)
	}
	if sched.State != fromState || !sched.CanTransitionTo(toState) {
		return nil, apierr.Map(fmt.Errorf("%w: cannot %s from state %q", domain.ErrInvalidStateTransition, eventType, sched.State))
	}

	updated, err := s.runner.UpdateAndAudit(ctx, actor, scheduleID, domain.ScheduleUpdateInput{
		State: domain.Set(toState),
	}, eventType, requestID, nil)
	if err != nil {
		return nil, apierr.Map(err)
	}

	if err := s.syncAdapter(ctx, actor, updated, eventType, adapterCall); err != nil {
		return updated, err
	}
	return updated, nil
}

// RunNowInput is the input to RunNow.
type RunNowInput struct {
	RequestedFor *time.Time
	RequestID    *string
}

// RunNow writes a run_now audit row and asks the timer adapter to trigger
// the callback immediately (or at RequestedFor, if given), admitted only
// from active/paused — canceled/archived schedules refuse run_now rather
// than silently accepting it.
func (s *Service) RunNow(ctx context.Context, actor domain.ActorContext, scheduleID string, in RunNowInput) (traceID string, err error) {
	sched, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return "", apierr.Map(err)
	}
	if !sched.CanRunNow() {
		return "", apierr.Map(fmt.Errorf("%w: run_now refused from state %q", domain.ErrInvalidStateTransition, sched.State))
	}

	traceID = uuid.NewString()
	scheduledFor := time.Now().UTC()
	if in.RequestedFor != nil {
		scheduledFor = in.RequestedFor.UTC()
	}

	if _, err := s.runner.AppendAudit(ctx, domain.ScheduleAuditRow{
		ScheduleID:   sched.ID,
		TaskIntentID: sched.TaskIntentID,
		EventType:    "run_now",
		Actor:        actor,
		TraceID:      traceID,
		RequestID:    in.RequestID,
	}); err != nil {
		return "", apierr.Map(fmt.Errorf("audit run_now: %w", err))
	}

	if err := s.syncAdapter(ctx, actor, sched, "run_now", func() error {
		return s.adapter.TriggerCallback(ctx, sched.ID, scheduledFor, traceID, timeradapter.TriggerRunNow)
	}); err != nil {
		return traceID, err
	}
	return traceID, nil
}

// syncAdapter runs fn, and on failure records an adapter_sync_failed audit
// row and returns an AdapterSync error — the caller's already-committed
// write is never undone for this.
func (s *Service) syncAdapter(ctx context.Context, actor domain.ActorContext, sched *domain.Schedule, event string, fn func() error) error {
	if err := fn(); err != nil {
		code := "unknown"
		var adapterErr *timeradapter.AdapterError
		if errors.As(err, &adapterErr) {
			code = adapterErr.Code
		}
		reason := fmt.Sprintf("adapter_sync_failed:%s:%s", event, code)

		if _, auditErr := s.runner.AppendAudit(ctx, domain.ScheduleAuditRow{
			ScheduleID:   sched.ID,
			TaskIntentID: sched.TaskIntentID,
			EventType:    event,
			Actor:        actor,
			TraceID:      actor.TraceID,
			Reason:       &reason,
		}); auditErr != nil {
			s.log.ErrorContext(ctx, "failed to audit adapter sync failure", "schedule_id", sched.ID, "event", event, "error", auditErr)
		}
		return apierr.NewAdapterSync(reason, err)
	}
	return nil
}

// computeInitialNextRunAt resolves the first (or, on update, the next)
// next_run_at for a schedule, per its type: one_time fires at run_at
// verbatim, interval/calendar_rule compute the first occurrence strictly
// after now, and conditional schedules evaluate immediately upon
// activation.
func computeInitialNextRunAt(scheduleType domain.ScheduleType, def domain.ScheduleDefinition, timezone string, now time.Time) (*time.Time, error) {
	switch scheduleType {
	case domain.ScheduleOneTime:
		return def.RunAt, nil
	case domain.ScheduleInterval:
		next := timing.NextInterval(def.IntervalCount, def.IntervalUnit, def.AnchorAt, now, now)
		return &next, nil
	case domain.ScheduleCalendarRule:
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			loc = time.UTC
		}
		next, err := timing.NextCalendar(def.RRule, def.CalendarAnchorAt, now, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return &next, nil
	case domain.ScheduleConditional:
		return &now, nil
	default:
		return nil, fmt.Errorf("%w: unknown schedule_type %q", domain.ErrValidation, scheduleType)
	}
}

// adapterPayload builds the language-neutral timer-adapter record for
// sched, flattening ScheduleDefinition down to the type-specific fields the
// adapter actually needs.
func adapterPayload(sched *domain.Schedule) timeradapter.Payload {
	return timeradapter.Payload{
		ScheduleID:   sched.ID,
		ScheduleType: string(sched.ScheduleType),
		Timezone:     sched.Timezone,
		Definition:   definitionToMap(sched.ScheduleType, sched.Definition),
		NextRunAt:    sched.NextRunAt,
	}
}

func definitionToMap(t domain.ScheduleType, d domain.ScheduleDefinition) map[string]any {
	m := map[string]any{}
	switch t {
	case domain.ScheduleOneTime:
		m["run_at"] = d.RunAt
	case domain.ScheduleInterval:
		m["interval_count"] = d.IntervalCount
		m["interval_unit"] = string(d.IntervalUnit)
		m["anchor_at"] = d.AnchorAt
	case domain.ScheduleCalendarRule:
		m["rrule"] = d.RRule
		m["calendar_anchor_at"] = d.CalendarAnchorAt
	case domain.ScheduleConditional:
		m["predicate_subject"] = d.PredicateSubject
		m["predicate_operator"] = string(d.PredicateOperator)
		m["predicate_value"] = d.PredicateValue
		m["evaluation_interval_count"] = d.EvaluationIntervalCount
		m["evaluation_interval_unit"] = string(d.EvaluationIntervalUnit)
	}
	return m
}
