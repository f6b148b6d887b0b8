// Package query implements the schedule query service: read-only, cursor-
// paginated views over schedules, executions, and all three audit logs.
// No mutation, no adapter contact — every method is a straight pass-through
// to the data access layer's list operations, composed here only so
// transport handlers depend on one narrow surface instead of three stores.
package query

import (
	"context"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// scheduleReader is the slice of the schedule store the query service reads.
type scheduleReader interface {
	Get(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, filter domain.ScheduleFilter, cursor string, limit int) ([]*domain.Schedule, string, error)
}

// executionReader is the slice of the execution store the query service reads.
type executionReader interface {
	Get(ctx context.Context, id string) (*domain.Execution, error)
	List(ctx context.Context, filter domain.ExecutionFilter, cursor string, limit int) ([]*domain.Execution, string, error)
}

// taskIntentReader is the slice of the task intent store the query service reads.
type taskIntentReader interface {
	Get(ctx context.Context, id string) (*domain.TaskIntent, error)
}

// auditReader is the slice of the audit store the query service reads —
// all three logs, each cursor-paginated by (occurred_at, id) descending.
type auditReader interface {
	ListSchedule(ctx context.Context, scheduleID string, cursor string, limit int) ([]domain.ScheduleAuditRow, string, error)
	ListExecution(ctx context.Context, executionID string, cursor string, limit int) ([]domain.ExecutionAuditRow, string, error)
	ListPredicate(ctx context.Context, scheduleID string, cursor string, limit int) ([]domain.PredicateAuditRow, string, error)
}

// defaultLimit and maxLimit bound every list operation's page size,
// mirroring the 20/100 clamp the teacher applies per page.
const (
	defaultLimit = 20
	maxLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// Service is the schedule query service (C10).
type Service struct {
	schedules   scheduleReader
	executions  executionReader
	taskIntents taskIntentReader
	audits      auditReader
}

func New(schedules scheduleReader, executions executionReader, taskIntents taskIntentReader, audits auditReader) *Service {
	return &Service{schedules: schedules, executions: executions, taskIntents: taskIntents, audits: audits}
}

// GetSchedule returns one schedule by id.
func (s *Service) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	return s.schedules.Get(ctx, id)
}

// ListSchedulesResult is the page returned by ListSchedules.
type ListSchedulesResult struct {
	Schedules  []*domain.Schedule
	NextCursor string
}

// ListSchedules returns a cursor-paginated page of schedules matching
// filter, composed conjunctively.
func (s *Service) ListSchedules(ctx context.Context, filter domain.ScheduleFilter, cursor string, limit int) (ListSchedulesResult, error) {
	schedules, next, err := s.schedules.List(ctx, filter, cursor, clampLimit(limit))
	if err != nil {
		return ListSchedulesResult{}, err
	}
	return ListSchedulesResult{Schedules: schedules, NextCursor: next}, nil
}

// GetTaskIntent returns one task intent by id.
func (s *Service) GetTaskIntent(ctx context.Context, id string) (*domain.TaskIntent, error) {
	return s.taskIntents.Get(ctx, id)
}

// GetExecution returns one execution by id.
func (s *Service) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	return s.executions.Get(ctx, id)
}

// ListExecutionsResult is the page returned by ListExecutions.
type ListExecutionsResult struct {
	Executions []*domain.Execution
	NextCursor string
}

// ListExecutions returns a cursor-paginated page of executions matching
// filter, composed conjunctively. Passing a non-nil filter.ScheduleID scopes
// the page to one schedule's run history.
func (s *Service) ListExecutions(ctx context.Context, filter domain.ExecutionFilter, cursor string, limit int) (ListExecutionsResult, error) {
	executions, next, err := s.executions.List(ctx, filter, cursor, clampLimit(limit))
	if err != nil {
		return ListExecutionsResult{}, err
	}
	return ListExecutionsResult{Executions: executions, NextCursor: next}, nil
}

// ListScheduleAuditResult is the page returned by ListScheduleAudit.
type ListScheduleAuditResult struct {
	Rows       []domain.ScheduleAuditRow
	NextCursor string
}

// ListScheduleAudit returns scheduleID's schedule-audit log, newest first.
func (s *Service) ListScheduleAudit(ctx context.Context, scheduleID string, cursor string, limit int) (ListScheduleAuditResult, error) {
	rows, next, err := s.audits.ListSchedule(ctx, scheduleID, cursor, clampLimit(limit))
	if err != nil {
		return ListScheduleAuditResult{}, err
	}
	return ListScheduleAuditResult{Rows: rows, NextCursor: next}, nil
}

// ListExecutionAuditResult is the page returned by ListExecutionAudit.
type ListExecutionAuditResult struct {
	Rows       []domain.ExecutionAuditRow
	NextCursor string
}

// ListExecutionAudit returns executionID's execution-audit log, newest first.
func (s *Service) ListExecutionAudit(ctx context.Context, executionID string, cursor string, limit int) (ListExecutionAuditResult, error) {
	rows, next, err := s.audits.ListExecution(ctx, executionID, cursor, clampLimit(limit))
	if err != nil {
		return ListExecutionAuditResult{}, err
	}
	return ListExecutionAuditResult{Rows: rows, NextCursor: next}, nil
}

// ListPredicateAuditResult is the page returned by ListPredicateAudit.
type ListPredicateAuditResult struct {
	Rows       []domain.PredicateAuditRow
	NextCursor string
}

// ListPredicateAudit returns scheduleID's predicate-evaluation-audit log,
// newest first — the primary operator-visible surface for debugging why a
// conditional schedule did or didn't fire.
func (s *Service) ListPredicateAudit(ctx context.Context, scheduleID string, cursor string, limit int) (ListPredicateAuditResult, error) {
	rows, next, err := s.audits.ListPredicate(ctx, scheduleID, cursor, clampLimit(limit))
	if err != nil {
		return ListPredicateAuditResult{}, err
	}
	return ListPredicateAuditResult{Rows: rows, NextCursor: next}, nil
}
