package command

import (
	"context"
	"testing"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/apierr"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/timeradapter"
)

// ---- fakes ----

type fakeScheduleReader struct {
	schedule *domain.Schedule
	err      error
}

func (f *fakeScheduleReader) Get(ctx context.Context, id string) (*domain.Schedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.schedule, nil
}

type fakeScheduleRunner struct {
	createdIntent   *domain.TaskIntent
	createdSchedule *domain.Schedule
	createErr       error
	capturedNextRun *time.Time

	updated       *domain.Schedule
	updateErr     error
	capturedEvent string
	capturedState domain.ScheduleState

	auditRows []domain.ScheduleAuditRow
	auditErr  error
}

func (f *fakeScheduleRunner) CreateWithIntent(ctx context.Context, actor domain.ActorContext, in domain.ScheduleCreateInput, nextRunAt *time.Time, requestID *string) (*domain.TaskIntent, *domain.Schedule, error) {
	f.capturedNextRun = nextRunAt
	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	return f.createdIntent, f.createdSchedule, nil
}

func (f *fakeScheduleRunner) UpdateAndAudit(ctx context.Context, actor domain.ActorContext, scheduleID string, update domain.ScheduleUpdateInput, eventType string, requestID *string, diffSummary *string) (*domain.Schedule, error) {
	f.capturedEvent = eventType
	if update.State.IsSet() {
		f.capturedState = update.State.Value
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.updated, nil
}

func (f *fakeScheduleRunner) AppendAudit(ctx context.Context, row domain.ScheduleAuditRow) (string, error) {
	f.auditRows = append(f.auditRows, row)
	if f.auditErr != nil {
		return "", f.auditErr
	}
	return "audit-1", nil
}

type fakePort struct {
	registerErr        error
	updateErr          error
	pauseErr           error
	resumeErr          error
	deleteErr          error
	triggerCallbackErr error
	updateCalled       bool
}

func (p *fakePort) Register(ctx context.Context, payload timeradapter.Payload) error { return p.registerErr }
func (p *fakePort) Update(ctx context.Context, payload timeradapter.Payload) error {
	p.updateCalled = true
	return p.updateErr
}
func (p *fakePort) Pause(ctx context.Context, scheduleID string) error                { return p.pauseErr }
func (p *fakePort) Resume(ctx context.Context, scheduleID string) error               { return p.resumeErr }
func (p *fakePort) Delete(ctx context.Context, scheduleID string) error               { return p.deleteErr }
func (p *fakePort) TriggerCallback(ctx context.Context, scheduleID string, scheduledFor time.Time, traceID string, source timeradapter.TriggerSource) error {
	return p.triggerCallbackErr
}
func (p *fakePort) HealthCheck(ctx context.Context) (timeradapter.Health, error) {
	return timeradapter.Health{OK: true}, nil
}

var _ timeradapter.Port = (*fakePort)(nil)

// ---- helpers ----

func testActor() domain.ActorContext {
	return domain.ActorContext{ActorType: domain.ActorHuman, Channel: "cli", TraceID: "trace-1"}
}

func intervalSchedule(state domain.ScheduleState) *domain.Schedule {
	return &domain.Schedule{
		ID:           "sched-1",
		TaskIntentID: "intent-1",
		ScheduleType: domain.ScheduleInterval,
		State:        state,
		Timezone:     "UTC",
		Definition: domain.ScheduleDefinition{
			IntervalCount: 1,
			IntervalUnit:  domain.UnitHour,
		},
	}
}

// ---- CreateSchedule ----

func TestCreateSchedule_RegistersWithAdapterOnSuccess(t *testing.T) {
	created := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{createdIntent: &domain.TaskIntent{ID: "intent-1"}, createdSchedule: created}
	port := &fakePort{}
	svc := New(&fakeScheduleReader{}, runner, port, nil)

	in := CreateScheduleInput{Schedule: domain.ScheduleCreateInput{
		Intent:       domain.TaskIntentCreateInput{Summary: "daily standup"},
		ScheduleType: domain.ScheduleInterval,
		Timezone:     "UTC",
		Definition:   domain.ScheduleDefinition{IntervalCount: 1, IntervalUnit: domain.UnitHour},
	}}

	got, err := svc.CreateSchedule(context.Background(), testActor(), in)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("got schedule %q, want %q", got.ID, created.ID)
	}
	if runner.capturedNextRun == nil {
		t.Fatal("interval schedule must get a computed next_run_at")
	}
}

func TestCreateSchedule_OneTimeUsesRunAtVerbatim(t *testing.T) {
	runAt := time.Now().Add(48 * time.Hour).UTC()
	created := &domain.Schedule{ID: "sched-1", TaskIntentID: "intent-1", ScheduleType: domain.ScheduleOneTime, State: domain.StateActive}
	runner := &fakeScheduleRunner{createdIntent: &domain.TaskIntent{ID: "intent-1"}, createdSchedule: created}
	svc := New(&fakeScheduleReader{}, runner, &fakePort{}, nil)

	in := CreateScheduleInput{Schedule: domain.ScheduleCreateInput{
		Intent:       domain.TaskIntentCreateInput{Summary: "one-off reminder"},
		ScheduleType: domain.ScheduleOneTime,
		Timezone:     "UTC",
		Definition:   domain.ScheduleDefinition{RunAt: &runAt},
	}}

	if _, err := svc.CreateSchedule(context.Background(), testActor(), in); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if runner.capturedNextRun == nil || !runner.capturedNextRun.Equal(runAt) {
		t.Fatalf("got next_run_at %v, want %v", runner.capturedNextRun, runAt)
	}
}

func TestCreateSchedule_AdapterFailureReturnsAdapterSyncButKeepsSchedule(t *testing.T) {
	created := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{createdIntent: &domain.TaskIntent{ID: "intent-1"}, createdSchedule: created}
	port := &fakePort{registerErr: &timeradapter.AdapterError{Code: "unavailable", Message: "timer engine unreachable"}}
	svc := New(&fakeScheduleReader{}, runner, port, nil)

	in := CreateScheduleInput{Schedule: domain.ScheduleCreateInput{
		Intent:       domain.TaskIntentCreateInput{Summary: "daily standup"},
		ScheduleType: domain.ScheduleInterval,
		Timezone:     "UTC",
		Definition:   domain.ScheduleDefinition{IntervalCount: 1, IntervalUnit: domain.UnitHour},
	}}

	got, err := svc.CreateSchedule(context.Background(), testActor(), in)
	if got == nil || got.ID != created.ID {
		t.Fatal("schedule must be returned even when adapter sync fails — the write already committed")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		t.Fatalf("got error %T, want *apierr.Error", err)
	}
	if apiErr.Code != apierr.CodeAdapterSync {
		t.Fatalf("got code %q, want adapter_error", apiErr.Code)
	}
	if len(runner.auditRows) != 1 || runner.auditRows[0].Reason == nil {
		t.Fatal("adapter sync failure must be audited with a reason")
	}
	if *runner.auditRows[0].Reason != "adapter_sync_failed:create:unavailable" {
		t.Fatalf("got reason %q, want adapter_sync_failed:create:unavailable", *runner.auditRows[0].Reason)
	}
}

// ---- UpdateSchedule ----

func TestUpdateSchedule_RefusesMutationFromCompletedState(t *testing.T) {
	sched := intervalSchedule(domain.StateCompleted)
	svc := New(&fakeScheduleReader{schedule: sched}, &fakeScheduleRunner{}, &fakePort{}, nil)

	_, err := svc.UpdateSchedule(context.Background(), testActor(), sched.ID, UpdateScheduleInput{})
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeInvalidStateTransition {
		t.Fatalf("got error %v, want invalid_state_transition", err)
	}
}

func TestUpdateSchedule_SyncsAdapterOnSuccess(t *testing.T) {
	sched := intervalSchedule(domain.StateActive)
	updated := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{updated: updated}
	port := &fakePort{}
	svc := New(&fakeScheduleReader{schedule: sched}, runner, port, nil)

	newTZ := "America/New_York"
	_, err := svc.UpdateSchedule(context.Background(), testActor(), sched.ID, UpdateScheduleInput{Timezone: &newTZ})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if runner.capturedEvent != "update" {
		t.Fatalf("got event %q, want update", runner.capturedEvent)
	}
	if !port.updateCalled {
		t.Fatal("UpdateSchedule must sync the timer adapter via Update after the write commits")
	}
}

func TestUpdateSchedule_AdapterFailureReturnsAdapterSyncButKeepsSchedule(t *testing.T) {
	sched := intervalSchedule(domain.StateActive)
	updated := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{updated: updated}
	port := &fakePort{updateErr: &timeradapter.AdapterError{Code: "unavailable", Message: "timer engine unreachable"}}
	svc := New(&fakeScheduleReader{schedule: sched}, runner, port, nil)

	newTZ := "America/New_York"
	got, err := svc.UpdateSchedule(context.Background(), testActor(), sched.ID, UpdateScheduleInput{Timezone: &newTZ})
	if got == nil || got.ID != updated.ID {
		t.Fatal("schedule must be returned even when adapter sync fails — the write already committed")
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeAdapterSync {
		t.Fatalf("got error %v, want *apierr.Error with code adapter_error", err)
	}
	if len(runner.auditRows) != 1 || runner.auditRows[0].Reason == nil {
		t.Fatal("adapter sync failure must be audited with a reason")
	}
	if *runner.auditRows[0].Reason != "adapter_sync_failed:update:unavailable" {
		t.Fatalf("got reason %q, want adapter_sync_failed:update:unavailable", *runner.auditRows[0].Reason)
	}
}

// ---- Pause / Resume ----

func TestPauseSchedule_RefusesFromPaused(t *testing.T) {
	sched := intervalSchedule(domain.StatePaused)
	svc := New(&fakeScheduleReader{schedule: sched}, &fakeScheduleRunner{}, &fakePort{}, nil)

	_, err := svc.PauseSchedule(context.Background(), testActor(), sched.ID, nil)
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeInvalidStateTransition {
		t.Fatalf("got error %v, want invalid_state_transition", err)
	}
}

func TestPauseThenResume_RoundTrips(t *testing.T) {
	active := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{updated: intervalSchedule(domain.StatePaused)}
	svc := New(&fakeScheduleReader{schedule: active}, runner, &fakePort{}, nil)

	if _, err := svc.PauseSchedule(context.Background(), testActor(), active.ID, nil); err != nil {
		t.Fatalf("PauseSchedule: %v", err)
	}
	if runner.capturedState != domain.StatePaused {
		t.Fatalf("got state %q, want paused", runner.capturedState)
	}

	paused := intervalSchedule(domain.StatePaused)
	runner2 := &fakeScheduleRunner{updated: intervalSchedule(domain.StateActive)}
	svc2 := New(&fakeScheduleReader{schedule: paused}, runner2, &fakePort{}, nil)
	if _, err := svc2.ResumeSchedule(context.Background(), testActor(), paused.ID, nil); err != nil {
		t.Fatalf("ResumeSchedule: %v", err)
	}
	if runner2.capturedState != domain.StateActive {
		t.Fatalf("got state %q, want active", runner2.capturedState)
	}
}

// ---- DeleteSchedule ----

func TestDeleteSchedule_RefusesFromCompleted(t *testing.T) {
	sched := intervalSchedule(domain.StateCompleted)
	svc := New(&fakeScheduleReader{schedule: sched}, &fakeScheduleRunner{}, &fakePort{}, nil)

	_, err := svc.DeleteSchedule(context.Background(), testActor(), sched.ID, nil)
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeInvalidStateTransition {
		t.Fatalf("got error %v, want invalid_state_transition", err)
	}
}

func TestDeleteSchedule_CancelsFromActive(t *testing.T) {
	sched := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{updated: intervalSchedule(domain.StateCanceled)}
	svc := New(&fakeScheduleReader{schedule: sched}, runner, &fakePort{}, nil)

	if _, err := svc.DeleteSchedule(context.Background(), testActor(), sched.ID, nil); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if runner.capturedEvent != "cancel" {
		t.Fatalf("got event %q, want cancel", runner.capturedEvent)
	}
	if runner.capturedState != domain.StateCanceled {
		t.Fatalf("got state %q, want canceled", runner.capturedState)
	}
}

// ---- RunNow ----

func TestRunNow_RefusedFromCanceled(t *testing.T) {
	sched := intervalSchedule(domain.StateCanceled)
	svc := New(&fakeScheduleReader{schedule: sched}, &fakeScheduleRunner{}, &fakePort{}, nil)

	_, err := svc.RunNow(context.Background(), testActor(), sched.ID, RunNowInput{})
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Code != apierr.CodeInvalidStateTransition {
		t.Fatalf("got error %v, want invalid_state_transition", err)
	}
}

func TestRunNow_WritesAuditAndTriggersCallback(t *testing.T) {
	sched := intervalSchedule(domain.StateActive)
	runner := &fakeScheduleRunner{}
	svc := New(&fakeScheduleReader{schedule: sched}, runner, &fakePort{}, nil)

	traceID, err := svc.RunNow(context.Background(), testActor(), sched.ID, RunNowInput{})
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if traceID == "" {
		t.Fatal("RunNow must return a non-empty trace id")
	}
	if len(runner.auditRows) != 1 || runner.auditRows[0].EventType != "run_now" {
		t.Fatalf("got audit rows %+v, want one run_now row", runner.auditRows)
	}
	if runner.auditRows[0].TraceID != traceID {
		t.Fatalf("audit row trace_id %q must match returned trace id %q", runner.auditRows[0].TraceID, traceID)
	}
}

func TestRunNow_FromPausedIsPermitted(t *testing.T) {
	sched := intervalSchedule(domain.StatePaused)
	svc := New(&fakeScheduleReader{schedule: sched}, &fakeScheduleRunner{}, &fakePort{}, nil)

	if _, err := svc.RunNow(context.Background(), testActor(), sched.ID, RunNowInput{}); err != nil {
		t.Fatalf("RunNow from paused: %v", err)
	}
}
