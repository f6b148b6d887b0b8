// Package timeradapter defines the timer-adapter boundary: the port
// the schedule command service uses to register/update/pause/resume/delete
// schedules with the external timer engine, and the callback payload shape
// the engine posts back through when a schedule fires.
package timeradapter

import (
	"context"
	"time"
)

// Payload is the language-neutral record registered with the timer engine.
type Payload struct {
	ScheduleID   string
	ScheduleType string
	Timezone     string
	Definition   map[string]any
	NextRunAt    *time.Time
}

// TriggerSource distinguishes a timer-engine-originated callback from an
// operator-initiated run_now.
type TriggerSource string

const (
	TriggerTimer  TriggerSource = "timer"
	TriggerRunNow TriggerSource = "run_now"
)

// Callback is what the timer engine posts back when a schedule fires.
// trace_id is the dispatcher's idempotency key.
type Callback struct {
	ScheduleID    string
	ScheduledFor  time.Time
	TraceID       string
	EmittedAt     time.Time
	TriggerSource TriggerSource
}

// Health is the adapter's self-reported status.
type Health struct {
	OK     bool
	Detail string
}

// AdapterError is raised for any non-success adapter response, matching the
// synchronous failure contract every Port method shares.
type AdapterError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *AdapterError) Error() string { return e.Message }

// Port is the timer-adapter boundary. Implementations must raise
// *AdapterError for any non-success response.
type Port interface {
	Register(ctx context.Context, payload Payload) error
	Update(ctx context.Context, payload Payload) error
	Pause(ctx context.Context, scheduleID string) error
	Resume(ctx context.Context, scheduleID string) error
	Delete(ctx context.Context, scheduleID string) error
	TriggerCallback(ctx context.Context, scheduleID string, scheduledFor time.Time, traceID string, source TriggerSource) error
	HealthCheck(ctx context.Context) (Health, error)
}
