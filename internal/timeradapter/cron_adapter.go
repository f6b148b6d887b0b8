package timeradapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"
)

// CallbackFunc delivers a fired callback to the dispatcher.
type CallbackFunc func(ctx context.Context, cb Callback)

// CronAdapter is a reference in-process Port implementation. interval and
// calendar_rule schedules resolve to a concrete next-fire time upstream in the timing engine
// and are armed here as a single-shot timer against that time, which is
// re-armed on every Update; one_time schedules are armed the same way. The
// embedded robfig/cron parser backs ValidateCronSpec only; the command
// service does not call it. Every adapter call runs through a circuit
// breaker so a wedged internal scheduler degrades to fast failures instead
// of hanging callers.
type CronAdapter struct {
	mu      sync.Mutex
	parser  cron.Parser
	timers  map[string]*time.Timer
	breaker *gobreaker.CircuitBreaker
	deliver CallbackFunc
}

// NewCronAdapter constructs a CronAdapter. deliver is invoked whenever a
// registered schedule fires.
func NewCronAdapter(deliver CallbackFunc) *CronAdapter {
	a := &CronAdapter{
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		timers:  make(map[string]*time.Timer),
		deliver: deliver,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "timer_adapter",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return a
}

// ValidateCronSpec confirms spec parses as a standard five-field cron
// expression. calendar_rule schedules are RRULE strings parsed by the
// timing engine, not by this method.
func (a *CronAdapter) ValidateCronSpec(spec string) error {
	_, err := a.parser.Parse(spec)
	return err
}

func (a *CronAdapter) call(ctx context.Context, op func() error) error {
	_, err := a.breaker.Execute(func() (any, error) {
		return nil, op()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &AdapterError{Code: "timeout", Message: "timer adapter circuit open", Details: map[string]any{"state": a.breaker.State().String()}}
		}
		var adapterErr *AdapterError
		if ok := asAdapterError(err, &adapterErr); ok {
			return adapterErr
		}
		return &AdapterError{Code: "internal_error", Message: err.Error()}
	}
	return nil
}

func asAdapterError(err error, target **AdapterError) bool {
	if ae, ok := err.(*AdapterError); ok {
		*target = ae
		return true
	}
	return false
}

// Register schedules payload with the in-process cron runtime.
func (a *CronAdapter) Register(ctx context.Context, payload Payload) error {
	return a.call(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.removeLocked(payload.ScheduleID)

		if payload.NextRunAt == nil {
			return nil
		}
		delay := time.Until(*payload.NextRunAt)
		if delay < 0 {
			delay = 0
		}
		traceSeed := payload.ScheduleID
		a.timers[payload.ScheduleID] = time.AfterFunc(delay, func() {
			a.deliver(context.Background(), Callback{
				ScheduleID:    payload.ScheduleID,
				ScheduledFor:  *payload.NextRunAt,
				TraceID:       fmt.Sprintf("%s:%d", traceSeed, payload.NextRunAt.UnixNano()),
				EmittedAt:     time.Now(),
				TriggerSource: TriggerTimer,
			})
		})
		return nil
	})
}

// Update re-registers payload, replacing any existing entry for its
// schedule id.
func (a *CronAdapter) Update(ctx context.Context, payload Payload) error {
	return a.Register(ctx, payload)
}

// Pause suspends future firings for scheduleID without forgetting it.
func (a *CronAdapter) Pause(ctx context.Context, scheduleID string) error {
	return a.call(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.removeLocked(scheduleID)
		return nil
	})
}

// Resume is a no-op for the in-process adapter: the command service
// re-registers the next fire time via Update after a resume.
func (a *CronAdapter) Resume(ctx context.Context, scheduleID string) error {
	return a.call(ctx, func() error { return nil })
}

// Delete forgets scheduleID entirely.
func (a *CronAdapter) Delete(ctx context.Context, scheduleID string) error {
	return a.call(ctx, func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.removeLocked(scheduleID)
		return nil
	})
}

func (a *CronAdapter) removeLocked(scheduleID string) {
	if t, ok := a.timers[scheduleID]; ok {
		t.Stop()
		delete(a.timers, scheduleID)
	}
}

// TriggerCallback delivers an immediate callback, used for run_now.
func (a *CronAdapter) TriggerCallback(ctx context.Context, scheduleID string, scheduledFor time.Time, traceID string, source TriggerSource) error {
	return a.call(ctx, func() error {
		a.deliver(ctx, Callback{
			ScheduleID:    scheduleID,
			ScheduledFor:  scheduledFor,
			TraceID:       traceID,
			EmittedAt:     time.Now(),
			TriggerSource: source,
		})
		return nil
	})
}

// HealthCheck reports the circuit breaker's state.
func (a *CronAdapter) HealthCheck(ctx context.Context) (Health, error) {
	state := a.breaker.State()
	if state == gobreaker.StateOpen {
		return Health{OK: false, Detail: "circuit open"}, nil
	}
	return Health{OK: true, Detail: state.String()}, nil
}

// Stop cancels every armed timer.
func (a *CronAdapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.timers {
		t.Stop()
	}
}
