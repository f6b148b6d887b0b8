package timeradapter

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingDelivery struct {
	mu   sync.Mutex
	cbs  []Callback
	done chan struct{}
}

func newRecordingDelivery() *recordingDelivery {
	return &recordingDelivery{done: make(chan struct{}, 10)}
}

func (r *recordingDelivery) deliver(ctx context.Context, cb Callback) {
	r.mu.Lock()
	r.cbs = append(r.cbs, cb)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingDelivery) wait(t *testing.T) Callback {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback delivery")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cbs[len(r.cbs)-1]
}

func TestRegister_FiresAtNextRunAt(t *testing.T) {
	rec := newRecordingDelivery()
	a := NewCronAdapter(rec.deliver)
	defer a.Stop()

	fireAt := time.Now().Add(50 * time.Millisecond)
	err := a.Register(context.Background(), Payload{ScheduleID: "sched-1", NextRunAt: &fireAt})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cb := rec.wait(t)
	if cb.ScheduleID != "sched-1" {
		t.Fatalf("got schedule id %q", cb.ScheduleID)
	}
	if cb.TriggerSource != TriggerTimer {
		t.Fatalf("got trigger source %q", cb.TriggerSource)
	}
}

func TestUpdate_ReplacesPriorTimer(t *testing.T) {
	rec := newRecordingDelivery()
	a := NewCronAdapter(rec.deliver)
	defer a.Stop()

	farFuture := time.Now().Add(time.Hour)
	if err := a.Register(context.Background(), Payload{ScheduleID: "sched-2", NextRunAt: &farFuture}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	soon := time.Now().Add(30 * time.Millisecond)
	if err := a.Update(context.Background(), Payload{ScheduleID: "sched-2", NextRunAt: &soon}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cb := rec.wait(t)
	if cb.ScheduleID != "sched-2" {
		t.Fatalf("got schedule id %q", cb.ScheduleID)
	}

	select {
	case <-rec.done:
		t.Fatal("stale timer fired a second callback")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPause_CancelsPendingFire(t *testing.T) {
	rec := newRecordingDelivery()
	a := NewCronAdapter(rec.deliver)
	defer a.Stop()

	fireAt := time.Now().Add(50 * time.Millisecond)
	if err := a.Register(context.Background(), Payload{ScheduleID: "sched-3", NextRunAt: &fireAt}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := a.Pause(context.Background(), "sched-3"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	select {
	case <-rec.done:
		t.Fatal("paused schedule still fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDelete_ForgetsSchedule(t *testing.T) {
	rec := newRecordingDelivery()
	a := NewCronAdapter(rec.deliver)
	defer a.Stop()

	fireAt := time.Now().Add(50 * time.Millisecond)
	if err := a.Register(context.Background(), Payload{ScheduleID: "sched-4", NextRunAt: &fireAt}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := a.Delete(context.Background(), "sched-4"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	select {
	case <-rec.done:
		t.Fatal("deleted schedule still fired")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTriggerCallback_DeliversRunNowImmediately(t *testing.T) {
	rec := newRecordingDelivery()
	a := NewCronAdapter(rec.deliver)
	defer a.Stop()

	now := time.Now()
	err := a.TriggerCallback(context.Background(), "sched-5", now, "trace-1", TriggerRunNow)
	if err != nil {
		t.Fatalf("TriggerCallback: %v", err)
	}
	cb := rec.wait(t)
	if cb.TraceID != "trace-1" {
		t.Fatalf("got trace id %q", cb.TraceID)
	}
	if cb.TriggerSource != TriggerRunNow {
		t.Fatalf("got trigger source %q", cb.TriggerSource)
	}
}

func TestHealthCheck_ReportsClosedByDefault(t *testing.T) {
	a := NewCronAdapter(func(ctx context.Context, cb Callback) {})
	defer a.Stop()

	h, err := a.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !h.OK {
		t.Fatalf("expected healthy breaker, got %+v", h)
	}
}

func TestValidateCronSpec(t *testing.T) {
	a := NewCronAdapter(func(ctx context.Context, cb Callback) {})
	defer a.Stop()

	if err := a.ValidateCronSpec("*/5 * * * *"); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
	if err := a.ValidateCronSpec("not a cron spec"); err == nil {
		t.Fatal("expected invalid spec to error")
	}
}
