// Package notify defines the best-effort failure-notification boundary
// FailureNotificationService.NotifyIfNeeded is called by the dispatcher
// after an execution update that did not succeed, or that succeeded with
// attention_required, and must never let a notification failure propagate
// back through the dispatcher.
package notify

import "context"

// Severity is the attention level a failure notification is tagged with.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is what gets routed when an execution needs a human's
// attention.
type Notification struct {
	ExecutionID  string
	ScheduleID   string
	TaskSummary  string
	Severity     Severity
	ResultCode   string
	ErrorCode    *string
	ErrorMessage *string
	Message      *string
}

// FailureNotificationService is the notification boundary. Implementations
// should themselves swallow delivery errors where feasible; Router wraps
// any FailureNotificationService to guarantee it regardless.
type FailureNotificationService interface {
	NotifyIfNeeded(ctx context.Context, n Notification) error
}

// Router wraps an underlying FailureNotificationService so its errors never
// reach the caller — best-effort: router errors are logged, never raised.
type Router struct {
	svc    FailureNotificationService
	onErr  func(err error, n Notification)
}

// NewRouter builds a Router. onErr is invoked (never panics the caller)
// whenever the wrapped service returns an error; pass nil to discard.
func NewRouter(svc FailureNotificationService, onErr func(err error, n Notification)) *Router {
	return &Router{svc: svc, onErr: onErr}
}

// NotifyIfNeeded never returns an error.
func (r *Router) NotifyIfNeeded(ctx context.Context, n Notification) {
	if r.svc == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && r.onErr != nil {
			r.onErr(panicToError(rec), n)
		}
	}()
	if err := r.svc.NotifyIfNeeded(ctx, n); err != nil && r.onErr != nil {
		r.onErr(err, n)
	}
}

func panicToError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return errPanic{rec}
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "notifier panicked" }
