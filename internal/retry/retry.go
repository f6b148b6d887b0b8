// Package retry implements the retry policy engine: pure functions
// mapping (attempt, outcome, strategy) to a retry-at time or a terminal
// state. Nothing here touches the database, the clock source is always an
// explicit parameter, and nothing here is safe to call with a nil policy.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// Policy parameterizes the engine; constructed once at startup from config
// and passed explicitly into callers rather than held as an ambient singleton.
type Policy struct {
	MaxAttempts        int
	BackoffStrategy    domain.BackoffStrategy
	BackoffBaseSeconds int
	MaxBackoff         time.Duration
}

// ShouldRetry reports whether another attempt is permitted.
func ShouldRetry(attemptCount, maxAttempts int) bool {
	return attemptCount < maxAttempts
}

// ComputeRetryAt returns the next retry time for the given finish time,
// 1-indexed retry count, and strategy. `none` never retries and returns the
// zero time; Decide checks the strategy before calling this, since
// ShouldRetry only compares attempt counts.
func ComputeRetryAt(finishedAt time.Time, retryCount int, strategy domain.BackoffStrategy, baseSeconds int, maxBackoff time.Duration) time.Time {
	base := time.Duration(baseSeconds) * time.Second
	if base <= 0 {
		base = 30 * time.Second
	}

	switch strategy {
	case domain.BackoffExponential:
		delay := time.Duration(float64(base) * math.Pow(2, float64(retryCount-1)))
		if maxBackoff > 0 && delay > maxBackoff {
			delay = maxBackoff
		}
		return finishedAt.Add(delay)
	case domain.BackoffFixed:
		return finishedAt.Add(base)
	default: // none
		return time.Time{}
	}
}

// Jitter applies +-25% jitter to a computed duration, matching the
// thundering-herd mitigation applied to worker backoff.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := d / 2
	return d - d/4 + time.Duration(rand.Int63n(int64(spread)+1))
}

// Decision is the outcome-to-state-transition mapping the dispatcher applies
// after an invocation.
type Decision struct {
	NextStatus   domain.ExecutionStatus
	NextRetryAt  *time.Time
	RetryCount   int
	FailureCount int
	// ErrorCode is set only when the decision itself identifies the
	// failure (an unrecognized outcome); the dispatcher's own
	// result.Error, when present, takes precedence over it.
	ErrorCode *string
}

// Decide maps an invocation outcome plus the policy and current counters to
// the execution's next status. finishedAt and attemptCount/retryCount/
// failureCount reflect the execution row *before* this decision is applied.
func Decide(outcome domain.InvocationOutcome, p Policy, finishedAt time.Time, attemptCount, retryCount, failureCount int) Decision {
	switch outcome {
	case domain.OutcomeSuccess:
		return Decision{
			NextStatus:   domain.ExecSucceeded,
			RetryCount:   retryCount,
			FailureCount: 0,
		}
	case domain.OutcomeFailure, domain.OutcomeDeferred:
		if ShouldRetry(attemptCount, p.MaxAttempts) && p.BackoffStrategy != domain.BackoffNone {
			nextRetryCount := retryCount + 1
			retryAt := ComputeRetryAt(finishedAt, nextRetryCount, p.BackoffStrategy, p.BackoffBaseSeconds, p.MaxBackoff)
			if p.BackoffStrategy == domain.BackoffExponential {
				retryAt = finishedAt.Add(Jitter(retryAt.Sub(finishedAt)))
			}
			return Decision{
				NextStatus:   domain.ExecRetryScheduled,
				NextRetryAt:  &retryAt,
				RetryCount:   nextRetryCount,
				FailureCount: failureCount + 1,
			}
		}
		return Decision{
			NextStatus:   domain.ExecFailed,
			RetryCount:   retryCount,
			FailureCount: failureCount + 1,
		}
	default:
		code := "invalid_result_status"
		return Decision{
			NextStatus:   domain.ExecFailed,
			RetryCount:   retryCount,
			FailureCount: failureCount + 1,
			ErrorCode:    &code,
		}
	}
}
