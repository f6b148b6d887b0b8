package retry_test

import (
	"testing"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/retry"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		attempt, max int
		want         bool
	}{
		{0, 3, true},
		{2, 3, true},
		{3, 3, false},
		{4, 3, false},
	}
	for _, c := range cases {
		if got := retry.ShouldRetry(c.attempt, c.max); got != c.want {
			t.Errorf("ShouldRetry(%d,%d) = %v, want %v", c.attempt, c.max, got, c.want)
		}
	}
}

func TestComputeRetryAt_Fixed(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := retry.ComputeRetryAt(finished, 1, domain.BackoffFixed, 300, 0)
	want := finished.Add(300 * time.Second)
	if !got.Equal(want) {
		t.Errorf("ComputeRetryAt fixed = %v, want %v", got, want)
	}
}

func TestComputeRetryAt_Exponential(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := retry.ComputeRetryAt(finished, 3, domain.BackoffExponential, 30, time.Hour)
	want := finished.Add(30 * time.Second * 4) // 30 * 2^(3-1)
	if !got.Equal(want) {
		t.Errorf("ComputeRetryAt exponential = %v, want %v", got, want)
	}
}

func TestComputeRetryAt_ExponentialCapped(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := retry.ComputeRetryAt(finished, 20, domain.BackoffExponential, 30, time.Hour)
	want := finished.Add(time.Hour)
	if !got.Equal(want) {
		t.Errorf("ComputeRetryAt capped = %v, want %v", got, want)
	}
}

func TestComputeRetryAt_None(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := retry.ComputeRetryAt(finished, 1, domain.BackoffNone, 300, 0)
	if !got.IsZero() {
		t.Errorf("ComputeRetryAt none = %v, want zero time", got)
	}
}

func TestDecide_Success_ResetsFailureCount(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, BackoffStrategy: domain.BackoffFixed, BackoffBaseSeconds: 300}
	d := retry.Decide(domain.OutcomeSuccess, p, time.Now(), 1, 0, 2)
	if d.NextStatus != domain.ExecSucceeded {
		t.Errorf("NextStatus = %v, want succeeded", d.NextStatus)
	}
	if d.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 reset on success", d.FailureCount)
	}
}

func TestDecide_FailureWithRetriesRemaining(t *testing.T) {
	finished := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := retry.Policy{MaxAttempts: 2, BackoffStrategy: domain.BackoffFixed, BackoffBaseSeconds: 300}
	d := retry.Decide(domain.OutcomeFailure, p, finished, 1, 0, 0)
	if d.NextStatus != domain.ExecRetryScheduled {
		t.Fatalf("NextStatus = %v, want retry_scheduled", d.NextStatus)
	}
	if d.NextRetryAt == nil || !d.NextRetryAt.Equal(finished.Add(300*time.Second)) {
		t.Errorf("NextRetryAt = %v, want %v", d.NextRetryAt, finished.Add(300*time.Second))
	}
	if d.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", d.RetryCount)
	}
	if d.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", d.FailureCount)
	}
}

func TestDecide_FailureExhausted(t *testing.T) {
	p := retry.Policy{MaxAttempts: 2, BackoffStrategy: domain.BackoffFixed, BackoffBaseSeconds: 300}
	d := retry.Decide(domain.OutcomeFailure, p, time.Now(), 2, 1, 1)
	if d.NextStatus != domain.ExecFailed {
		t.Errorf("NextStatus = %v, want failed", d.NextStatus)
	}
	if d.NextRetryAt != nil {
		t.Errorf("NextRetryAt = %v, want nil on terminal failure", d.NextRetryAt)
	}
	if d.FailureCount != 2 {
		t.Errorf("FailureCount = %d, want 2", d.FailureCount)
	}
}

func TestDecide_Deferred_TreatedLikeFailure(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, BackoffStrategy: domain.BackoffFixed, BackoffBaseSeconds: 60}
	d := retry.Decide(domain.OutcomeDeferred, p, time.Now(), 1, 0, 0)
	if d.NextStatus != domain.ExecRetryScheduled {
		t.Errorf("NextStatus = %v, want retry_scheduled for deferred", d.NextStatus)
	}
}

func TestDecide_BackoffNone_NeverRetries(t *testing.T) {
	p := retry.Policy{MaxAttempts: 5, BackoffStrategy: domain.BackoffNone, BackoffBaseSeconds: 60}
	d := retry.Decide(domain.OutcomeFailure, p, time.Now(), 1, 0, 0)
	if d.NextStatus != domain.ExecFailed {
		t.Errorf("NextStatus = %v, want failed when strategy is none", d.NextStatus)
	}
}

func TestDecide_UnknownOutcome_FailsWithInvalidResultStatus(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, BackoffStrategy: domain.BackoffFixed, BackoffBaseSeconds: 60}
	d := retry.Decide(domain.InvocationOutcome("bogus"), p, time.Now(), 0, 0, 0)
	if d.NextStatus != domain.ExecFailed {
		t.Errorf("NextStatus = %v, want failed for an unrecognized outcome", d.NextStatus)
	}
	if d.ErrorCode == nil || *d.ErrorCode != "invalid_result_status" {
		t.Errorf("ErrorCode = %v, want invalid_result_status", d.ErrorCode)
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	d := 1000 * time.Millisecond
	for i := 0; i < 50; i++ {
		j := retry.Jitter(d)
		if j < d-d/4 || j > d+d/4 {
			t.Fatalf("Jitter(%v) = %v, out of +-25%% bounds", d, j)
		}
	}
}
