package predicate_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/capability"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/predicate"
	"github.com/cmtonkinson/brain-scheduler/internal/subject"
)

func strPtr(s string) *string { return &s }

func newService(t *testing.T, values map[string]any, allow, deny []string) *predicate.Service {
	t.Helper()
	gate, err := capability.New(context.Background(), allow, deny)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	resolver := subject.NewStaticResolver(values)
	return predicate.New(gate, resolver, nil)
}

func baseRequest(p predicate.Definition) predicate.Request {
	return predicate.Request{
		EvaluationID:   "eval-1",
		ScheduleID:     "sched-1",
		TaskIntentID:   "intent-1",
		EvaluationTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Predicate:      p,
		Actor:          domain.ScheduledActorContext("trace-1"),
		TraceID:        "trace-1",
	}
}

func TestEvaluate_NumericGreaterThan_True(t *testing.T) {
	svc := newService(t, map[string]any{"weather.read/temp": 75}, []string{"weather.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "weather.read/temp", Operator: domain.OpGt, Value: strPtr("70"),
	}))
	if res.Status != predicate.StatusTrue || !res.Triggered {
		t.Errorf("got %+v, want triggered true", res)
	}
}

func TestEvaluate_NumericGreaterThan_False(t *testing.T) {
	svc := newService(t, map[string]any{"weather.read/temp": 60}, []string{"weather.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "weather.read/temp", Operator: domain.OpGt, Value: strPtr("70"),
	}))
	if res.Status != predicate.StatusFalse || res.Triggered {
		t.Errorf("got %+v, want triggered false", res)
	}
}

func TestEvaluate_Exists_ZeroAndFalseCountAsExisting(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": 0}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpExists,
	}))
	if !res.Triggered {
		t.Errorf("exists(0) should be true, got %+v", res)
	}

	svc2 := newService(t, map[string]any{"x.read/v": false}, []string{"x.read"}, nil)
	res2 := svc2.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpExists,
	}))
	if !res2.Triggered {
		t.Errorf("exists(false) should be true, got %+v", res2)
	}
}

func TestEvaluate_Exists_EmptyStringFalse(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": "  "}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpExists,
	}))
	if res.Triggered {
		t.Errorf("exists(whitespace) should be false, got %+v", res)
	}
}

func TestEvaluate_BoolCoercion(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": true}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpEq, Value: strPtr("YES"),
	}))
	if !res.Triggered {
		t.Errorf("eq(true, YES) should coerce to true, got %+v", res)
	}
}

func TestEvaluate_IntEquality_CoercedInt64DoesNotMismatch(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": 75}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpEq, Value: strPtr("75"),
	}))
	if !res.Triggered {
		t.Errorf("eq(int(75), \"75\") should match despite the coerced int64, got %+v", res)
	}
}

func TestEvaluate_IntInequality_CoercedInt64DoesNotMismatch(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": 75}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpNeq, Value: strPtr("80"),
	}))
	if !res.Triggered {
		t.Errorf("neq(int(75), \"80\") should be true, got %+v", res)
	}
}

func TestEvaluate_Matches(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": "report-2026-01.md"}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpMatches, Value: strPtr("report-*.md"),
	}))
	if !res.Triggered {
		t.Errorf("matches(report-*.md) should match, got %+v", res)
	}
}

func TestEvaluate_InvalidPredicate_EmptySubject(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "", Operator: domain.OpExists,
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultInvalidPredicate {
		t.Errorf("got %+v, want invalid_predicate", res)
	}
}

func TestEvaluate_OperatorNotSupported(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: "bogus",
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultOperatorUnsupported {
		t.Errorf("got %+v, want operator_not_supported", res)
	}
}

func TestEvaluate_MissingValueForNonExists(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpEq,
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultInvalidPredicate {
		t.Errorf("got %+v, want invalid_predicate for missing value", res)
	}
}

func TestEvaluate_UnsafeMatchesPattern(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpMatches, Value: strPtr("(a|b)+"),
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultInvalidPredicate {
		t.Errorf("got %+v, want invalid_predicate for unsafe pattern", res)
	}
}

func TestEvaluate_CapabilityDenied_SideEffecting(t *testing.T) {
	svc := newService(t, map[string]any{"obsidian.write/note": "x"}, nil, []string{"obsidian.write"})
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "obsidian.write/note", Operator: domain.OpExists,
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultForbidden {
		t.Errorf("got %+v, want forbidden", res)
	}
	if res.AuthorizationDecision != domain.AuthDeny {
		t.Errorf("AuthorizationDecision = %v, want deny", res.AuthorizationDecision)
	}
}

func TestEvaluate_SubjectNotFound(t *testing.T) {
	svc := newService(t, map[string]any{}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/missing", Operator: domain.OpExists,
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultSubjectNotFound {
		t.Errorf("got %+v, want subject_not_found", res)
	}
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	svc := newService(t, map[string]any{"x.read/v": "not-a-number"}, []string{"x.read"}, nil)
	res := svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpGt, Value: strPtr("10"),
	}))
	if res.Status != predicate.StatusError || res.ResultCode != predicate.ResultValueTypeMismatch {
		t.Errorf("got %+v, want value_type_mismatch", res)
	}
}

func TestEvaluate_AuditCalledExactlyOnce(t *testing.T) {
	calls := 0
	gate, err := capability.New(context.Background(), []string{"x.read"}, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	resolver := subject.NewStaticResolver(map[string]any{"x.read/v": 5})
	svc := predicate.New(gate, resolver, func(context.Context, predicate.Request, predicate.Result) {
		calls++
	})
	svc.Evaluate(context.Background(), baseRequest(predicate.Definition{
		Subject: "x.read/v", Operator: domain.OpGte, Value: strPtr("5"),
	}))
	if calls != 1 {
		t.Errorf("audit called %d times, want exactly 1", calls)
	}
}
