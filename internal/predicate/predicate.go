// Package predicate implements the predicate evaluation service:
// validates a conditional schedule's predicate, gates the subject read via
// the capability gate, resolves the subject, evaluates the operator, and
// records an audit row. The service never creates executions — that is
// the dispatcher's job.
package predicate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/capability"
	"github.com/cmtonkinson/brain-scheduler/internal/domain"
	"github.com/cmtonkinson/brain-scheduler/internal/subject"
)

// ResultCode is the stable error/result vocabulary for predicate evaluation.
type ResultCode string

const (
	ResultInvalidPredicate    ResultCode = "invalid_predicate"
	ResultOperatorUnsupported ResultCode = "operator_not_supported"
	ResultForbidden           ResultCode = "forbidden"
	ResultSubjectNotFound     ResultCode = "subject_not_found"
	ResultTimeout             ResultCode = "timeout"
	ResultValueTypeMismatch   ResultCode = "value_type_mismatch"
	ResultEvaluationFailed    ResultCode = "evaluation_failed"
	ResultOK                  ResultCode = ""
)

var allowedOperators = map[domain.PredicateOperator]bool{
	domain.OpEq: true, domain.OpNeq: true, domain.OpGt: true, domain.OpGte: true,
	domain.OpLt: true, domain.OpLte: true, domain.OpExists: true, domain.OpMatches: true,
}

// safePattern constrains `matches` patterns to word characters (letters,
// digits, underscore), whitespace, '.', and the glob tokens *, ?, [], -.
var safePattern = regexp.MustCompile(`^[\w\s.*?\[\]\-]+$`)

// Definition is the predicate extracted from a conditional schedule.
type Definition struct {
	Subject  string
	Operator domain.PredicateOperator
	Value    *string
}

// Request is the input to Evaluate.
type Request struct {
	EvaluationID    string
	ScheduleID      string
	ExecutionID     *string
	TaskIntentID    string
	EvaluationTime  time.Time
	Predicate       Definition
	Actor           domain.ActorContext
	ProviderName    string
	ProviderAttempt int
	TraceID         string
	CorrelationID   string
}

// Status is the evaluation outcome tag.
type Status string

const (
	StatusTrue  Status = "true"
	StatusFalse Status = "false"
	StatusError Status = "error"
)

// Result is the outcome of one Evaluate call.
type Result struct {
	Status        Status
	Triggered     bool
	ResultCode    ResultCode
	ObservedValue *string
	ErrorMessage  string

	AuthorizationDecision domain.AuthorizationDecision
	AuthorizationReason   *string
}

// AuditFunc records one predicate-evaluation audit row. Called exactly once
// per Evaluate invocation, regardless of outcome.
type AuditFunc func(ctx context.Context, req Request, res Result)

// Service is the predicate evaluation service.
type Service struct {
	gate     *capability.Gate
	resolver subject.Resolver
	audit    AuditFunc
}

// New constructs a Service.
func New(gate *capability.Gate, resolver subject.Resolver, audit AuditFunc) *Service {
	return &Service{gate: gate, resolver: resolver, audit: audit}
}

// Evaluate runs the full validate -> gate -> resolve -> evaluate -> audit
// pipeline. It returns a Result even on failure; every outcome, including
// errors, is reported through the Result's Status and ResultCode.
func (s *Service) Evaluate(ctx context.Context, req Request) Result {
	res := s.evaluate(ctx, req)
	if s.audit != nil {
		s.audit(ctx, req, res)
	}
	return res
}

func (s *Service) evaluate(ctx context.Context, req Request) Result {
	if code, msg := validate(req.Predicate); code != ResultOK {
		return Result{Status: StatusError, ResultCode: code, ErrorMessage: msg}
	}

	capabilityID := extractCapabilityID(req.Predicate.Subject)

	decision, err := s.gate.Check(ctx, capabilityID, req.Actor, map[string]any{
		"schedule_id":   req.ScheduleID,
		"evaluation_id": req.EvaluationID,
	})
	if err != nil {
		return Result{Status: StatusError, ResultCode: ResultEvaluationFailed, ErrorMessage: err.Error()}
	}
	if !decision.Allowed {
		reason := string(decision.Reason)
		return Result{
			Status:                StatusError,
			ResultCode:            ResultForbidden,
			ErrorMessage:          fmt.Sprintf("capability %q denied: %s", capabilityID, decision.Reason),
			AuthorizationDecision: domain.AuthDeny,
			AuthorizationReason:   &reason,
		}
	}

	observed, err := s.resolver.Resolve(ctx, req.Predicate.Subject, req.Actor)
	if err != nil {
		if re, ok := err.(*subject.ResolveError); ok {
			return Result{Status: StatusError, ResultCode: ResultCode(re.Code), ErrorMessage: re.Message, AuthorizationDecision: domain.AuthAllow}
		}
		return Result{Status: StatusError, ResultCode: ResultEvaluationFailed, ErrorMessage: err.Error(), AuthorizationDecision: domain.AuthAllow}
	}

	triggered, code, msg := evaluateOperator(req.Predicate, observed)
	observedStr := stringifyValue(observed)
	if code != ResultOK {
		return Result{
			Status:                StatusError,
			ResultCode:            code,
			ErrorMessage:          msg,
			ObservedValue:         observedStr,
			AuthorizationDecision: domain.AuthAllow,
		}
	}

	status := StatusFalse
	if triggered {
		status = StatusTrue
	}
	return Result{
		Status:                status,
		Triggered:             triggered,
		ObservedValue:         observedStr,
		AuthorizationDecision: domain.AuthAllow,
	}
}

func validate(p Definition) (ResultCode, string) {
	if strings.TrimSpace(p.Subject) == "" {
		return ResultInvalidPredicate, "predicate subject is required"
	}
	if strings.TrimSpace(string(p.Operator)) == "" {
		return ResultInvalidPredicate, "predicate operator is required"
	}
	if !allowedOperators[p.Operator] {
		return ResultOperatorUnsupported, fmt.Sprintf("operator %q is not supported", p.Operator)
	}
	if p.Operator != domain.OpExists && p.Value == nil {
		return ResultInvalidPredicate, fmt.Sprintf("predicate value is required for operator %q", p.Operator)
	}
	if p.Operator == domain.OpMatches && p.Value != nil && !safePattern.MatchString(*p.Value) {
		return ResultInvalidPredicate, "pattern contains disallowed characters; only letters, digits, underscore, whitespace, '.', *, ?, [], and - are allowed"
	}
	return ResultOK, ""
}

// extractCapabilityID extracts the substring before the first '/':
// "obsidian.read/notes/foo.md" maps to "obsidian.read".
func extractCapabilityID(subj string) string {
	if i := strings.Index(subj, "/"); i >= 0 {
		return subj[:i]
	}
	return subj
}

func evaluateOperator(p Definition, observed any) (triggered bool, code ResultCode, msg string) {
	if p.Operator == domain.OpExists {
		if observed == nil {
			return false, ResultOK, ""
		}
		if s, ok := observed.(string); ok {
			return strings.TrimSpace(s) != "", ResultOK, ""
		}
		return true, ResultOK, ""
	}

	if observed == nil || p.Value == nil {
		return false, ResultOK, ""
	}

	expected, code, msg := coerce(observed, *p.Value)
	if code != ResultOK {
		return false, code, msg
	}

	switch p.Operator {
	case domain.OpEq:
		return valuesEqual(observed, expected), ResultOK, ""
	case domain.OpNeq:
		return !valuesEqual(observed, expected), ResultOK, ""
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		cmp, code, msg := compare(observed, expected)
		if code != ResultOK {
			return false, code, msg
		}
		switch p.Operator {
		case domain.OpGt:
			return cmp > 0, ResultOK, ""
		case domain.OpGte:
			return cmp >= 0, ResultOK, ""
		case domain.OpLt:
			return cmp < 0, ResultOK, ""
		default:
			return cmp <= 0, ResultOK, ""
		}
	case domain.OpMatches:
		return matchesGlob(observed, *p.Value), ResultOK, ""
	default:
		return false, ResultOperatorUnsupported, fmt.Sprintf("operator %q is not implemented", p.Operator)
	}
}

// coerce converts the predicate's string value V to the runtime type of the
// observed value O.
func coerce(observed any, value string) (any, ResultCode, string) {
	switch observed.(type) {
	case bool:
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes", ResultOK, ""
	case int, int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, ResultValueTypeMismatch, fmt.Sprintf("cannot convert %q to match observed integer type", value)
		}
		return n, ResultOK, ""
	case float32, float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, ResultValueTypeMismatch, fmt.Sprintf("cannot convert %q to match observed numeric type", value)
		}
		return f, ResultOK, ""
	default:
		return value, ResultOK, ""
	}
}

func compare(observed, expected any) (int, ResultCode, string) {
	if on, ok := toFloat(observed); ok {
		if en, ok := toFloat(expected); ok {
			switch {
			case on < en:
				return -1, ResultOK, ""
			case on > en:
				return 1, ResultOK, ""
			default:
				return 0, ResultOK, ""
			}
		}
	}
	if os, ok := observed.(string); ok {
		if es, ok := expected.(string); ok {
			return strings.Compare(os, es), ResultOK, ""
		}
	}
	return 0, ResultValueTypeMismatch, fmt.Sprintf("cannot compare %T with %T", observed, expected)
}

// valuesEqual compares observed against expected for eq/neq. Both sides
// coerce to float64 first when either is numeric, so an observed int
// matches a coerced int64 (and a float) without a bare interface{}
// comparison silently failing on differing concrete numeric types.
func valuesEqual(observed, expected any) bool {
	if on, ok := toFloat(observed); ok {
		if en, ok := toFloat(expected); ok {
			return on == en
		}
	}
	return observed == expected
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// matchesGlob converts pattern to a regex (*->.*, ?->., bracket classes
// preserved, all other chars escaped) and full-matches it against
// str(observed).
func matchesGlob(observed any, pattern string) bool {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j < len(runes) {
				b.WriteString(string(runes[i : j+1]))
				i = j
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re, err := regexp.Compile("^(?:" + b.String() + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(stringifyScalar(observed))
}

func stringifyValue(v any) *string {
	if v == nil {
		return nil
	}
	s := stringifyScalar(v)
	return &s
}

func stringifyScalar(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
