package domain

import "time"

// AuditKind discriminates the three append-only audit logs the Audit Store
// multiplexes over.
type AuditKind string

const (
	AuditKindSchedule  AuditKind = "schedule"
	AuditKindExecution AuditKind = "execution"
	AuditKindPredicate AuditKind = "predicate"
)

// ScheduleAuditRow is one row of the schedule audit log.
type ScheduleAuditRow struct {
	ID           string
	ScheduleID   string
	TaskIntentID string
	EventType    string
	Actor        ActorContext
	TraceID      string
	RequestID    *string
	Reason       *string
	DiffSummary  *string
	OccurredAt   time.Time
}

// ExecutionAuditRow is one row of the execution audit log — one row per
// status change, carrying the full execution snapshot plus actor context.
type ExecutionAuditRow struct {
	ID          string
	ExecutionID string
	EventType   string
	Actor       ActorContext
	RequestID   *string
	Snapshot    Execution
	OccurredAt  time.Time
}

// AuthorizationDecision is the capability gate's outcome, as recorded on a
// predicate-evaluation audit row.
type AuthorizationDecision string

const (
	AuthAllow AuthorizationDecision = "allow"
	AuthDeny  AuthorizationDecision = "deny"
)

// PredicateAuditRow is one row of the predicate-evaluation audit log.
// EvaluationID is globally unique.
type PredicateAuditRow struct {
	ID             string
	EvaluationID   string
	ScheduleID     string
	ExecutionID    *string
	TaskIntentID   string
	PredicateSubject  string
	PredicateOperator PredicateOperator
	PredicateValue    *string
	EvaluationTime time.Time
	EvaluatedAt    time.Time
	Status         string // "true" | "false" | "error"
	ResultCode     string
	ObservedValue  *string

	AuthorizationDecision      AuthorizationDecision
	AuthorizationReasonCode    *string
	AuthorizationReasonMessage *string
	// AuthorizationPolicyName/Version: supplemented feature, from
	// original_source/src/scheduler/predicate_evaluation.py's
	// PredicateEvaluationAuditInput — names which capability policy
	// revision produced the allow/deny decision.
	AuthorizationPolicyName    *string
	AuthorizationPolicyVersion *string

	ProviderName    string
	ProviderAttempt int
	CorrelationID   string

	Actor   ActorContext
	TraceID string

	OccurredAt time.Time
}

// Cursor is the opaque pagination cursor the query service hands back:
// base64 of (sort_key, id).
type Cursor struct {
	SortKey time.Time
	ID      string
}
