package domain

import "time"

// ScheduleType is the tag discriminating which fields of ScheduleDefinition
// are populated. Go has no sum types, so the "OneTime | Interval |
// CalendarRule | Conditional" variant from the source is represented as one
// struct gated by this tag — exactly the listed fields for the tag must be
// set; the rest are zero.
type ScheduleType string

const (
	ScheduleOneTime      ScheduleType = "one_time"
	ScheduleInterval     ScheduleType = "interval"
	ScheduleCalendarRule ScheduleType = "calendar_rule"
	ScheduleConditional  ScheduleType = "conditional"
)

// ScheduleState is the schedule lifecycle state.
type ScheduleState string

const (
	StateDraft     ScheduleState = "draft"
	StateActive    ScheduleState = "active"
	StatePaused    ScheduleState = "paused"
	StateCanceled  ScheduleState = "canceled"
	StateArchived  ScheduleState = "archived"
	StateCompleted ScheduleState = "completed"
)

// IntervalUnit is the unit of an `interval` schedule's cadence.
type IntervalUnit string

const (
	UnitMinute IntervalUnit = "minute"
	UnitHour   IntervalUnit = "hour"
	UnitDay    IntervalUnit = "day"
	UnitWeek   IntervalUnit = "week"
	UnitMonth  IntervalUnit = "month"
)

// EvalIntervalUnit is the unit of a `conditional` schedule's evaluation
// cadence — the same set as IntervalUnit minus `month`.
type EvalIntervalUnit string

const (
	EvalUnitMinute EvalIntervalUnit = "minute"
	EvalUnitHour   EvalIntervalUnit = "hour"
	EvalUnitDay    EvalIntervalUnit = "day"
	EvalUnitWeek   EvalIntervalUnit = "week"
)

// PredicateOperator is the comparison applied to a conditional schedule's
// resolved subject value.
type PredicateOperator string

const (
	OpEq      PredicateOperator = "eq"
	OpNeq     PredicateOperator = "neq"
	OpGt      PredicateOperator = "gt"
	OpGte     PredicateOperator = "gte"
	OpLt      PredicateOperator = "lt"
	OpLte     PredicateOperator = "lte"
	OpExists  PredicateOperator = "exists"
	OpMatches PredicateOperator = "matches"
)

// ScheduleDefinition carries every type-specific field. Exactly the fields
// for ScheduleType must be populated; the store's validateDefinition
// enforces this when a schedule is created (ScheduleStore.Update does not
// re-validate).
type ScheduleDefinition struct {
	// one_time
	RunAt *time.Time

	// interval
	IntervalCount int
	IntervalUnit  IntervalUnit
	AnchorAt      *time.Time

	// calendar_rule
	RRule            string
	CalendarAnchorAt *time.Time

	// conditional
	PredicateSubject         string
	PredicateOperator        PredicateOperator
	PredicateValue           *string
	EvaluationIntervalCount  int
	EvaluationIntervalUnit   EvalIntervalUnit
}

// Schedule is the timing envelope over a TaskIntent.
type Schedule struct {
	ID           string
	TaskIntentID string
	ScheduleType ScheduleType
	State        ScheduleState
	Timezone     string
	Definition   ScheduleDefinition

	NextRunAt       *time.Time
	LastRunAt       *time.Time
	LastRunStatus   *string
	FailureCount    int
	LastExecutionID *string

	// conditional only
	LastEvaluatedAt         *time.Time
	LastEvaluationStatus    *string
	LastEvaluationErrorCode *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransitionTo reports whether the schedule's state machine
// permits moving from s.State to next.
func (s *Schedule) CanTransitionTo(next ScheduleState) bool {
	switch {
	case s.State == StateDraft && next == StateActive:
		return true
	case s.State == StateActive && next == StatePaused:
		return true
	case s.State == StatePaused && next == StateActive:
		return true
	case (s.State == StateActive || s.State == StatePaused) && next == StateCanceled:
		return true
	case s.State == StateActive && s.ScheduleType == ScheduleOneTime && next == StateCompleted:
		return true
	case next == StateArchived:
		return true
	default:
		return false
	}
}

// CanRunNow reports whether run_now is permitted from the schedule's current
// state. By decision, run_now from
// canceled/archived is refused rather than silently permitted.
func (s *Schedule) CanRunNow() bool {
	return s.State == StateActive || s.State == StatePaused
}

// CanMutate reports whether ordinary command-service mutations (update,
// pause, resume, delete) are permitted from the schedule's current state.
func (s *Schedule) CanMutate() bool {
	return s.State == StateActive || s.State == StatePaused || s.State == StateDraft
}

// ScheduleCreateInput is the input to creating a schedule (with its inline
// task intent, per the "create schedule with inline intent" operation).
type ScheduleCreateInput struct {
	Intent       TaskIntentCreateInput
	ScheduleType ScheduleType
	Timezone     string
	Definition   ScheduleDefinition
}

// ScheduleUpdateInput carries Opt-wrapped fields: only fields with IsSet()
// true are written, and only those are named in the audit diff summary.
type ScheduleUpdateInput struct {
	Timezone     Opt[string]
	Definition   Opt[ScheduleDefinition]
	State        Opt[ScheduleState]
	NextRunAt    Opt[*time.Time]
	LastRunAt    Opt[*time.Time]
	LastRunStatus Opt[*string]
	FailureCount Opt[int]
	LastExecutionID Opt[*string]

	LastEvaluatedAt         Opt[*time.Time]
	LastEvaluationStatus    Opt[*string]
	LastEvaluationErrorCode Opt[*string]
}

// ScheduleFilter composes conjunctively over the query service's list
// operation.
type ScheduleFilter struct {
	State             *ScheduleState
	ScheduleType      *ScheduleType
	CreatorActorType  *ActorType
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
}
