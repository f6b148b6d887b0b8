package domain

// ActorType enumerates who initiated a mutation.
type ActorType string

const (
	ActorHuman     ActorType = "human"
	ActorAgent     ActorType = "agent"
	ActorScheduled ActorType = "scheduled"
	ActorSystem    ActorType = "system"
)

// The four fixed values of the scheduled actor — the only identity the
// capability gate admits for predicate evaluation and the only identity the
// dispatcher ever invokes the agent runtime under.
const (
	ScheduledActorType      = "scheduled"
	ScheduledChannel        = "scheduled"
	ScheduledPrivilegeLevel = "constrained"
	ScheduledAutonomyLevel  = "limited"
)

// ActorContext identifies who is performing a mutation or evaluation.
type ActorContext struct {
	ActorType       ActorType
	ActorID         *string
	Channel         string
	PrivilegeLevel  string
	AutonomyLevel   string
	TraceID         string
	RequestID       *string
}

// ScheduledActorContext returns the fixed constrained-limited identity under
// which the dispatcher and predicate evaluator always run.
func ScheduledActorContext(traceID string) ActorContext {
	return ActorContext{
		ActorType:      ActorScheduled,
		Channel:        ScheduledChannel,
		PrivilegeLevel: ScheduledPrivilegeLevel,
		AutonomyLevel:  ScheduledAutonomyLevel,
		TraceID:        traceID,
	}
}

// IsZero reports whether the actor context was never populated — the
// "missing" case the capability gate distinguishes from "present but
// mismatched" (invalid_actor_context).
func (a ActorContext) IsZero() bool {
	return a.ActorType == "" && a.Channel == "" && a.PrivilegeLevel == "" && a.AutonomyLevel == ""
}
