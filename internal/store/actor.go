package store

import (
	"fmt"
	"time"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// validateMutationActor enforces the actor-validation rule for
// every DAL mutation: actor_type/channel/trace_id non-empty, and
// actor_type=scheduled forbidden on human-initiated mutations (it belongs
// to the dispatcher alone).
func validateMutationActor(actor domain.ActorContext, allowScheduled bool) error {
	if actor.ActorType == "" || actor.Channel == "" || actor.TraceID == "" {
		return fmt.Errorf("%w: actor_type, channel, and trace_id are required", domain.ErrMissingActorContext)
	}
	if actor.ActorType == domain.ActorScheduled && !allowScheduled {
		return fmt.Errorf("%w: actor_type=scheduled is reserved for dispatcher-initiated mutations", domain.ErrValidation)
	}
	return nil
}

// normalizeUTC coerces a timestamp to UTC, matching the
// timestamp-normalization rule ("any naive timestamp entering the layer is
// coerced to UTC").
func normalizeUTC(t time.Time) time.Time {
	return t.UTC()
}

func normalizeUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
