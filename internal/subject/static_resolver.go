package subject

import (
	"context"
	"fmt"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// StaticResolver serves values from an in-memory map. Useful for the seed
// tool and for subjects backed by process-local state rather than an
// external store.
type StaticResolver struct {
	values map[string]any
}

// NewStaticResolver constructs a StaticResolver over the given values.
func NewStaticResolver(values map[string]any) *StaticResolver {
	return &StaticResolver{values: values}
}

// Resolve returns the statically configured value for subj, or
// ErrSubjectNotFound if none is configured.
func (r *StaticResolver) Resolve(_ context.Context, subj string, _ domain.ActorContext) (any, error) {
	v, ok := r.values[subj]
	if !ok {
		return nil, &ResolveError{Code: ErrSubjectNotFound, Message: fmt.Sprintf("subject %q not found", subj)}
	}
	return v, nil
}
