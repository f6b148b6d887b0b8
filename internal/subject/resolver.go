// Package subject defines the subject resolver boundary consulted by the
// predicate evaluation service: resolving a predicate subject (a
// capability-scoped read) to its current observable value.
package subject

import (
	"context"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// Resolver resolves a predicate subject to its current observable value.
// Implementations must enforce read-only access themselves in addition to
// the capability gate's enforcement — the gate authorizes the *capability*,
// the resolver is what actually performs the read.
type Resolver interface {
	Resolve(ctx context.Context, subject string, actor domain.ActorContext) (any, error)
}

// ResolveError carries a stable error code so the predicate service can map
// resolver failures onto its own result codes without string matching.
type ResolveError struct {
	Code    string
	Message string
}

func (e *ResolveError) Error() string { return e.Message }

// Error codes a Resolver may return via ResolveError. Anything else is
// treated as an unexpected exception and mapped to evaluation_failed by the
// predicate service.
const (
	ErrSubjectNotFound = "subject_not_found"
	ErrTimeout         = "timeout"
)
