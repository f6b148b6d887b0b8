// Package capability implements the capability gate: read-only
// allow/deny decisions keyed on capability id and the scheduled actor
// context. The gate is pure and thread-safe — it does no I/O of its own
// beyond the (best-effort, never-raising) audit callback.
package capability

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

//go:embed policy.rego
var policySource string

// ReasonCode is the stable deny-reason vocabulary surfaced to callers and audit rows.
type ReasonCode string

const (
	ReasonNotReadOnly         ReasonCode = "not_read_only"
	ReasonUnknownCapability   ReasonCode = "unknown_capability"
	ReasonInvalidActorContext ReasonCode = "invalid_actor_context"
	ReasonMissingActorContext ReasonCode = "missing_actor_context"
)

// Decision is the gate's outcome for one check call.
type Decision struct {
	Allowed bool
	Reason  ReasonCode
}

// DeniedError is raised by Require for any deny decision.
type DeniedError struct {
	CapabilityID string
	Reason       ReasonCode
	Actor        domain.ActorContext
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("capability %q denied: %s", e.CapabilityID, e.Reason)
}

// AuditFunc receives every deny decision. It must never block the gate on
// failure — callback failures are logged but never raised.
type AuditFunc func(ctx context.Context, capabilityID string, actor domain.ActorContext, reason ReasonCode, evalContext map[string]any, at time.Time)

// Gate partitions capabilities into a read-only allowlist and a
// side-effecting denylist, both overridable at construction from config
// (capability allowlist override).
type Gate struct {
	allow map[string]bool
	deny  map[string]bool
	query rego.PreparedEvalQuery
	audit AuditFunc
	log   *slog.Logger
}

// Option configures a Gate at construction.
type Option func(*Gate)

// WithAudit registers the deny-audit callback.
func WithAudit(fn AuditFunc) Option {
	return func(g *Gate) { g.audit = fn }
}

// WithLogger overrides the logger used for audit-callback failure logging.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// New constructs a Gate from the given allowlist/denylist capability id
// sets. The OPA policy embedded in this package is prepared once at
// construction and reused for every Check call.
func New(ctx context.Context, allowlist, denylist []string, opts ...Option) (*Gate, error) {
	r := rego.New(
		rego.Query("data.brainscheduler.capability.actor_allowed"),
		rego.Module("policy.rego", policySource),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare capability policy: %w", err)
	}

	g := &Gate{
		allow: toSet(allowlist),
		deny:  toSet(denylist),
		query: prepared,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// Check evaluates the gate for capabilityID under actor, with an optional
// evaluation context carried through to the audit callback. It is the
// read path — it never returns an error for a deny, only for genuine
// evaluation failure (e.g. the embedded policy failing to run).
func (g *Gate) Check(ctx context.Context, capabilityID string, actor domain.ActorContext, evalContext map[string]any) (Decision, error) {
	if actor.IsZero() {
		return g.denyAndAudit(ctx, capabilityID, actor, ReasonMissingActorContext, evalContext)
	}

	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]any{
		"actor_type":      string(actor.ActorType),
		"channel":         actor.Channel,
		"privilege_level": actor.PrivilegeLevel,
		"autonomy_level":  actor.AutonomyLevel,
	}))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate capability policy: %w", err)
	}
	if !actorAllowed(rs) {
		return g.denyAndAudit(ctx, capabilityID, actor, ReasonInvalidActorContext, evalContext)
	}

	if g.deny[capabilityID] {
		return g.denyAndAudit(ctx, capabilityID, actor, ReasonNotReadOnly, evalContext)
	}
	if g.allow[capabilityID] {
		return Decision{Allowed: true}, nil
	}
	return g.denyAndAudit(ctx, capabilityID, actor, ReasonUnknownCapability, evalContext)
}

func actorAllowed(rs rego.ResultSet) bool {
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false
	}
	allowed, _ := rs[0].Expressions[0].Value.(bool)
	return allowed
}

func (g *Gate) denyAndAudit(ctx context.Context, capabilityID string, actor domain.ActorContext, reason ReasonCode, evalContext map[string]any) (Decision, error) {
	if g.audit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					g.log.ErrorContext(ctx, "capability audit callback panicked", "capability_id", capabilityID, "panic", r)
				}
			}()
			g.audit(ctx, capabilityID, actor, reason, evalContext, time.Now())
		}()
	}
	return Decision{Allowed: false, Reason: reason}, nil
}

// IsReadOnly reports whether capabilityID is in the read-only allowlist.
func (g *Gate) IsReadOnly(capabilityID string) bool { return g.allow[capabilityID] }

// IsSideEffecting reports whether capabilityID is in the side-effecting
// denylist.
func (g *Gate) IsSideEffecting(capabilityID string) bool { return g.deny[capabilityID] }

// Require raises a typed DeniedError for any deny decision, matching
// the require(...) variant.
func (g *Gate) Require(ctx context.Context, capabilityID string, actor domain.ActorContext, evalContext map[string]any) error {
	d, err := g.Check(ctx, capabilityID, actor, evalContext)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &DeniedError{CapabilityID: capabilityID, Reason: d.Reason, Actor: actor}
	}
	return nil
}
