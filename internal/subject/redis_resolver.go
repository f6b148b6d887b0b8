package subject

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// RedisResolver is a reference Resolver backed by a Redis key-value store:
// the predicate subject (minus its leading capability id) is used verbatim
// as the Redis key. It is read-only by construction — it never issues a
// write command.
type RedisResolver struct {
	client *redis.Client
}

// NewRedisResolver wraps an already-configured Redis client.
func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

// Resolve fetches subject's value from Redis. A missing key is reported as
// ErrSubjectNotFound rather than a bare nil, matching the predicate
// service's "resolver-typed errors propagate their code" contract.
func (r *RedisResolver) Resolve(ctx context.Context, subj string, _ domain.ActorContext) (any, error) {
	val, err := r.client.Get(ctx, subj).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &ResolveError{Code: ErrSubjectNotFound, Message: fmt.Sprintf("subject %q not found", subj)}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &ResolveError{Code: ErrTimeout, Message: "subject resolution timed out"}
		}
		return nil, fmt.Errorf("resolve subject %q: %w", subj, err)
	}
	return val, nil
}
