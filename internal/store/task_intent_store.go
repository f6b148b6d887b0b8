package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cmtonkinson/brain-scheduler/internal/domain"
)

// TaskIntentStore is the task-intent slice of the data access layer. TaskIntents are never
// deleted and only SupersededByIntentID may change post-creation.
type TaskIntentStore struct {
	q Querier
}

func NewTaskIntentStore(q Querier) *TaskIntentStore { return &TaskIntentStore{q: q} }

func (s *TaskIntentStore) Create(ctx context.Context, actor domain.ActorContext, in domain.TaskIntentCreateInput) (*domain.TaskIntent, error) {
	if err := validateMutationActor(actor, false); err != nil {
		return nil, err
	}
	if in.Summary == "" {
		return nil, fmt.Errorf("%w: summary is required", domain.ErrValidation)
	}

	const q = `
		INSERT INTO task_intents (
			id, summary, details, origin_reference, creator_actor_type,
			creator_actor_id, creator_channel, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now())
		RETURNING id, summary, details, origin_reference, creator_actor_type,
		          creator_actor_id, creator_channel, superseded_by_intent_id,
		          created_at, updated_at`

	row := s.q.QueryRow(ctx, q, uuid.NewString(), in.Summary, in.Details, in.OriginReference,
		in.CreatorActorType, in.CreatorActorID, in.CreatorChannel)
	return scanTaskIntent(row)
}

func (s *TaskIntentStore) Get(ctx context.Context, id string) (*domain.TaskIntent, error) {
	const q = `
		SELECT id, summary, details, origin_reference, creator_actor_type,
		       creator_actor_id, creator_channel, superseded_by_intent_id,
		       created_at, updated_at
		FROM task_intents WHERE id = $1`
	return scanTaskIntent(s.q.QueryRow(ctx, q, id))
}

// SupersedeBy sets supersededByIntentID on id. It is the only mutation a
// task intent ever undergoes, and must never self-reference.
func (s *TaskIntentStore) SupersedeBy(ctx context.Context, actor domain.ActorContext, id, supersededByIntentID string) error {
	if err := validateMutationActor(actor, true); err != nil {
		return err
	}
	if id == supersededByIntentID {
		return fmt.Errorf("%w: a task intent cannot supersede itself", domain.ErrValidation)
	}
	tag, err := s.q.Exec(ctx, `UPDATE task_intents SET superseded_by_intent_id = $1, updated_at = now() WHERE id = $2`,
		supersededByIntentID, id)
	if err != nil {
		return fmt.Errorf("supersede task intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTaskIntent(row rowScanner) (*domain.TaskIntent, error) {
	var ti domain.TaskIntent
	err := row.Scan(&ti.ID, &ti.Summary, &ti.Details, &ti.OriginReference, &ti.CreatorActorType,
		&ti.CreatorActorID, &ti.CreatorChannel, &ti.SupersededByIntentID, &ti.CreatedAt, &ti.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan task intent: %w", err)
	}
	return &ti, nil
}
