package domain

import "time"

// TaskIntent is the immutable statement of what should happen. Only
// SupersededByIntentID may change after creation, and it must never
// self-reference. TaskIntents are never deleted.
type TaskIntent struct {
	ID                   string
	Summary              string
	Details              *string
	OriginReference      *string
	CreatorActorType      ActorType
	CreatorActorID       *string
	CreatorChannel       string
	SupersededByIntentID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TaskIntentCreateInput is the input to creating a task intent jointly with
// its first schedule.
type TaskIntentCreateInput struct {
	Summary          string
	Details          *string
	OriginReference  *string
	CreatorActorType ActorType
	CreatorActorID   *string
	CreatorChannel   string
}
