package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContactRepository provides access to contact records.
type ContactRepository interface {
	// GetByID returns the contact, scoped to its owner.
	GetByID(ctx context.Context, userID, contactID uuid.UUID) (*Contact, error)

	// ListByOwner returns all contacts owned by the user.
	ListByOwner(ctx context.Context, userID uuid.UUID) ([]*Contact, error)

	// ListUntouchedSince returns contacts with no activity recorded after the
	// given cutoff, in creation order.
	ListUntouchedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*Contact, error)

	// SetEngagementScore writes the derived engagement score back to the
	// contact record.
	SetEngagementScore(ctx context.Context, contactID uuid.UUID, score int) error
}

// ActivityRepository provides access to activity records.
type ActivityRepository interface {
	// ListByContact returns the contact's activities, newest first.
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Activity, error)
}

// TaskRepository provides access to task records.
type TaskRepository interface {
	// ListByContact returns the contact's tasks.
	ListByContact(ctx context.Context, contactID uuid.UUID) ([]*Task, error)

	// ListOverdue returns tasks past due and not completed as of the given
	// instant, in due-date order.
	ListOverdue(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*Task, error)

	// Create inserts a new task (used by automation actions).
	Create(ctx context.Context, task *Task) error
}

// DealRepository provides access to deal records.
type DealRepository interface {
	// ListStageChangedSince returns deals whose stage changed to the target
	// stage after the cutoff, in change order.
	ListStageChangedSince(ctx context.Context, userID uuid.UUID, stage string, cutoff time.Time) ([]*Deal, error)

	// UpdateFields applies a partial update to a deal (used by automation
	// actions). Only title, stage and value_cents may be set.
	UpdateFields(ctx context.Context, userID, dealID uuid.UUID, fields map[string]any) error
}
