package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists lead score snapshots.
type Repository interface {
	// GetByContact returns the snapshot for a contact, or ErrScoreNotFound.
	GetByContact(ctx context.Context, contactID uuid.UUID) (*LeadScore, error)

	// Insert stores a first snapshot. Returns ErrScoreExists when another
	// pass inserted one concurrently (unique contact_id).
	Insert(ctx context.Context, score *LeadScore) error

	// Update applies a recalculated snapshot, guarded by the previous
	// last_calculated_at value read together with the snapshot. Returns
	// ErrStaleScore when the row changed in between.
	Update(ctx context.Context, score *LeadScore, expectedLastCalculatedAt time.Time) error
}
