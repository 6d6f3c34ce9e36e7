package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StepRepository provides access to sequence step templates.
type StepRepository interface {
	// GetStep returns the step at the given position, or ErrStepNotFound
	// when the sequence has no step there.
	GetStep(ctx context.Context, sequenceID uuid.UUID, stepNumber int) (*Step, error)

	// ListBySequence returns all steps of a sequence in step order.
	ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*Step, error)
}

// EnrollmentRepository provides access to enrollments.
type EnrollmentRepository interface {
	// GetByID returns the enrollment, scoped to its owner.
	GetByID(ctx context.Context, userID, enrollmentID uuid.UUID) (*Enrollment, error)

	// ListByUser returns the user's enrollments, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Enrollment, error)

	// ClaimDue atomically claims up to limit active enrollments that are
	// due as of now and not already claimed, marking them claimed for the
	// lease duration. A claimed enrollment is invisible to other workers
	// until the lease expires or it is saved.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Enrollment, error)

	// Save persists the enrollment state and clears any claim on it.
	Save(ctx context.Context, enrollment *Enrollment) error

	// Release clears the claim without changing enrollment state, making
	// it immediately visible to other workers again.
	Release(ctx context.Context, enrollmentID uuid.UUID) error

	// Create persists a new enrollment.
	Create(ctx context.Context, enrollment *Enrollment) error
}

// Message is the record of one dispatched step email.
type Message struct {
	ID                uuid.UUID
	EnrollmentID      uuid.UUID
	StepNumber        int
	Recipient         string
	Subject           string
	ProviderMessageID string
	SentAt            time.Time
}

// MessageRepository is the append-only log of dispatched step emails.
type MessageRepository interface {
	// Append records a dispatched message.
	Append(ctx context.Context, message *Message) error

	// ListByEnrollment returns an enrollment's messages in send order.
	ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]*Message, error)
}
