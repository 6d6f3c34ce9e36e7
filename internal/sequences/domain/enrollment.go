package domain

import (
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// Status is the lifecycle state of an enrollment.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

var ErrInvalidTransition = errors.New("invalid enrollment transition")

// Enrollment tracks one contact's progress through a sequence. The step
// cursor only ever moves forward, one step at a time; a failed dispatch
// leaves it where it was so the step is retried on the next pass.
type Enrollment struct {
	sharedDomain.BaseAggregateRoot
	sequenceID  uuid.UUID
	contactID   uuid.UUID
	userID      uuid.UUID
	status      Status
	currentStep int
	nextSendAt  time.Time
	completedAt *time.Time
}

// NewEnrollment enrolls a contact into a sequence. The first step is due
// immediately.
func NewEnrollment(sequenceID, contactID, userID uuid.UUID, now time.Time) *Enrollment {
	return &Enrollment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		sequenceID:        sequenceID,
		contactID:         contactID,
		userID:            userID,
		status:            StatusActive,
		currentStep:       0,
		nextSendAt:        now,
	}
}

// RehydrateEnrollment recreates an enrollment from persisted state.
func RehydrateEnrollment(
	entity sharedDomain.BaseEntity,
	sequenceID, contactID, userID uuid.UUID,
	status Status,
	currentStep int,
	nextSendAt time.Time,
	completedAt *time.Time,
) *Enrollment {
	return &Enrollment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity),
		sequenceID:        sequenceID,
		contactID:         contactID,
		userID:            userID,
		status:            status,
		currentStep:       currentStep,
		nextSendAt:        nextSendAt,
		completedAt:       completedAt,
	}
}

// Getters
func (e *Enrollment) SequenceID() uuid.UUID    { return e.sequenceID }
func (e *Enrollment) ContactID() uuid.UUID     { return e.contactID }
func (e *Enrollment) UserID() uuid.UUID        { return e.userID }
func (e *Enrollment) Status() Status           { return e.status }
func (e *Enrollment) CurrentStep() int         { return e.currentStep }
func (e *Enrollment) NextSendAt() time.Time    { return e.nextSendAt }
func (e *Enrollment) CompletedAt() *time.Time  { return e.completedAt }

// NextStepNumber is the step that should be dispatched next.
func (e *Enrollment) NextStepNumber() int {
	return e.currentStep + 1
}

// IsDue reports whether the next step should be dispatched.
func (e *Enrollment) IsDue(now time.Time) bool {
	return e.status == StatusActive && !e.nextSendAt.After(now)
}

// Advance records a successful dispatch of the given step and schedules the
// one after it.
func (e *Enrollment) Advance(step *Step, now time.Time) error {
	if e.status != StatusActive {
		return fmt.Errorf("%w: advance from %s", ErrInvalidTransition, e.status)
	}
	if step.StepNumber != e.NextStepNumber() {
		return fmt.Errorf("%w: step %d dispatched at cursor %d", ErrInvalidTransition, step.StepNumber, e.currentStep)
	}

	e.currentStep = step.StepNumber
	e.nextSendAt = now.Add(step.Delay())
	e.Touch()
	return nil
}

// Complete marks the enrollment finished. Completion is terminal.
func (e *Enrollment) Complete(now time.Time) error {
	if e.status != StatusActive {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, e.status)
	}

	e.status = StatusCompleted
	e.completedAt = &now
	e.AddDomainEvent(NewEnrollmentCompleted(e))
	e.Touch()
	return nil
}

// Pause suspends dispatching. The due time is left as-is so resuming an
// overdue enrollment makes it due again immediately.
func (e *Enrollment) Pause() error {
	if e.status != StatusActive {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, e.status)
	}
	e.status = StatusPaused
	e.Touch()
	return nil
}

// Resume reactivates a paused enrollment.
func (e *Enrollment) Resume() error {
	if e.status != StatusPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, e.status)
	}
	e.status = StatusActive
	e.Touch()
	return nil
}
