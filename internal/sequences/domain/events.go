package domain

import (
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// Routing keys for sequence events.
const (
	RoutingKeyStepSent            = "funnel.sequence.step_sent"
	RoutingKeyEnrollmentCompleted = "funnel.sequence.completed"
)

// StepSent is emitted after a sequence step email is dispatched.
type StepSent struct {
	sharedDomain.BaseEvent
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	SequenceID   uuid.UUID `json:"sequence_id"`
	ContactID    uuid.UUID `json:"contact_id"`
	UserID       uuid.UUID `json:"user_id"`
	StepNumber   int       `json:"step_number"`
}

// NewStepSent creates a step-sent event.
func NewStepSent(e *Enrollment, stepNumber int) *StepSent {
	return &StepSent{
		BaseEvent:    sharedDomain.NewBaseEvent(e.ID(), "enrollment", RoutingKeyStepSent),
		EnrollmentID: e.ID(),
		SequenceID:   e.SequenceID(),
		ContactID:    e.ContactID(),
		UserID:       e.UserID(),
		StepNumber:   stepNumber,
	}
}

// EnrollmentCompleted is emitted when a contact finishes a sequence.
type EnrollmentCompleted struct {
	sharedDomain.BaseEvent
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	SequenceID   uuid.UUID `json:"sequence_id"`
	ContactID    uuid.UUID `json:"contact_id"`
	UserID       uuid.UUID `json:"user_id"`
	StepsSent    int       `json:"steps_sent"`
}

// NewEnrollmentCompleted creates a completion event.
func NewEnrollmentCompleted(e *Enrollment) *EnrollmentCompleted {
	return &EnrollmentCompleted{
		BaseEvent:    sharedDomain.NewBaseEvent(e.ID(), "enrollment", RoutingKeyEnrollmentCompleted),
		EnrollmentID: e.ID(),
		SequenceID:   e.SequenceID(),
		ContactID:    e.ContactID(),
		UserID:       e.UserID(),
		StepsSent:    e.CurrentStep(),
	}
}
