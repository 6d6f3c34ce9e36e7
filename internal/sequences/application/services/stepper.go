// Package services contains the sequence stepping engine.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// OutboundEmail is one step email, fully rendered.
type OutboundEmail struct {
	To      string
	Subject string
	Body    string
}

// EmailSender dispatches a rendered email and returns the provider's
// message id.
type EmailSender interface {
	Send(ctx context.Context, email OutboundEmail) (string, error)
}

// StepperConfig controls batch claiming.
type StepperConfig struct {
	BatchSize int
	Lease     time.Duration
}

// DefaultStepperConfig returns production defaults.
func DefaultStepperConfig() StepperConfig {
	return StepperConfig{
		BatchSize: 50,
		Lease:     2 * time.Minute,
	}
}

// StepResult summarizes one processing pass.
type StepResult struct {
	Claimed   int
	Sent      int
	Completed int
	Failed    int
}

// Stepper walks active enrollments through their sequences. Each due
// enrollment gets at most one step per pass; the cursor only moves after a
// successful dispatch.
type Stepper struct {
	enrollments domain.EnrollmentRepository
	steps       domain.StepRepository
	messages    domain.MessageRepository
	contacts    crmDomain.ContactRepository
	sender      EmailSender
	publisher   eventbus.Publisher
	config      StepperConfig
	logger      *slog.Logger
}

// NewStepper creates a new sequence stepper.
func NewStepper(
	enrollments domain.EnrollmentRepository,
	steps domain.StepRepository,
	messages domain.MessageRepository,
	contacts crmDomain.ContactRepository,
	sender EmailSender,
	publisher eventbus.Publisher,
	config StepperConfig,
	logger *slog.Logger,
) *Stepper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stepper{
		enrollments: enrollments,
		steps:       steps,
		messages:    messages,
		contacts:    contacts,
		sender:      sender,
		publisher:   publisher,
		config:      config,
		logger:      logger,
	}
}

// Enroll puts a contact into a sequence with the first step due immediately.
func (s *Stepper) Enroll(ctx context.Context, userID, sequenceID, contactID uuid.UUID) (*domain.Enrollment, error) {
	if _, err := s.contacts.GetByID(ctx, userID, contactID); err != nil {
		return nil, err
	}

	enrollment := domain.NewEnrollment(sequenceID, contactID, userID, time.Now().UTC())
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Pause suspends an enrollment.
func (s *Stepper) Pause(ctx context.Context, userID, enrollmentID uuid.UUID) error {
	enrollment, err := s.enrollments.GetByID(ctx, userID, enrollmentID)
	if err != nil {
		return err
	}
	if err := enrollment.Pause(); err != nil {
		return err
	}
	return s.enrollments.Save(ctx, enrollment)
}

// Resume reactivates a paused enrollment.
func (s *Stepper) Resume(ctx context.Context, userID, enrollmentID uuid.UUID) error {
	enrollment, err := s.enrollments.GetByID(ctx, userID, enrollmentID)
	if err != nil {
		return err
	}
	if err := enrollment.Resume(); err != nil {
		return err
	}
	return s.enrollments.Save(ctx, enrollment)
}

// ProcessDue claims a batch of due enrollments and steps each one. A failing
// enrollment is released unchanged and does not stop the batch.
func (s *Stepper) ProcessDue(ctx context.Context) (StepResult, error) {
	now := time.Now().UTC()

	claimed, err := s.enrollments.ClaimDue(ctx, now, s.config.BatchSize, s.config.Lease)
	if err != nil {
		return StepResult{}, err
	}

	result := StepResult{Claimed: len(claimed)}
	for _, enrollment := range claimed {
		completed, err := s.processEnrollment(ctx, enrollment, now)
		if err != nil {
			result.Failed++
			s.logger.Error("sequence step failed",
				"enrollment_id", enrollment.ID(),
				"step", enrollment.NextStepNumber(),
				"error", err)
			continue
		}
		if completed {
			result.Completed++
		} else {
			result.Sent++
		}
	}
	return result, nil
}

// processEnrollment dispatches the enrollment's next step. It reports
// whether the enrollment completed instead of sending.
func (s *Stepper) processEnrollment(ctx context.Context, enrollment *domain.Enrollment, now time.Time) (bool, error) {
	contact, err := s.contacts.GetByID(ctx, enrollment.UserID(), enrollment.ContactID())
	if err != nil {
		s.release(ctx, enrollment)
		return false, err
	}

	step, err := s.steps.GetStep(ctx, enrollment.SequenceID(), enrollment.NextStepNumber())
	if errors.Is(err, domain.ErrStepNotFound) {
		// Past the last step: complete without dispatching anything.
		if err := enrollment.Complete(now); err != nil {
			s.release(ctx, enrollment)
			return false, err
		}
		if err := s.enrollments.Save(ctx, enrollment); err != nil {
			return false, err
		}
		s.dispatchEvents(ctx, enrollment)
		return true, nil
	}
	if err != nil {
		s.release(ctx, enrollment)
		return false, err
	}

	email := OutboundEmail{
		To:      contact.Email,
		Subject: RenderTemplate(step.Subject, contact),
		Body:    RenderTemplate(step.Body, contact),
	}

	providerID, err := s.sender.Send(ctx, email)
	if err != nil {
		// The cursor stays put; the step is retried on a later pass.
		s.release(ctx, enrollment)
		return false, err
	}

	if err := s.messages.Append(ctx, &domain.Message{
		ID:                uuid.New(),
		EnrollmentID:      enrollment.ID(),
		StepNumber:        step.StepNumber,
		Recipient:         email.To,
		Subject:           email.Subject,
		ProviderMessageID: providerID,
		SentAt:            now,
	}); err != nil {
		s.logger.Error("failed to log sequence message",
			"enrollment_id", enrollment.ID(), "error", err)
	}

	if err := enrollment.Advance(step, now); err != nil {
		s.release(ctx, enrollment)
		return false, err
	}
	enrollment.AddDomainEvent(domain.NewStepSent(enrollment, step.StepNumber))

	if err := s.enrollments.Save(ctx, enrollment); err != nil {
		return false, err
	}
	s.dispatchEvents(ctx, enrollment)
	return false, nil
}

func (s *Stepper) release(ctx context.Context, enrollment *domain.Enrollment) {
	if err := s.enrollments.Release(ctx, enrollment.ID()); err != nil {
		s.logger.Error("failed to release enrollment claim",
			"enrollment_id", enrollment.ID(), "error", err)
	}
}

func (s *Stepper) dispatchEvents(ctx context.Context, enrollment *domain.Enrollment) {
	for _, event := range enrollment.DomainEvents() {
		if err := eventbus.PublishEvent(ctx, s.publisher, event); err != nil {
			s.logger.Error("failed to publish sequence event",
				"routing_key", event.RoutingKey(), "error", err)
		}
	}
	enrollment.ClearDomainEvents()
}

// templateTokens maps template tokens to contact field accessors. Rendering
// is a single literal pass: token values are never re-expanded and no
// escaping is applied.
var templateTokens = []struct {
	token string
	value func(*crmDomain.Contact) string
}{
	{"{{first_name}}", func(c *crmDomain.Contact) string { return c.FirstName }},
	{"{{last_name}}", func(c *crmDomain.Contact) string { return c.LastName }},
	{"{{email}}", func(c *crmDomain.Contact) string { return c.Email }},
}

// RenderTemplate substitutes contact tokens into a step template. Unknown
// tokens are left verbatim.
func RenderTemplate(template string, contact *crmDomain.Contact) string {
	pairs := make([]string, 0, len(templateTokens)*2)
	for _, t := range templateTokens {
		pairs = append(pairs, t.token, t.value(contact))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
