package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEnrollmentRepo struct {
	enrollments map[uuid.UUID]*domain.Enrollment
	due         []*domain.Enrollment
	released    []uuid.UUID
	saved       []uuid.UUID
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{enrollments: make(map[uuid.UUID]*domain.Enrollment)}
}

func (m *mockEnrollmentRepo) GetByID(ctx context.Context, userID, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	e, ok := m.enrollments[enrollmentID]
	if !ok || e.UserID() != userID {
		return nil, domain.ErrEnrollmentNotFound
	}
	return e, nil
}

func (m *mockEnrollmentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Enrollment, error) {
	var result []*domain.Enrollment
	for _, e := range m.enrollments {
		if e.UserID() == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockEnrollmentRepo) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Enrollment, error) {
	due := m.due
	m.due = nil
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockEnrollmentRepo) Save(ctx context.Context, e *domain.Enrollment) error {
	m.enrollments[e.ID()] = e
	m.saved = append(m.saved, e.ID())
	return nil
}

func (m *mockEnrollmentRepo) Release(ctx context.Context, enrollmentID uuid.UUID) error {
	m.released = append(m.released, enrollmentID)
	return nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) error {
	m.enrollments[e.ID()] = e
	return nil
}

type mockStepRepo struct {
	steps map[uuid.UUID][]*domain.Step
}

func (m *mockStepRepo) GetStep(ctx context.Context, sequenceID uuid.UUID, stepNumber int) (*domain.Step, error) {
	for _, step := range m.steps[sequenceID] {
		if step.StepNumber == stepNumber {
			return step, nil
		}
	}
	return nil, domain.ErrStepNotFound
}

func (m *mockStepRepo) ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*domain.Step, error) {
	return m.steps[sequenceID], nil
}

type mockMessageRepo struct {
	messages []*domain.Message
}

func (m *mockMessageRepo) Append(ctx context.Context, message *domain.Message) error {
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockMessageRepo) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]*domain.Message, error) {
	var result []*domain.Message
	for _, msg := range m.messages {
		if msg.EnrollmentID == enrollmentID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type stubContactRepo struct {
	contacts map[uuid.UUID]*crmDomain.Contact
}

func (m *stubContactRepo) GetByID(ctx context.Context, userID, contactID uuid.UUID) (*crmDomain.Contact, error) {
	c, ok := m.contacts[contactID]
	if !ok {
		return nil, crmDomain.ErrContactNotFound
	}
	return c, nil
}

func (m *stubContactRepo) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*crmDomain.Contact, error) {
	return nil, nil
}

func (m *stubContactRepo) ListUntouchedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*crmDomain.Contact, error) {
	return nil, nil
}

func (m *stubContactRepo) SetEngagementScore(ctx context.Context, contactID uuid.UUID, score int) error {
	return nil
}

type mockSender struct {
	sent []OutboundEmail
	err  error
}

func (m *mockSender) Send(ctx context.Context, email OutboundEmail) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, email)
	return "msg-" + uuid.NewString(), nil
}

type recordingPublisher struct {
	routingKeys []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type stepperFixture struct {
	stepper     *Stepper
	enrollments *mockEnrollmentRepo
	steps       *mockStepRepo
	messages    *mockMessageRepo
	contacts    *stubContactRepo
	sender      *mockSender
	publisher   *recordingPublisher
}

func newStepperFixture() *stepperFixture {
	enrollments := newMockEnrollmentRepo()
	steps := &mockStepRepo{steps: make(map[uuid.UUID][]*domain.Step)}
	messages := &mockMessageRepo{}
	contacts := &stubContactRepo{contacts: make(map[uuid.UUID]*crmDomain.Contact)}
	sender := &mockSender{}
	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	stepper := NewStepper(enrollments, steps, messages, contacts, sender, publisher,
		DefaultStepperConfig(), logger)

	return &stepperFixture{
		stepper:     stepper,
		enrollments: enrollments,
		steps:       steps,
		messages:    messages,
		contacts:    contacts,
		sender:      sender,
		publisher:   publisher,
	}
}

func (f *stepperFixture) addDueEnrollment(t *testing.T, sequenceID uuid.UUID) *domain.Enrollment {
	t.Helper()
	contactID := uuid.New()
	f.contacts.contacts[contactID] = &crmDomain.Contact{
		ID:        contactID,
		FirstName: "Amy",
		LastName:  "Ward",
		Email:     "amy@acme.io",
	}

	e := domain.NewEnrollment(sequenceID, contactID, uuid.New(), time.Now().UTC().Add(-time.Hour))
	f.enrollments.enrollments[e.ID()] = e
	f.enrollments.due = append(f.enrollments.due, e)
	return e
}

func TestProcessDue_SendsAndAdvances(t *testing.T) {
	f := newStepperFixture()
	sequenceID := uuid.New()
	f.steps.steps[sequenceID] = []*domain.Step{
		{StepNumber: 1, Subject: "Hi {{first_name}}", Body: "Hello {{first_name}} {{last_name}}", DelayDays: 3, DelayHours: 12},
		{StepNumber: 2, Subject: "Following up", Body: "Still there?"},
	}
	e := f.addDueEnrollment(t, sequenceID)

	before := time.Now().UTC()
	result, err := f.stepper.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepResult{Claimed: 1, Sent: 1}, result)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "amy@acme.io", f.sender.sent[0].To)
	assert.Equal(t, "Hi Amy", f.sender.sent[0].Subject)
	assert.Equal(t, "Hello Amy Ward", f.sender.sent[0].Body)

	assert.Equal(t, 1, e.CurrentStep())
	delay := e.NextSendAt().Sub(before)
	assert.InDelta(t, (84 * time.Hour).Seconds(), delay.Seconds(), 5)

	require.Len(t, f.messages.messages, 1)
	assert.Equal(t, 1, f.messages.messages[0].StepNumber)
	assert.Equal(t, []string{domain.RoutingKeyStepSent}, f.publisher.routingKeys)
}

func TestProcessDue_FailedDispatchLeavesCursor(t *testing.T) {
	f := newStepperFixture()
	sequenceID := uuid.New()
	f.steps.steps[sequenceID] = []*domain.Step{{StepNumber: 1, Subject: "Hi", Body: "Hello"}}
	e := f.addDueEnrollment(t, sequenceID)
	f.sender.err = errors.New("provider unavailable")

	result, err := f.stepper.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepResult{Claimed: 1, Failed: 1}, result)
	assert.Equal(t, 0, e.CurrentStep())
	assert.Equal(t, domain.StatusActive, e.Status())
	assert.Empty(t, f.messages.messages)
	assert.Contains(t, f.enrollments.released, e.ID())
	assert.Empty(t, f.enrollments.saved)
}

func TestProcessDue_ExhaustedSequenceCompletes(t *testing.T) {
	f := newStepperFixture()
	sequenceID := uuid.New()
	f.steps.steps[sequenceID] = []*domain.Step{{StepNumber: 1, Subject: "Hi", Body: "Hello"}}
	e := f.addDueEnrollment(t, sequenceID)
	require.NoError(t, e.Advance(f.steps.steps[sequenceID][0], time.Now().UTC().Add(-time.Hour)))

	result, err := f.stepper.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepResult{Claimed: 1, Completed: 1}, result)
	assert.Equal(t, domain.StatusCompleted, e.Status())
	assert.Empty(t, f.sender.sent, "completion never dispatches")
	assert.Equal(t, []string{domain.RoutingKeyEnrollmentCompleted}, f.publisher.routingKeys)
}

func TestProcessDue_FailureDoesNotStopBatch(t *testing.T) {
	f := newStepperFixture()
	sequenceID := uuid.New()
	f.steps.steps[sequenceID] = []*domain.Step{{StepNumber: 1, Subject: "Hi", Body: "Hello"}}

	broken := f.addDueEnrollment(t, sequenceID)
	delete(f.contacts.contacts, broken.ContactID())
	healthy := f.addDueEnrollment(t, sequenceID)

	result, err := f.stepper.ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepResult{Claimed: 2, Sent: 1, Failed: 1}, result)
	assert.Equal(t, 1, healthy.CurrentStep())
	assert.Equal(t, 0, broken.CurrentStep())
}

func TestPauseAndResume(t *testing.T) {
	f := newStepperFixture()
	e := f.addDueEnrollment(t, uuid.New())
	ctx := context.Background()

	require.NoError(t, f.stepper.Pause(ctx, e.UserID(), e.ID()))
	assert.Equal(t, domain.StatusPaused, e.Status())

	require.NoError(t, f.stepper.Resume(ctx, e.UserID(), e.ID()))
	assert.Equal(t, domain.StatusActive, e.Status())

	err := f.stepper.Pause(ctx, uuid.New(), e.ID())
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestRenderTemplate(t *testing.T) {
	contact := &crmDomain.Contact{FirstName: "Amy", LastName: "Ward", Email: "amy@acme.io"}

	assert.Equal(t, "Hi Amy, is amy@acme.io current?",
		RenderTemplate("Hi {{first_name}}, is {{email}} current?", contact))

	// Unknown tokens pass through untouched.
	assert.Equal(t, "{{company}} Amy", RenderTemplate("{{company}} {{first_name}}", contact))

	// Token values are substituted literally, never re-expanded.
	sneaky := &crmDomain.Contact{FirstName: "{{email}}", Email: "amy@acme.io"}
	assert.Equal(t, "{{email}}", RenderTemplate("{{first_name}}", sneaky))
}
