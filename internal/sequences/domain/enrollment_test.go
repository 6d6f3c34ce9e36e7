package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnrollment(t *testing.T) {
	now := time.Now().UTC()
	e := NewEnrollment(uuid.New(), uuid.New(), uuid.New(), now)

	assert.Equal(t, StatusActive, e.Status())
	assert.Equal(t, 0, e.CurrentStep())
	assert.Equal(t, 1, e.NextStepNumber())
	assert.True(t, e.IsDue(now))
	assert.Nil(t, e.CompletedAt())
}

func TestEnrollment_AdvanceSchedulesAdditiveDelay(t *testing.T) {
	now := time.Now().UTC()
	e := NewEnrollment(uuid.New(), uuid.New(), uuid.New(), now)

	step := &Step{StepNumber: 1, DelayDays: 2, DelayHours: 3}
	require.NoError(t, e.Advance(step, now))

	assert.Equal(t, 1, e.CurrentStep())
	assert.Equal(t, now.Add(51*time.Hour), e.NextSendAt())
	assert.False(t, e.IsDue(now))
	assert.True(t, e.IsDue(now.Add(51*time.Hour)))
}

func TestEnrollment_AdvanceRejectsWrongStep(t *testing.T) {
	now := time.Now().UTC()
	e := NewEnrollment(uuid.New(), uuid.New(), uuid.New(), now)

	err := e.Advance(&Step{StepNumber: 3}, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, e.CurrentStep())
}

func TestEnrollment_Complete(t *testing.T) {
	now := time.Now().UTC()
	e := NewEnrollment(uuid.New(), uuid.New(), uuid.New(), now)
	require.NoError(t, e.Advance(&Step{StepNumber: 1}, now))

	require.NoError(t, e.Complete(now))
	assert.Equal(t, StatusCompleted, e.Status())
	require.NotNil(t, e.CompletedAt())
	assert.False(t, e.IsDue(now.Add(time.Hour)))

	events := e.DomainEvents()
	require.Len(t, events, 1)
	completed, ok := events[0].(*EnrollmentCompleted)
	require.True(t, ok)
	assert.Equal(t, 1, completed.StepsSent)

	// Completion is terminal.
	assert.ErrorIs(t, e.Complete(now), ErrInvalidTransition)
	assert.ErrorIs(t, e.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, e.Resume(), ErrInvalidTransition)
}

func TestEnrollment_PauseResume(t *testing.T) {
	now := time.Now().UTC()
	e := NewEnrollment(uuid.New(), uuid.New(), uuid.New(), now)

	require.NoError(t, e.Pause())
	assert.Equal(t, StatusPaused, e.Status())
	assert.False(t, e.IsDue(now), "paused enrollments are never due")
	assert.ErrorIs(t, e.Advance(&Step{StepNumber: 1}, now), ErrInvalidTransition)
	assert.ErrorIs(t, e.Pause(), ErrInvalidTransition)

	require.NoError(t, e.Resume())
	assert.Equal(t, StatusActive, e.Status())
	assert.True(t, e.IsDue(now), "an overdue enrollment is due again after resume")
	assert.ErrorIs(t, e.Resume(), ErrInvalidTransition)
}

func TestStep_Delay(t *testing.T) {
	step := &Step{DelayDays: 1, DelayHours: 6}
	assert.Equal(t, 30*time.Hour, step.Delay())

	assert.Equal(t, time.Duration(0), (&Step{}).Delay())
}
