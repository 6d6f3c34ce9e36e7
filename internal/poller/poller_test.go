package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	automations "github.com/funnelworks/funnel/internal/automations/application/services"
	"github.com/funnelworks/funnel/internal/automations/domain"
	sequences "github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStepper struct {
	mu     sync.Mutex
	result sequences.StepResult
	err    error
	calls  int
}

func (f *fakeStepper) ProcessDue(ctx context.Context) (sequences.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeStepper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeEvaluator struct {
	mu     sync.Mutex
	result automations.EvaluationResult
	err    error
	users  []uuid.UUID
}

func (f *fakeEvaluator) EvaluateAll(ctx context.Context, userID uuid.UUID) (automations.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	return f.result, f.err
}

type fakeUserSource struct {
	users []uuid.UUID
}

func (f *fakeUserSource) GetByID(ctx context.Context, userID, ruleID uuid.UUID) (*domain.Rule, error) {
	return nil, domain.ErrRuleNotFound
}

func (f *fakeUserSource) ListEnabled(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	return nil, nil
}

func (f *fakeUserSource) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	return nil, nil
}

func (f *fakeUserSource) ListUsersWithEnabledRules(ctx context.Context) ([]uuid.UUID, error) {
	return f.users, nil
}

func (f *fakeUserSource) Create(ctx context.Context, rule *domain.Rule) error { return nil }

func (f *fakeUserSource) SetEnabled(ctx context.Context, userID, ruleID uuid.UUID, enabled bool) error {
	return nil
}

func TestRunOnce_AggregatesStats(t *testing.T) {
	stepper := &fakeStepper{result: sequences.StepResult{Claimed: 4, Sent: 3, Completed: 1}}
	evaluator := &fakeEvaluator{result: automations.EvaluationResult{RulesEvaluated: 2, Fired: 2}}
	users := &fakeUserSource{users: []uuid.UUID{uuid.New(), uuid.New()}}

	p := New(stepper, evaluator, users, DefaultConfig(), nil)

	require.NoError(t, p.RunOnce(context.Background()))

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.Passes)
	assert.Equal(t, uint64(3), stats.StepsSent)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(4), stats.RulesFired)
	assert.Len(t, evaluator.users, 2)
	assert.NotNil(t, stats.LastProcessedAt)
}

func TestRunOnce_StepperErrorDoesNotSkipRules(t *testing.T) {
	stepper := &fakeStepper{err: errors.New("database locked")}
	evaluator := &fakeEvaluator{result: automations.EvaluationResult{Fired: 1}}
	users := &fakeUserSource{users: []uuid.UUID{uuid.New()}}

	p := New(stepper, evaluator, users, DefaultConfig(), nil)

	err := p.RunOnce(context.Background())
	require.Error(t, err)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.RulesFired)
	assert.Equal(t, "database locked", stats.LastError)
	assert.NotNil(t, stats.LastErrorAt)
}

func TestRunOnce_DisabledStagesAreSkipped(t *testing.T) {
	stepper := &fakeStepper{result: sequences.StepResult{Sent: 5}}
	evaluator := &fakeEvaluator{}
	users := &fakeUserSource{users: []uuid.UUID{uuid.New()}}

	config := DefaultConfig()
	config.SequencesEnabled = false
	config.AutomationsEnabled = false
	p := New(stepper, evaluator, users, config, nil)

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, 0, stepper.callCount())
	assert.Empty(t, evaluator.users)
	assert.Equal(t, uint64(1), p.GetStats().Passes)
}

func TestStartAndStop(t *testing.T) {
	stepper := &fakeStepper{}
	evaluator := &fakeEvaluator{}
	users := &fakeUserSource{}

	config := DefaultConfig()
	config.PollInterval = 5 * time.Millisecond
	p := New(stepper, evaluator, users, config, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool {
		return stepper.callCount() >= 2
	}, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())

	calls := stepper.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, stepper.callCount())
}
