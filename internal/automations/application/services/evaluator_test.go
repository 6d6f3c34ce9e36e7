package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRuleRepo struct {
	rules []*domain.Rule
}

func (m *mockRuleRepo) GetByID(ctx context.Context, userID, ruleID uuid.UUID) (*domain.Rule, error) {
	for _, r := range m.rules {
		if r.ID == ruleID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, domain.ErrRuleNotFound
}

func (m *mockRuleRepo) ListEnabled(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	var result []*domain.Rule
	for _, r := range m.rules {
		if r.UserID == userID && r.Enabled {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockRuleRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	return m.rules, nil
}

func (m *mockRuleRepo) ListUsersWithEnabledRules(ctx context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var users []uuid.UUID
	for _, r := range m.rules {
		if r.Enabled && !seen[r.UserID] {
			seen[r.UserID] = true
			users = append(users, r.UserID)
		}
	}
	return users, nil
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *domain.Rule) error {
	m.rules = append(m.rules, rule)
	return nil
}

func (m *mockRuleRepo) SetEnabled(ctx context.Context, userID, ruleID uuid.UUID, enabled bool) error {
	for _, r := range m.rules {
		if r.ID == ruleID {
			r.Enabled = enabled
			return nil
		}
	}
	return domain.ErrRuleNotFound
}

type mockExecutionRepo struct {
	executions []*domain.Execution
}

func (m *mockExecutionRepo) Append(ctx context.Context, execution *domain.Execution) error {
	m.executions = append(m.executions, execution)
	return nil
}

func (m *mockExecutionRepo) ListByRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]*domain.Execution, error) {
	var result []*domain.Execution
	for _, e := range m.executions {
		if e.RuleID == ruleID {
			result = append(result, e)
		}
	}
	return result, nil
}

type stubCRM struct {
	contacts     []*crmDomain.Contact
	deals        []*crmDomain.Deal
	overdueTasks []*crmDomain.Task

	createdTasks  []*crmDomain.Task
	updatedDeals  []uuid.UUID
	taskCreateErr error
}

func (s *stubCRM) GetByID(ctx context.Context, userID, contactID uuid.UUID) (*crmDomain.Contact, error) {
	return nil, crmDomain.ErrContactNotFound
}

func (s *stubCRM) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*crmDomain.Contact, error) {
	return s.contacts, nil
}

func (s *stubCRM) ListUntouchedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*crmDomain.Contact, error) {
	return s.contacts, nil
}

func (s *stubCRM) SetEngagementScore(ctx context.Context, contactID uuid.UUID, score int) error {
	return nil
}

func (s *stubCRM) ListStageChangedSince(ctx context.Context, userID uuid.UUID, stage string, cutoff time.Time) ([]*crmDomain.Deal, error) {
	var result []*crmDomain.Deal
	for _, d := range s.deals {
		if d.Stage == stage && d.StageChangedAt != nil && d.StageChangedAt.After(cutoff) {
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *stubCRM) UpdateFields(ctx context.Context, userID, dealID uuid.UUID, fields map[string]any) error {
	s.updatedDeals = append(s.updatedDeals, dealID)
	return nil
}

func (s *stubCRM) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*crmDomain.Task, error) {
	return nil, nil
}

func (s *stubCRM) ListOverdue(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*crmDomain.Task, error) {
	return s.overdueTasks, nil
}

func (s *stubCRM) Create(ctx context.Context, task *crmDomain.Task) error {
	if s.taskCreateErr != nil {
		return s.taskCreateErr
	}
	s.createdTasks = append(s.createdTasks, task)
	return nil
}

type stubNotifier struct {
	notified []string
}

func (n *stubNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message, link string) error {
	n.notified = append(n.notified, title)
	return nil
}

type stubWebhooks struct {
	posted []string
	err    error
}

func (w *stubWebhooks) Post(ctx context.Context, url string, payload map[string]any) error {
	if w.err != nil {
		return w.err
	}
	w.posted = append(w.posted, url)
	return nil
}

type evaluatorFixture struct {
	evaluator  *Evaluator
	rules      *mockRuleRepo
	executions *mockExecutionRepo
	crm        *stubCRM
	notifier   *stubNotifier
	webhooks   *stubWebhooks
	userID     uuid.UUID
}

func newEvaluatorFixture() *evaluatorFixture {
	rules := &mockRuleRepo{}
	executions := &mockExecutionRepo{}
	crm := &stubCRM{}
	notifier := &stubNotifier{}
	webhooks := &stubWebhooks{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	executor := NewActionExecutor(crm, crm, notifier, webhooks)
	evaluator := NewEvaluator(rules, executions, crm, crm, crm, executor,
		DefaultEvaluatorConfig(), logger)

	return &evaluatorFixture{
		evaluator:  evaluator,
		rules:      rules,
		executions: executions,
		crm:        crm,
		notifier:   notifier,
		webhooks:   webhooks,
		userID:     uuid.New(),
	}
}

func (f *evaluatorFixture) addRule(trigger domain.TriggerType, triggerConfig map[string]any, action domain.ActionType, actionConfig map[string]any) *domain.Rule {
	rule := &domain.Rule{
		ID:            uuid.New(),
		UserID:        f.userID,
		Name:          string(trigger) + "/" + string(action),
		TriggerType:   trigger,
		TriggerConfig: triggerConfig,
		ActionType:    action,
		ActionConfig:  actionConfig,
		Enabled:       true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	f.rules.rules = append(f.rules.rules, rule)
	return rule
}

func TestEvaluateAll_DealStageChangedCreatesTask(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerDealStageChanged, map[string]any{"stage": "negotiation"},
		domain.ActionCreateTask, map[string]any{"title": "Prep contract", "due_in_days": 2})

	changed := time.Now().UTC().Add(-5 * time.Minute)
	contactID := uuid.New()
	f.crm.deals = []*crmDomain.Deal{
		{ID: uuid.New(), UserID: f.userID, ContactID: &contactID, Title: "Acme", Stage: "negotiation", StageChangedAt: &changed},
		{ID: uuid.New(), UserID: f.userID, Title: "Old", Stage: "lead"},
	}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, EvaluationResult{RulesEvaluated: 1, Fired: 1}, result)
	require.Len(t, f.crm.createdTasks, 1)
	assert.Equal(t, "Prep contract", f.crm.createdTasks[0].Title)
	assert.Equal(t, &contactID, f.crm.createdTasks[0].ContactID)

	require.Len(t, f.executions.executions, 1)
	assert.Equal(t, domain.ExecutionSucceeded, f.executions.executions[0].Status)
}

func TestEvaluateAll_StaleStageChangeDoesNotMatch(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerDealStageChanged, map[string]any{"stage": "negotiation"},
		domain.ActionSendNotification, nil)

	changed := time.Now().UTC().Add(-time.Hour)
	f.crm.deals = []*crmDomain.Deal{
		{ID: uuid.New(), UserID: f.userID, Stage: "negotiation", StageChangedAt: &changed},
	}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fired)
	assert.Empty(t, f.notifier.notified)
}

func TestEvaluateAll_TaskOverdueNotifiesOnFirstMatch(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerTaskOverdue, nil,
		domain.ActionSendNotification, map[string]any{"title": "Overdue task"})

	oldest := time.Now().UTC().Add(-48 * time.Hour)
	newer := time.Now().UTC().Add(-24 * time.Hour)
	f.crm.overdueTasks = []*crmDomain.Task{
		{ID: uuid.New(), UserID: f.userID, Title: "Call Amy", DueAt: &oldest},
		{ID: uuid.New(), UserID: f.userID, Title: "Send deck", DueAt: &newer},
	}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)

	// One action per rule per pass, on the first task in due-date order.
	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, []string{"Overdue task"}, f.notifier.notified)
	require.Len(t, f.executions.executions, 1)
	assert.Equal(t, "Call Amy", f.executions.executions[0].TriggerData["task_title"])
}

func TestEvaluateAll_MultipleMatchesFireOnce(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerTaskOverdue, nil,
		domain.ActionSendNotification, map[string]any{"title": "Overdue"})

	due := time.Now().UTC().Add(-24 * time.Hour)
	for _, title := range []string{"first", "second", "third"} {
		f.crm.overdueTasks = append(f.crm.overdueTasks,
			&crmDomain.Task{ID: uuid.New(), UserID: f.userID, Title: title, DueAt: &due})
	}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, EvaluationResult{RulesEvaluated: 1, Fired: 1}, result)
	assert.Equal(t, []string{"Overdue"}, f.notifier.notified)
	require.Len(t, f.executions.executions, 1)
	assert.Equal(t, "first", f.executions.executions[0].TriggerData["task_title"])
}

func TestEvaluateAll_ContactInactivePostsWebhook(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerContactInactive, map[string]any{"days": 14},
		domain.ActionPostWebhook, map[string]any{"url": "https://hooks.acme.io/crm"})

	f.crm.contacts = []*crmDomain.Contact{
		{ID: uuid.New(), UserID: f.userID, Email: "amy@acme.io"},
	}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, []string{"https://hooks.acme.io/crm"}, f.webhooks.posted)
}

func TestEvaluateAll_FailingRuleDoesNotStopOthers(t *testing.T) {
	f := newEvaluatorFixture()

	// First rule's action fails; second rule still runs.
	f.addRule(domain.TriggerContactInactive, nil,
		domain.ActionCreateTask, nil)
	f.addRule(domain.TriggerContactInactive, nil,
		domain.ActionSendNotification, map[string]any{"title": "Dormant contact"})

	f.crm.contacts = []*crmDomain.Contact{{ID: uuid.New(), UserID: f.userID}}
	f.crm.taskCreateErr = errors.New("insert failed")

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, EvaluationResult{RulesEvaluated: 2, Fired: 1, Failed: 1}, result)
	assert.Equal(t, []string{"Dormant contact"}, f.notifier.notified)

	require.Len(t, f.executions.executions, 2)
	assert.Equal(t, domain.ExecutionFailed, f.executions.executions[0].Status)
	assert.Contains(t, f.executions.executions[0].ErrorMessage, "insert failed")
	assert.Equal(t, domain.ExecutionSucceeded, f.executions.executions[1].Status)
}

func TestEvaluateAll_NoDedupAcrossPasses(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerContactInactive, nil,
		domain.ActionSendNotification, map[string]any{"title": "Dormant"})
	f.crm.contacts = []*crmDomain.Contact{{ID: uuid.New(), UserID: f.userID}}

	for i := 0; i < 3; i++ {
		_, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
		require.NoError(t, err)
	}

	// The condition stayed true, so the rule fired every pass.
	assert.Len(t, f.notifier.notified, 3)
	assert.Len(t, f.executions.executions, 3)
}

func TestEvaluateAll_SkipsDisabledRules(t *testing.T) {
	f := newEvaluatorFixture()
	rule := f.addRule(domain.TriggerContactInactive, nil,
		domain.ActionSendNotification, nil)
	rule.Enabled = false
	f.crm.contacts = []*crmDomain.Contact{{ID: uuid.New(), UserID: f.userID}}

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{}, result)
}

func TestEvaluateAll_MissingStageConfigFails(t *testing.T) {
	f := newEvaluatorFixture()
	f.addRule(domain.TriggerDealStageChanged, nil, domain.ActionSendNotification, nil)

	result, err := f.evaluator.EvaluateAll(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{RulesEvaluated: 1, Failed: 1}, result)
}

func TestRule_Validate(t *testing.T) {
	valid := &domain.Rule{
		Name:        "r",
		TriggerType: domain.TriggerTaskOverdue,
		ActionType:  domain.ActionCreateTask,
	}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, (&domain.Rule{Name: "r", TriggerType: "bogus", ActionType: domain.ActionCreateTask}).Validate(), domain.ErrInvalidRule)
	assert.ErrorIs(t, (&domain.Rule{Name: "r", TriggerType: domain.TriggerTaskOverdue, ActionType: "bogus"}).Validate(), domain.ErrInvalidRule)
	assert.ErrorIs(t, (&domain.Rule{TriggerType: domain.TriggerTaskOverdue, ActionType: domain.ActionCreateTask}).Validate(), domain.ErrInvalidRule)
}
