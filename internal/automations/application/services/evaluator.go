package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
)

// EvaluatorConfig tunes trigger matching.
type EvaluatorConfig struct {
	// DealStageWindow is how far back a stage change still counts as
	// recent. It should be comfortably larger than the poll interval so
	// changes are not missed between passes.
	DealStageWindow time.Duration

	// DefaultInactiveDays applies when a contact_inactive rule does not
	// configure its own threshold.
	DefaultInactiveDays int
}

// DefaultEvaluatorConfig returns production defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		DealStageWindow:     15 * time.Minute,
		DefaultInactiveDays: 30,
	}
}

// EvaluationResult summarizes one evaluation pass.
type EvaluationResult struct {
	RulesEvaluated int
	Fired          int
	Failed         int
}

// Evaluator runs every enabled rule against the current CRM state. Rules are
// independent: one rule failing, or even panicking, never stops the others.
// There is no firing dedup; a condition that stays true fires on every pass.
type Evaluator struct {
	rules      domain.RuleRepository
	executions domain.ExecutionRepository
	contacts   crmDomain.ContactRepository
	deals      crmDomain.DealRepository
	tasks      crmDomain.TaskRepository
	executor   *ActionExecutor
	config     EvaluatorConfig
	logger     *slog.Logger
}

// NewEvaluator creates a new rule evaluator.
func NewEvaluator(
	rules domain.RuleRepository,
	executions domain.ExecutionRepository,
	contacts crmDomain.ContactRepository,
	deals crmDomain.DealRepository,
	tasks crmDomain.TaskRepository,
	executor *ActionExecutor,
	config EvaluatorConfig,
	logger *slog.Logger,
) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		rules:      rules,
		executions: executions,
		contacts:   contacts,
		deals:      deals,
		tasks:      tasks,
		executor:   executor,
		config:     config,
		logger:     logger,
	}
}

// EvaluateAll evaluates the user's enabled rules in creation order.
func (e *Evaluator) EvaluateAll(ctx context.Context, userID uuid.UUID) (EvaluationResult, error) {
	rules, err := e.rules.ListEnabled(ctx, userID)
	if err != nil {
		return EvaluationResult{}, err
	}

	now := time.Now().UTC()
	result := EvaluationResult{RulesEvaluated: len(rules)}
	for _, rule := range rules {
		fired, failed := e.evaluateRule(ctx, rule, now)
		result.Fired += fired
		result.Failed += failed
	}
	return result, nil
}

// evaluateRule matches and fires one rule, absorbing panics so a broken
// rule cannot take down the pass.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *domain.Rule, now time.Time) (fired, failed int) {
	defer func() {
		if r := recover(); r != nil {
			failed++
			e.logger.Error("rule evaluation panicked",
				"rule_id", rule.ID, "rule", rule.Name, "panic", r)
		}
	}()

	triggers, err := e.match(ctx, rule, now)
	if err != nil {
		e.logger.Error("trigger matching failed",
			"rule_id", rule.ID, "rule", rule.Name, "error", err)
		return 0, 1
	}

	if len(triggers) == 0 {
		return 0, 0
	}

	// One action per rule per pass. The first match in the query's natural
	// order wins; a condition that still holds fires again on the next pass.
	trigger := triggers[0]
	performed, err := e.executor.Execute(ctx, rule, trigger, now)
	var execution *domain.Execution
	if err != nil {
		failed++
		execution = domain.NewFailedExecution(rule, trigger.Data, err.Error(), now)
		e.logger.Error("rule action failed",
			"rule_id", rule.ID, "rule", rule.Name, "error", err)
	} else {
		fired++
		execution = domain.NewExecution(rule, trigger.Data, []string{performed}, now)
	}

	if err := e.executions.Append(ctx, execution); err != nil {
		e.logger.Error("failed to log rule execution",
			"rule_id", rule.ID, "error", err)
	}
	return fired, failed
}

// match finds every current occurrence of the rule's trigger condition.
func (e *Evaluator) match(ctx context.Context, rule *domain.Rule, now time.Time) ([]Trigger, error) {
	switch rule.TriggerType {
	case domain.TriggerDealStageChanged:
		return e.matchDealStageChanged(ctx, rule, now)
	case domain.TriggerTaskOverdue:
		return e.matchTaskOverdue(ctx, rule, now)
	case domain.TriggerContactInactive:
		return e.matchContactInactive(ctx, rule, now)
	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", domain.ErrInvalidRule, rule.TriggerType)
	}
}

func (e *Evaluator) matchDealStageChanged(ctx context.Context, rule *domain.Rule, now time.Time) ([]Trigger, error) {
	stage := domain.ConfigString(rule.TriggerConfig, "stage", "")
	if stage == "" {
		return nil, fmt.Errorf("%w: deal_stage_changed requires a stage", domain.ErrInvalidRule)
	}

	deals, err := e.deals.ListStageChangedSince(ctx, rule.UserID, stage, now.Add(-e.config.DealStageWindow))
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, len(deals))
	for _, deal := range deals {
		dealID := deal.ID
		triggers = append(triggers, Trigger{
			ContactID: deal.ContactID,
			DealID:    &dealID,
			Data: map[string]any{
				"deal_id":    deal.ID.String(),
				"deal_title": deal.Title,
				"stage":      deal.Stage,
			},
		})
	}
	return triggers, nil
}

func (e *Evaluator) matchTaskOverdue(ctx context.Context, rule *domain.Rule, now time.Time) ([]Trigger, error) {
	tasks, err := e.tasks.ListOverdue(ctx, rule.UserID, now)
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, len(tasks))
	for _, task := range tasks {
		triggers = append(triggers, Trigger{
			ContactID: task.ContactID,
			Data: map[string]any{
				"task_id":    task.ID.String(),
				"task_title": task.Title,
				"due_at":     task.DueAt,
			},
		})
	}
	return triggers, nil
}

func (e *Evaluator) matchContactInactive(ctx context.Context, rule *domain.Rule, now time.Time) ([]Trigger, error) {
	days := domain.ConfigInt(rule.TriggerConfig, "days", e.config.DefaultInactiveDays)
	cutoff := now.AddDate(0, 0, -days)

	contacts, err := e.contacts.ListUntouchedSince(ctx, rule.UserID, cutoff)
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, len(contacts))
	for _, contact := range contacts {
		contactID := contact.ID
		triggers = append(triggers, Trigger{
			ContactID: &contactID,
			Data: map[string]any{
				"contact_id":    contact.ID.String(),
				"contact_email": contact.Email,
				"inactive_days": days,
			},
		})
	}
	return triggers, nil
}
