// Package services contains the automation rule evaluation engine.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/funnelworks/funnel/internal/notifications"
	"github.com/google/uuid"
)

// Trigger is one matched occurrence of a rule's trigger condition.
type Trigger struct {
	ContactID *uuid.UUID
	DealID    *uuid.UUID
	Data      map[string]any
}

// WebhookPoster delivers a JSON payload to an external URL.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload map[string]any) error
}

// ActionExecutor performs the single action attached to a rule.
type ActionExecutor struct {
	tasks    crmDomain.TaskRepository
	deals    crmDomain.DealRepository
	notifier notifications.Notifier
	webhooks WebhookPoster
}

// NewActionExecutor creates a new action executor.
func NewActionExecutor(
	tasks crmDomain.TaskRepository,
	deals crmDomain.DealRepository,
	notifier notifications.Notifier,
	webhooks WebhookPoster,
) *ActionExecutor {
	return &ActionExecutor{
		tasks:    tasks,
		deals:    deals,
		notifier: notifier,
		webhooks: webhooks,
	}
}

// Execute runs the rule's action against a matched trigger and returns a
// short description of what was performed.
func (e *ActionExecutor) Execute(ctx context.Context, rule *domain.Rule, trigger Trigger, now time.Time) (string, error) {
	switch rule.ActionType {
	case domain.ActionCreateTask:
		return e.createTask(ctx, rule, trigger, now)
	case domain.ActionSendNotification:
		return e.sendNotification(ctx, rule, trigger)
	case domain.ActionUpdateDeal:
		return e.updateDeal(ctx, rule, trigger)
	case domain.ActionPostWebhook:
		return e.postWebhook(ctx, rule, trigger)
	default:
		return "", fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidRule, rule.ActionType)
	}
}

func (e *ActionExecutor) createTask(ctx context.Context, rule *domain.Rule, trigger Trigger, now time.Time) (string, error) {
	title := domain.ConfigString(rule.ActionConfig, "title", "Follow up")
	dueDays := domain.ConfigInt(rule.ActionConfig, "due_in_days", 1)
	dueAt := now.AddDate(0, 0, dueDays)

	task := &crmDomain.Task{
		ID:        uuid.New(),
		UserID:    rule.UserID,
		ContactID: trigger.ContactID,
		Title:     title,
		Status:    crmDomain.TaskStatusPending,
		DueAt:     &dueAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return "", err
	}
	return fmt.Sprintf("created task %q due %s", title, dueAt.Format("2006-01-02")), nil
}

func (e *ActionExecutor) sendNotification(ctx context.Context, rule *domain.Rule, trigger Trigger) (string, error) {
	title := domain.ConfigString(rule.ActionConfig, "title", rule.Name)
	message := domain.ConfigString(rule.ActionConfig, "message", "")
	link := ""
	if trigger.ContactID != nil {
		link = "/contacts/" + trigger.ContactID.String()
	}

	if err := e.notifier.Notify(ctx, rule.UserID, title, message, link); err != nil {
		return "", err
	}
	return fmt.Sprintf("sent notification %q", title), nil
}

func (e *ActionExecutor) updateDeal(ctx context.Context, rule *domain.Rule, trigger Trigger) (string, error) {
	if trigger.DealID == nil {
		return "", fmt.Errorf("%w: update_deal requires a deal trigger", domain.ErrInvalidRule)
	}

	fields := make(map[string]any)
	for _, col := range []string{"title", "stage", "value_cents"} {
		if v, ok := rule.ActionConfig[col]; ok {
			fields[col] = v
		}
	}
	if err := e.deals.UpdateFields(ctx, rule.UserID, *trigger.DealID, fields); err != nil {
		return "", err
	}
	return fmt.Sprintf("updated deal %s", trigger.DealID), nil
}

func (e *ActionExecutor) postWebhook(ctx context.Context, rule *domain.Rule, trigger Trigger) (string, error) {
	url := domain.ConfigString(rule.ActionConfig, "url", "")
	if url == "" {
		return "", fmt.Errorf("%w: post_webhook requires a url", domain.ErrInvalidRule)
	}

	payload := map[string]any{
		"rule_id":      rule.ID,
		"rule_name":    rule.Name,
		"trigger_type": rule.TriggerType,
		"trigger_data": trigger.Data,
	}
	if err := e.webhooks.Post(ctx, url, payload); err != nil {
		return "", err
	}
	return "posted webhook to " + url, nil
}
