// Package domain contains the automation rule domain model.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRuleNotFound = errors.New("automation rule not found")
	ErrInvalidRule  = errors.New("invalid automation rule")
)

// TriggerType identifies the condition a rule watches for.
type TriggerType string

const (
	TriggerDealStageChanged TriggerType = "deal_stage_changed"
	TriggerTaskOverdue      TriggerType = "task_overdue"
	TriggerContactInactive  TriggerType = "contact_inactive"
)

// ActionType identifies the single action a rule performs when it fires.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionSendNotification ActionType = "send_notification"
	ActionUpdateDeal       ActionType = "update_deal"
	ActionPostWebhook      ActionType = "post_webhook"
)

// Rule pairs one trigger with one action. Rules are evaluated independently
// on every poll pass; firing carries no memory of previous passes.
type Rule struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Name          string
	TriggerType   TriggerType
	TriggerConfig map[string]any
	ActionType    ActionType
	ActionConfig  map[string]any
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the rule references known trigger and action types.
func (r *Rule) Validate() error {
	switch r.TriggerType {
	case TriggerDealStageChanged, TriggerTaskOverdue, TriggerContactInactive:
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidRule, r.TriggerType)
	}
	switch r.ActionType {
	case ActionCreateTask, ActionSendNotification, ActionUpdateDeal, ActionPostWebhook:
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidRule, r.ActionType)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	}
	return nil
}

// ConfigString reads a string key from a config map, with a fallback.
func ConfigString(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// ConfigInt reads an integer key from a config map, with a fallback. JSON
// round-tripping stores numbers as float64.
func ConfigInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
