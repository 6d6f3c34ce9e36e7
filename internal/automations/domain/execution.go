package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the outcome of one rule firing.
type ExecutionStatus string

const (
	ExecutionSucceeded ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Execution is one entry in the append-only rule execution log.
type Execution struct {
	ID               uuid.UUID
	RuleID           uuid.UUID
	UserID           uuid.UUID
	Status           ExecutionStatus
	TriggerData      map[string]any
	ActionsPerformed []string
	ErrorMessage     string
	ExecutedAt       time.Time
}

// NewExecution records a successful firing.
func NewExecution(rule *Rule, triggerData map[string]any, actionsPerformed []string, now time.Time) *Execution {
	return &Execution{
		ID:               uuid.New(),
		RuleID:           rule.ID,
		UserID:           rule.UserID,
		Status:           ExecutionSucceeded,
		TriggerData:      triggerData,
		ActionsPerformed: actionsPerformed,
		ExecutedAt:       now,
	}
}

// NewFailedExecution records a firing whose action failed.
func NewFailedExecution(rule *Rule, triggerData map[string]any, errMsg string, now time.Time) *Execution {
	return &Execution{
		ID:           uuid.New(),
		RuleID:       rule.ID,
		UserID:       rule.UserID,
		Status:       ExecutionFailed,
		TriggerData:  triggerData,
		ErrorMessage: errMsg,
		ExecutedAt:   now,
	}
}
