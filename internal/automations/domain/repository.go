package domain

import (
	"context"

	"github.com/google/uuid"
)

// RuleRepository provides access to automation rules.
type RuleRepository interface {
	// GetByID returns the rule, scoped to its owner.
	GetByID(ctx context.Context, userID, ruleID uuid.UUID) (*Rule, error)

	// ListEnabled returns the user's enabled rules in creation order.
	// Evaluation order follows this order.
	ListEnabled(ctx context.Context, userID uuid.UUID) ([]*Rule, error)

	// ListByUser returns all of the user's rules in creation order.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Rule, error)

	// ListUsersWithEnabledRules returns the owners that have at least one
	// enabled rule. The worker evaluates each of them per pass.
	ListUsersWithEnabledRules(ctx context.Context) ([]uuid.UUID, error)

	// Create persists a new rule.
	Create(ctx context.Context, rule *Rule) error

	// SetEnabled toggles a rule.
	SetEnabled(ctx context.Context, userID, ruleID uuid.UUID, enabled bool) error
}

// ExecutionRepository is the append-only rule execution log.
type ExecutionRepository interface {
	// Append records an execution.
	Append(ctx context.Context, execution *Execution) error

	// ListByRule returns a rule's executions, newest first.
	ListByRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]*Execution, error)
}
