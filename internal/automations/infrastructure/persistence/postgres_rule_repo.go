// Package persistence provides database implementations for automation repositories.
package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/funnelworks/funnel/internal/automations/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRuleRepository implements domain.RuleRepository using PostgreSQL.
type PostgresRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(pool *pgxpool.Pool) *PostgresRuleRepository {
	return &PostgresRuleRepository{pool: pool}
}

const postgresRuleColumns = `
	id, user_id, name, trigger_type, trigger_config,
	action_type, action_config, enabled, created_at, updated_at
`

// GetByID retrieves a rule scoped to its owner.
func (r *PostgresRuleRepository) GetByID(ctx context.Context, userID, ruleID uuid.UUID) (*domain.Rule, error) {
	query := `SELECT ` + postgresRuleColumns + ` FROM automation_rules WHERE id = $1 AND user_id = $2`

	rule, err := scanPostgresRule(r.pool.QueryRow(ctx, query, ruleID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// ListEnabled retrieves the user's enabled rules in creation order.
func (r *PostgresRuleRepository) ListEnabled(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	query := `SELECT ` + postgresRuleColumns + ` FROM automation_rules WHERE user_id = $1 AND enabled ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// ListByUser retrieves all of the user's rules in creation order.
func (r *PostgresRuleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	query := `SELECT ` + postgresRuleColumns + ` FROM automation_rules WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, query, userID)
}

func (r *PostgresRuleRepository) list(ctx context.Context, query string, userID uuid.UUID) ([]*domain.Rule, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.Rule, 0)
	for rows.Next() {
		rule, err := scanPostgresRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create persists a new rule.
// ListUsersWithEnabledRules retrieves owners with at least one enabled rule.
func (r *PostgresRuleRepository) ListUsersWithEnabledRules(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT user_id FROM automation_rules WHERE enabled ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *PostgresRuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
	triggerConfig, err := json.Marshal(rule.TriggerConfig)
	if err != nil {
		return err
	}
	actionConfig, err := json.Marshal(rule.ActionConfig)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_rules (
			id, user_id, name, trigger_type, trigger_config,
			action_type, action_config, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Name,
		string(rule.TriggerType),
		triggerConfig,
		string(rule.ActionType),
		actionConfig,
		rule.Enabled,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	return err
}

// SetEnabled toggles a rule.
func (r *PostgresRuleRepository) SetEnabled(ctx context.Context, userID, ruleID uuid.UUID, enabled bool) error {
	query := `UPDATE automation_rules SET enabled = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3`

	result, err := r.pool.Exec(ctx, query, enabled, ruleID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func scanPostgresRule(row pgx.Row) (*domain.Rule, error) {
	var rule domain.Rule
	var triggerType, actionType string
	var triggerConfig, actionConfig []byte

	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&triggerType,
		&triggerConfig,
		&actionType,
		&actionConfig,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.TriggerType = domain.TriggerType(triggerType)
	rule.ActionType = domain.ActionType(actionType)
	if err := json.Unmarshal(triggerConfig, &rule.TriggerConfig); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actionConfig, &rule.ActionConfig); err != nil {
		return nil, err
	}
	return &rule, nil
}
