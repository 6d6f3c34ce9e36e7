package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
	"github.com/google/uuid"
)

// sqliteTimeFormat keeps a fixed-width fraction so stored timestamps compare
// correctly as strings.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRuleRepository implements domain.RuleRepository using SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

const sqliteRuleColumns = `
	id, user_id, name, trigger_type, trigger_config,
	action_type, action_config, enabled, created_at, updated_at
`

// GetByID retrieves a rule scoped to its owner.
func (r *SQLiteRuleRepository) GetByID(ctx context.Context, userID, ruleID uuid.UUID) (*domain.Rule, error) {
	query := `SELECT ` + sqliteRuleColumns + ` FROM automation_rules WHERE id = ? AND user_id = ?`

	rule, err := scanSQLiteRule(r.db.QueryRowContext(ctx, query, ruleID.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, err
	}
	return rule, nil
}

// ListEnabled retrieves the user's enabled rules in creation order.
func (r *SQLiteRuleRepository) ListEnabled(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	query := `SELECT ` + sqliteRuleColumns + ` FROM automation_rules WHERE user_id = ? AND enabled = 1 ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// ListByUser retrieves all of the user's rules in creation order.
func (r *SQLiteRuleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Rule, error) {
	query := `SELECT ` + sqliteRuleColumns + ` FROM automation_rules WHERE user_id = ? ORDER BY created_at`
	return r.list(ctx, query, userID)
}

func (r *SQLiteRuleRepository) list(ctx context.Context, query string, userID uuid.UUID) ([]*domain.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.Rule, 0)
	for rows.Next() {
		rule, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListUsersWithEnabledRules retrieves owners with at least one enabled rule.
func (r *SQLiteRuleRepository) ListUsersWithEnabledRules(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT DISTINCT user_id FROM automation_rules WHERE enabled = 1 ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]uuid.UUID, 0)
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Create persists a new rule.
func (r *SQLiteRuleRepository) Create(ctx context.Context, rule *domain.Rule) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID.String(),
		rule.UserID.String(),
		rule.Name,
		string(rule.TriggerType),
		string(triggerConfig),
		string(rule.ActionType),
		string(actionConfig),
		boolToInt(rule.Enabled),
		rule.CreatedAt.Format(sqliteTimeFormat),
		rule.UpdatedAt.Format(sqliteTimeFormat),
	)
	return err
}

// SetEnabled toggles a rule.
func (r *SQLiteRuleRepository) SetEnabled(ctx context.Context, userID, ruleID uuid.UUID, enabled bool) error {
	query := `UPDATE automation_rules SET enabled = ?, updated_at = ? WHERE id = ? AND user_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(enabled),
		time.Now().UTC().Format(sqliteTimeFormat),
		ruleID.String(),
		userID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// sqlRow abstracts sql.Row and sql.Rows for shared scanning.
type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteRule(row sqlRow) (*domain.Rule, error) {
	var rule domain.Rule
	var idStr, userIDStr, triggerType, actionType string
	var triggerConfigStr, actionConfigStr string
	var enabled int
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&idStr,
		&userIDStr,
		&rule.Name,
		&triggerType,
		&triggerConfigStr,
		&actionType,
		&actionConfigStr,
		&enabled,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	rule.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	rule.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, err
	}

	rule.TriggerType = domain.TriggerType(triggerType)
	rule.ActionType = domain.ActionType(actionType)
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(triggerConfigStr), &rule.TriggerConfig); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionConfigStr), &rule.ActionConfig); err != nil {
		return nil, err
	}

	rule.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr)
	if err != nil {
		return nil, err
	}
	rule.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAtStr)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
