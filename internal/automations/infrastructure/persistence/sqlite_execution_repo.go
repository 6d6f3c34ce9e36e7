package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/funnelworks/funnel/internal/automations/domain"
	"github.com/google/uuid"
)

// SQLiteExecutionRepository implements domain.ExecutionRepository using SQLite.
type SQLiteExecutionRepository struct {
	db *sql.DB
}

// NewSQLiteExecutionRepository creates a new SQLite execution repository.
func NewSQLiteExecutionRepository(db *sql.DB) *SQLiteExecutionRepository {
	return &SQLiteExecutionRepository{db: db}
}

// Append records one rule firing. The log is append-only.
func (r *SQLiteExecutionRepository) Append(ctx context.Context, execution *domain.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return err
	}
	actions := execution.ActionsPerformed
	if actions == nil {
		actions = []string{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_executions (
			id, rule_id, user_id, status, trigger_data,
			actions_performed, error_message, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID.String(),
		execution.RuleID.String(),
		execution.UserID.String(),
		string(execution.Status),
		string(triggerData),
		string(actionsJSON),
		execution.ErrorMessage,
		execution.ExecutedAt.Format(sqliteTimeFormat),
	)
	return err
}

// ListByRule retrieves the most recent executions for a rule, newest first.
func (r *SQLiteExecutionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT id, rule_id, user_id, status, trigger_data,
		       actions_performed, error_message, executed_at
		FROM automation_executions
		WHERE rule_id = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, ruleID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]*domain.Execution, 0)
	for rows.Next() {
		execution, err := scanSQLiteExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

func scanSQLiteExecution(row sqlRow) (*domain.Execution, error) {
	var execution domain.Execution
	var idStr, ruleIDStr, userIDStr, status string
	var triggerDataStr, actionsStr, executedAtStr string

	err := row.Scan(
		&idStr,
		&ruleIDStr,
		&userIDStr,
		&status,
		&triggerDataStr,
		&actionsStr,
		&execution.ErrorMessage,
		&executedAtStr,
	)
	if err != nil {
		return nil, err
	}

	execution.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	execution.RuleID, err = uuid.Parse(ruleIDStr)
	if err != nil {
		return nil, err
	}
	execution.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, err
	}

	execution.Status = domain.ExecutionStatus(status)
	if err := json.Unmarshal([]byte(triggerDataStr), &execution.TriggerData); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionsStr), &execution.ActionsPerformed); err != nil {
		return nil, err
	}

	execution.ExecutedAt, err = time.Parse(sqliteTimeFormat, executedAtStr)
	if err != nil {
		return nil, err
	}
	return &execution, nil
}
