package persistence

import (
	"context"
	"encoding/json"

	"github.com/funnelworks/funnel/internal/automations/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresExecutionRepository implements domain.ExecutionRepository using
// PostgreSQL.
type PostgresExecutionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutionRepository creates a new PostgreSQL execution repository.
func NewPostgresExecutionRepository(pool *pgxpool.Pool) *PostgresExecutionRepository {
	return &PostgresExecutionRepository{pool: pool}
}

// Append records an execution.
func (r *PostgresExecutionRepository) Append(ctx context.Context, execution *domain.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_executions (
			id, rule_id, user_id, status, trigger_data,
			actions_performed, error_message, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(ctx, query,
		execution.ID,
		execution.RuleID,
		execution.UserID,
		string(execution.Status),
		triggerData,
		execution.ActionsPerformed,
		execution.ErrorMessage,
		execution.ExecutedAt,
	)
	return err
}

// ListByRule retrieves a rule's executions, newest first.
func (r *PostgresExecutionRepository) ListByRule(ctx context.Context, ruleID uuid.UUID, limit int) ([]*domain.Execution, error) {
	query := `
		SELECT id, rule_id, user_id, status, trigger_data, actions_performed, error_message, executed_at
		FROM automation_executions
		WHERE rule_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]*domain.Execution, 0)
	for rows.Next() {
		var e domain.Execution
		var status string
		var triggerData []byte
		var actions []string

		err := rows.Scan(&e.ID, &e.RuleID, &e.UserID, &status, &triggerData,
			&actions, &e.ErrorMessage, &e.ExecutedAt)
		if err != nil {
			return nil, err
		}

		e.Status = domain.ExecutionStatus(status)
		e.ActionsPerformed = actions
		if err := json.Unmarshal(triggerData, &e.TriggerData); err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}
