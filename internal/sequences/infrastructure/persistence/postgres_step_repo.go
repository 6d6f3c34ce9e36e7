package persistence

import (
	"context"
	"errors"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStepRepository implements domain.StepRepository using PostgreSQL.
type PostgresStepRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresStepRepository creates a new PostgreSQL step repository.
func NewPostgresStepRepository(pool *pgxpool.Pool) *PostgresStepRepository {
	return &PostgresStepRepository{pool: pool}
}

// GetStep retrieves the step at the given position.
func (r *PostgresStepRepository) GetStep(ctx context.Context, sequenceID uuid.UUID, stepNumber int) (*domain.Step, error) {
	query := `
		SELECT id, sequence_id, step_number, subject, body, delay_days, delay_hours
		FROM sequence_steps
		WHERE sequence_id = $1 AND step_number = $2
	`

	var step domain.Step
	err := r.pool.QueryRow(ctx, query, sequenceID, stepNumber).Scan(
		&step.ID, &step.SequenceID, &step.StepNumber,
		&step.Subject, &step.Body, &step.DelayDays, &step.DelayHours,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStepNotFound
		}
		return nil, err
	}
	return &step, nil
}

// ListBySequence retrieves all steps of a sequence in step order.
func (r *PostgresStepRepository) ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*domain.Step, error) {
	query := `
		SELECT id, sequence_id, step_number, subject, body, delay_days, delay_hours
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number
	`

	rows, err := r.pool.Query(ctx, query, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]*domain.Step, 0)
	for rows.Next() {
		var step domain.Step
		err := rows.Scan(&step.ID, &step.SequenceID, &step.StepNumber,
			&step.Subject, &step.Body, &step.DelayDays, &step.DelayHours)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}
