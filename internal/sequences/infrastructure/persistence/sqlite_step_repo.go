package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/google/uuid"
)

// SQLiteStepRepository implements domain.StepRepository using SQLite.
type SQLiteStepRepository struct {
	db *sql.DB
}

// NewSQLiteStepRepository creates a new SQLite step repository.
func NewSQLiteStepRepository(db *sql.DB) *SQLiteStepRepository {
	return &SQLiteStepRepository{db: db}
}

// GetStep retrieves the step at the given position.
func (r *SQLiteStepRepository) GetStep(ctx context.Context, sequenceID uuid.UUID, stepNumber int) (*domain.Step, error) {
	query := `
		SELECT id, sequence_id, step_number, subject, body, delay_days, delay_hours
		FROM sequence_steps
		WHERE sequence_id = ? AND step_number = ?
	`

	step, err := scanSQLiteStep(r.db.QueryRowContext(ctx, query, sequenceID.String(), stepNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStepNotFound
		}
		return nil, err
	}
	return step, nil
}

// ListBySequence retrieves all steps of a sequence in step order.
func (r *SQLiteStepRepository) ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*domain.Step, error) {
	query := `
		SELECT id, sequence_id, step_number, subject, body, delay_days, delay_hours
		FROM sequence_steps
		WHERE sequence_id = ?
		ORDER BY step_number
	`

	rows, err := r.db.QueryContext(ctx, query, sequenceID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]*domain.Step, 0)
	for rows.Next() {
		step, err := scanSQLiteStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func scanSQLiteStep(row sqlRow) (*domain.Step, error) {
	var step domain.Step
	var idStr, sequenceIDStr string

	err := row.Scan(&idStr, &sequenceIDStr, &step.StepNumber,
		&step.Subject, &step.Body, &step.DelayDays, &step.DelayHours)
	if err != nil {
		return nil, err
	}

	step.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	step.SequenceID, err = uuid.Parse(sequenceIDStr)
	if err != nil {
		return nil, err
	}
	return &step, nil
}
