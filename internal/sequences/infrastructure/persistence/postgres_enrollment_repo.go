// Package persistence provides database implementations for sequence repositories.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEnrollmentRepository implements domain.EnrollmentRepository using
// PostgreSQL.
type PostgresEnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEnrollmentRepository creates a new PostgreSQL enrollment repository.
func NewPostgresEnrollmentRepository(pool *pgxpool.Pool) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{pool: pool}
}

const postgresEnrollmentColumns = `
	id, sequence_id, contact_id, user_id, status, current_step,
	next_send_at, completed_at, created_at, updated_at
`

// GetByID retrieves an enrollment scoped to its owner.
func (r *PostgresEnrollmentRepository) GetByID(ctx context.Context, userID, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	query := `SELECT ` + postgresEnrollmentColumns + ` FROM sequence_enrollments WHERE id = $1 AND user_id = $2`

	enrollment, err := scanPostgresEnrollment(r.pool.QueryRow(ctx, query, enrollmentID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, err
	}
	return enrollment, nil
}

// ListByUser retrieves the user's enrollments, newest first.
func (r *PostgresEnrollmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Enrollment, error) {
	query := `SELECT ` + postgresEnrollmentColumns + ` FROM sequence_enrollments WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresEnrollments(rows)
}

// ClaimDue atomically claims a batch of due, unclaimed enrollments. SKIP
// LOCKED keeps concurrent workers from claiming the same rows.
func (r *PostgresEnrollmentRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Enrollment, error) {
	query := `
		UPDATE sequence_enrollments SET claimed_until = $1
		WHERE id IN (
			SELECT id FROM sequence_enrollments
			WHERE status = 'active'
			  AND next_send_at <= $2
			  AND (claimed_until IS NULL OR claimed_until < $2)
			ORDER BY next_send_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + postgresEnrollmentColumns

	rows, err := r.pool.Query(ctx, query, now.Add(lease), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresEnrollments(rows)
}

// Save persists the enrollment state and clears its claim.
func (r *PostgresEnrollmentRepository) Save(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		UPDATE sequence_enrollments SET
			status = $1, current_step = $2, next_send_at = $3,
			completed_at = $4, claimed_until = NULL, updated_at = $5
		WHERE id = $6
	`

	result, err := r.pool.Exec(ctx, query,
		string(enrollment.Status()),
		enrollment.CurrentStep(),
		enrollment.NextSendAt(),
		enrollment.CompletedAt(),
		enrollment.UpdatedAt(),
		enrollment.ID(),
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

// Release clears the claim without touching enrollment state.
func (r *PostgresEnrollmentRepository) Release(ctx context.Context, enrollmentID uuid.UUID) error {
	query := `UPDATE sequence_enrollments SET claimed_until = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, enrollmentID)
	return err
}

// Create persists a new enrollment.
func (r *PostgresEnrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO sequence_enrollments (
			id, sequence_id, contact_id, user_id, status, current_step,
			next_send_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		enrollment.ID(),
		enrollment.SequenceID(),
		enrollment.ContactID(),
		enrollment.UserID(),
		string(enrollment.Status()),
		enrollment.CurrentStep(),
		enrollment.NextSendAt(),
		enrollment.CompletedAt(),
		enrollment.CreatedAt(),
		enrollment.UpdatedAt(),
	)
	return err
}

func scanPostgresEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var (
		id, sequenceID, contactID, userID uuid.UUID
		status                            string
		currentStep                       int
		nextSendAt                        time.Time
		completedAt                       *time.Time
		createdAt, updatedAt              time.Time
	)

	err := row.Scan(&id, &sequenceID, &contactID, &userID, &status, &currentStep,
		&nextSendAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateEnrollment(
		sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		sequenceID, contactID, userID,
		domain.Status(status), currentStep, nextSendAt, completedAt,
	), nil
}

func scanPostgresEnrollments(rows pgx.Rows) ([]*domain.Enrollment, error) {
	enrollments := make([]*domain.Enrollment, 0)
	for rows.Next() {
		enrollment, err := scanPostgresEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, rows.Err()
}
