package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// sqliteTimeFormat keeps a fixed-width fraction so stored timestamps compare
// correctly as strings.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteEnrollmentRepository implements domain.EnrollmentRepository using
// SQLite.
type SQLiteEnrollmentRepository struct {
	db *sql.DB
}

// NewSQLiteEnrollmentRepository creates a new SQLite enrollment repository.
func NewSQLiteEnrollmentRepository(db *sql.DB) *SQLiteEnrollmentRepository {
	return &SQLiteEnrollmentRepository{db: db}
}

const sqliteEnrollmentColumns = `
	id, sequence_id, contact_id, user_id, status, current_step,
	next_send_at, completed_at, created_at, updated_at
`

// GetByID retrieves an enrollment scoped to its owner.
func (r *SQLiteEnrollmentRepository) GetByID(ctx context.Context, userID, enrollmentID uuid.UUID) (*domain.Enrollment, error) {
	query := `SELECT ` + sqliteEnrollmentColumns + ` FROM sequence_enrollments WHERE id = ? AND user_id = ?`

	enrollment, err := scanSQLiteEnrollment(r.db.QueryRowContext(ctx, query, enrollmentID.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, err
	}
	return enrollment, nil
}

// ListByUser retrieves the user's enrollments, newest first.
func (r *SQLiteEnrollmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Enrollment, error) {
	query := `SELECT ` + sqliteEnrollmentColumns + ` FROM sequence_enrollments WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteEnrollments(rows)
}

// ClaimDue claims a batch of due, unclaimed enrollments. The RETURNING
// form keeps select-and-claim a single statement even on SQLite.
func (r *SQLiteEnrollmentRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Enrollment, error) {
	nowStr := now.Format(sqliteTimeFormat)
	query := `
		UPDATE sequence_enrollments SET claimed_until = ?
		WHERE id IN (
			SELECT id FROM sequence_enrollments
			WHERE status = 'active'
			  AND next_send_at <= ?
			  AND (claimed_until IS NULL OR claimed_until < ?)
			ORDER BY next_send_at
			LIMIT ?
		)
		RETURNING ` + sqliteEnrollmentColumns

	rows, err := r.db.QueryContext(ctx, query,
		now.Add(lease).Format(sqliteTimeFormat), nowStr, nowStr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteEnrollments(rows)
}

// Save persists the enrollment state and clears its claim.
func (r *SQLiteEnrollmentRepository) Save(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		UPDATE sequence_enrollments SET
			status = ?, current_step = ?, next_send_at = ?,
			completed_at = ?, claimed_until = NULL, updated_at = ?
		WHERE id = ?
	`

	var completedAt sql.NullString
	if enrollment.CompletedAt() != nil {
		completedAt = sql.NullString{String: enrollment.CompletedAt().Format(sqliteTimeFormat), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		string(enrollment.Status()),
		enrollment.CurrentStep(),
		enrollment.NextSendAt().Format(sqliteTimeFormat),
		completedAt,
		enrollment.UpdatedAt().Format(sqliteTimeFormat),
		enrollment.ID().String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

// Release clears the claim without touching enrollment state.
func (r *SQLiteEnrollmentRepository) Release(ctx context.Context, enrollmentID uuid.UUID) error {
	query := `UPDATE sequence_enrollments SET claimed_until = NULL WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, enrollmentID.String())
	return err
}

// Create persists a new enrollment.
func (r *SQLiteEnrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO sequence_enrollments (
			id, sequence_id, contact_id, user_id, status, current_step,
			next_send_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var completedAt sql.NullString
	if enrollment.CompletedAt() != nil {
		completedAt = sql.NullString{String: enrollment.CompletedAt().Format(sqliteTimeFormat), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		enrollment.ID().String(),
		enrollment.SequenceID().String(),
		enrollment.ContactID().String(),
		enrollment.UserID().String(),
		string(enrollment.Status()),
		enrollment.CurrentStep(),
		enrollment.NextSendAt().Format(sqliteTimeFormat),
		completedAt,
		enrollment.CreatedAt().Format(sqliteTimeFormat),
		enrollment.UpdatedAt().Format(sqliteTimeFormat),
	)
	return err
}

// sqlRow abstracts sql.Row and sql.Rows for shared scanning.
type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteEnrollment(row sqlRow) (*domain.Enrollment, error) {
	var (
		idStr, sequenceIDStr, contactIDStr, userIDStr string
		status                                        string
		currentStep                                   int
		nextSendAtStr                                 string
		completedAtStr                                sql.NullString
		createdAtStr, updatedAtStr                    string
	)

	err := row.Scan(&idStr, &sequenceIDStr, &contactIDStr, &userIDStr, &status,
		&currentStep, &nextSendAtStr, &completedAtStr, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	sequenceID, err := uuid.Parse(sequenceIDStr)
	if err != nil {
		return nil, err
	}
	contactID, err := uuid.Parse(contactIDStr)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, err
	}

	nextSendAt, err := time.Parse(sqliteTimeFormat, nextSendAtStr)
	if err != nil {
		return nil, err
	}
	var completedAt *time.Time
	if completedAtStr.Valid {
		t, err := time.Parse(sqliteTimeFormat, completedAtStr.String)
		if err != nil {
			return nil, err
		}
		completedAt = &t
	}
	createdAt, err := time.Parse(sqliteTimeFormat, createdAtStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(sqliteTimeFormat, updatedAtStr)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateEnrollment(
		sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		sequenceID, contactID, userID,
		domain.Status(status), currentStep, nextSendAt, completedAt,
	), nil
}

func scanSQLiteEnrollments(rows *sql.Rows) ([]*domain.Enrollment, error) {
	enrollments := make([]*domain.Enrollment, 0)
	for rows.Next() {
		enrollment, err := scanSQLiteEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, rows.Err()
}
