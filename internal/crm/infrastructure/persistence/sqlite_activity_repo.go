package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
)

// SQLiteActivityRepository implements domain.ActivityRepository using SQLite.
type SQLiteActivityRepository struct {
	db *sql.DB
}

// NewSQLiteActivityRepository creates a new SQLite activity repository.
func NewSQLiteActivityRepository(db *sql.DB) *SQLiteActivityRepository {
	return &SQLiteActivityRepository{db: db}
}

// ListByContact retrieves the contact's activities, newest first.
func (r *SQLiteActivityRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.Activity, error) {
	query := `
		SELECT id, user_id, contact_id, kind, subject, created_at
		FROM activities
		WHERE contact_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, contactID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]*domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		var idStr, userIDStr, contactIDStr, createdAtStr string

		if err := rows.Scan(&idStr, &userIDStr, &contactIDStr, &a.Kind, &a.Subject, &createdAtStr); err != nil {
			return nil, err
		}

		a.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		a.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, err
		}
		a.ContactID, err = uuid.Parse(contactIDStr)
		if err != nil {
			return nil, err
		}
		a.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr)
		if err != nil {
			return nil, err
		}

		activities = append(activities, &a)
	}
	return activities, rows.Err()
}
