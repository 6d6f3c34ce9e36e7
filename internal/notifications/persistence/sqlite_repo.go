package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/funnelworks/funnel/internal/notifications"
	"github.com/google/uuid"
)

const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository implements notifications.Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite notification repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create persists a notification.
func (r *SQLiteRepository) Create(ctx context.Context, notification *notifications.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, message, link, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		notification.ID.String(),
		notification.UserID.String(),
		notification.Title,
		notification.Message,
		notification.Link,
		notification.CreatedAt.Format(sqliteTimeFormat),
	)
	return err
}

// ListByUser retrieves the user's most recent notifications, newest first.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*notifications.Notification, error) {
	query := `
		SELECT id, user_id, title, message, link, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*notifications.Notification, 0)
	for rows.Next() {
		var n notifications.Notification
		var idStr, userIDStr, createdAtStr string
		if err := rows.Scan(&idStr, &userIDStr, &n.Title, &n.Message, &n.Link, &createdAtStr); err != nil {
			return nil, err
		}
		if n.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if n.UserID, err = uuid.Parse(userIDStr); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}
