// Package persistence stores notifications.
package persistence

import (
	"context"

	"github.com/funnelworks/funnel/internal/notifications"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements notifications.Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL notification repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists a notification.
func (r *PostgresRepository) Create(ctx context.Context, notification *notifications.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, message, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		notification.ID,
		notification.UserID,
		notification.Title,
		notification.Message,
		notification.Link,
		notification.CreatedAt,
	)
	return err
}

// ListByUser retrieves the user's most recent notifications, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*notifications.Notification, error) {
	query := `
		SELECT id, user_id, title, message, link, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*notifications.Notification, 0)
	for rows.Next() {
		var n notifications.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}
