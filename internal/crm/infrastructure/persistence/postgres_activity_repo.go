package persistence

import (
	"context"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresActivityRepository implements domain.ActivityRepository using PostgreSQL.
type PostgresActivityRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresActivityRepository creates a new PostgreSQL activity repository.
func NewPostgresActivityRepository(pool *pgxpool.Pool) *PostgresActivityRepository {
	return &PostgresActivityRepository{pool: pool}
}

// ListByContact retrieves the contact's activities, newest first.
func (r *PostgresActivityRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.Activity, error) {
	query := `
		SELECT id, user_id, contact_id, kind, subject, created_at
		FROM activities
		WHERE contact_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]*domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ContactID, &a.Kind, &a.Subject, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}
