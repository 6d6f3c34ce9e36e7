// Package persistence provides database implementations for CRM repositories.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresContactRepository implements domain.ContactRepository using PostgreSQL.
type PostgresContactRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresContactRepository creates a new PostgreSQL contact repository.
func NewPostgresContactRepository(pool *pgxpool.Pool) *PostgresContactRepository {
	return &PostgresContactRepository{pool: pool}
}

const postgresContactColumns = `
	id, user_id, first_name, last_name, email, phone, position,
	company_id, engagement_score, created_at, updated_at
`

// GetByID retrieves a contact scoped to its owner.
func (r *PostgresContactRepository) GetByID(ctx context.Context, userID, contactID uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + postgresContactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`

	contact, err := scanPostgresContact(r.pool.QueryRow(ctx, query, contactID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	return contact, nil
}

// ListByOwner retrieves all contacts owned by the user.
func (r *PostgresContactRepository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error) {
	query := `SELECT ` + postgresContactColumns + ` FROM contacts WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		contact, err := scanPostgresContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// ListUntouchedSince retrieves contacts with no activity recorded after the
// cutoff, in creation order.
func (r *PostgresContactRepository) ListUntouchedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*domain.Contact, error) {
	query := `
		SELECT ` + postgresContactColumns + `
		FROM contacts c
		WHERE c.user_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM activities a
			WHERE a.contact_id = c.id AND a.created_at > $2
		  )
		ORDER BY c.created_at
	`

	rows, err := r.pool.Query(ctx, query, userID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		contact, err := scanPostgresContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// SetEngagementScore writes the derived score back to the contact record.
func (r *PostgresContactRepository) SetEngagementScore(ctx context.Context, contactID uuid.UUID, score int) error {
	query := `UPDATE contacts SET engagement_score = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, score, contactID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}

func scanPostgresContact(row pgx.Row) (*domain.Contact, error) {
	var contact domain.Contact
	err := row.Scan(
		&contact.ID,
		&contact.UserID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&contact.Position,
		&contact.CompanyID,
		&contact.EngagementScore,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
