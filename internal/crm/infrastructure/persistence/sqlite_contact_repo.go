package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
)

// sqliteTimeFormat keeps a fixed-width fraction so stored timestamps compare
// correctly as strings.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteContactRepository implements domain.ContactRepository using SQLite.
type SQLiteContactRepository struct {
	db *sql.DB
}

// NewSQLiteContactRepository creates a new SQLite contact repository.
func NewSQLiteContactRepository(db *sql.DB) *SQLiteContactRepository {
	return &SQLiteContactRepository{db: db}
}

const sqliteContactColumns = `
	id, user_id, first_name, last_name, email, phone, position,
	company_id, engagement_score, created_at, updated_at
`

// GetByID retrieves a contact scoped to its owner.
func (r *SQLiteContactRepository) GetByID(ctx context.Context, userID, contactID uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM contacts WHERE id = ? AND user_id = ?`

	contact, err := scanSQLiteContact(r.db.QueryRowContext(ctx, query, contactID.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContactNotFound
		}
		return nil, err
	}
	return contact, nil
}

// ListByOwner retrieves all contacts owned by the user.
func (r *SQLiteContactRepository) ListByOwner(ctx context.Context, userID uuid.UUID) ([]*domain.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM contacts WHERE user_id = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		contact, err := scanSQLiteContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// ListUntouchedSince retrieves contacts with no activity recorded after the
// cutoff, in creation order.
func (r *SQLiteContactRepository) ListUntouchedSince(ctx context.Context, userID uuid.UUID, cutoff time.Time) ([]*domain.Contact, error) {
	query := `
		SELECT ` + sqliteContactColumns + `
		FROM contacts c
		WHERE c.user_id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM activities a
			WHERE a.contact_id = c.id AND a.created_at > ?
		  )
		ORDER BY c.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String(), cutoff.Format(sqliteTimeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*domain.Contact, 0)
	for rows.Next() {
		contact, err := scanSQLiteContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// SetEngagementScore writes the derived score back to the contact record.
func (r *SQLiteContactRepository) SetEngagementScore(ctx context.Context, contactID uuid.UUID, score int) error {
	query := `UPDATE contacts SET engagement_score = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		score, time.Now().UTC().Format(sqliteTimeFormat), contactID.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}

// sqlRow abstracts sql.Row and sql.Rows for shared scanning.
type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteContact(row sqlRow) (*domain.Contact, error) {
	var contact domain.Contact
	var idStr, userIDStr string
	var companyIDStr sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&idStr,
		&userIDStr,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&contact.Position,
		&companyIDStr,
		&contact.EngagementScore,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	contact.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	contact.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return nil, err
	}
	if companyIDStr.Valid {
		companyID, err := uuid.Parse(companyIDStr.String)
		if err != nil {
			return nil, err
		}
		contact.CompanyID = &companyID
	}

	contact.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr)
	if err != nil {
		return nil, err
	}
	contact.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAtStr)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}
