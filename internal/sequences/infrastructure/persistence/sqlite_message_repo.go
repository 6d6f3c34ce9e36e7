package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/google/uuid"
)

// SQLiteMessageRepository implements domain.MessageRepository using SQLite.
type SQLiteMessageRepository struct {
	db *sql.DB
}

// NewSQLiteMessageRepository creates a new SQLite message repository.
func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

// Append records a dispatched message.
func (r *SQLiteMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO sequence_messages (
			id, enrollment_id, step_number, recipient, subject,
			provider_message_id, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		message.ID.String(),
		message.EnrollmentID.String(),
		message.StepNumber,
		message.Recipient,
		message.Subject,
		message.ProviderMessageID,
		message.SentAt.Format(sqliteTimeFormat),
	)
	return err
}

// ListByEnrollment retrieves an enrollment's messages in send order.
func (r *SQLiteMessageRepository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT id, enrollment_id, step_number, recipient, subject, provider_message_id, sent_at
		FROM sequence_messages
		WHERE enrollment_id = ?
		ORDER BY sent_at
	`

	rows, err := r.db.QueryContext(ctx, query, enrollmentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var idStr, enrollmentIDStr, sentAtStr string

		err := rows.Scan(&idStr, &enrollmentIDStr, &m.StepNumber, &m.Recipient,
			&m.Subject, &m.ProviderMessageID, &sentAtStr)
		if err != nil {
			return nil, err
		}

		m.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		m.EnrollmentID, err = uuid.Parse(enrollmentIDStr)
		if err != nil {
			return nil, err
		}
		m.SentAt, err = time.Parse(sqliteTimeFormat, sentAtStr)
		if err != nil {
			return nil, err
		}

		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
