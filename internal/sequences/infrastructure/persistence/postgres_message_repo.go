package persistence

import (
	"context"

	"github.com/funnelworks/funnel/internal/sequences/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMessageRepository implements domain.MessageRepository using PostgreSQL.
type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresMessageRepository creates a new PostgreSQL message repository.
func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Append records a dispatched message.
func (r *PostgresMessageRepository) Append(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO sequence_messages (
			id, enrollment_id, step_number, recipient, subject,
			provider_message_id, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.EnrollmentID,
		message.StepNumber,
		message.Recipient,
		message.Subject,
		message.ProviderMessageID,
		message.SentAt,
	)
	return err
}

// ListByEnrollment retrieves an enrollment's messages in send order.
func (r *PostgresMessageRepository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT id, enrollment_id, step_number, recipient, subject, provider_message_id, sent_at
		FROM sequence_messages
		WHERE enrollment_id = $1
		ORDER BY sent_at
	`

	rows, err := r.pool.Query(ctx, query, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		err := rows.Scan(&m.ID, &m.EnrollmentID, &m.StepNumber, &m.Recipient,
			&m.Subject, &m.ProviderMessageID, &m.SentAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
