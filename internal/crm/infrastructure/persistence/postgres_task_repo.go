package persistence

import (
	"context"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTaskRepository implements domain.TaskRepository using PostgreSQL.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgreSQL task repository.
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

// ListByContact retrieves the contact's tasks.
func (r *PostgresTaskRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT id, user_id, contact_id, title, status, due_at, created_at, updated_at
		FROM tasks
		WHERE contact_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresTasks(rows)
}

// ListOverdue retrieves tasks past due and not completed, in due-date order.
func (r *PostgresTaskRepository) ListOverdue(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*domain.Task, error) {
	query := `
		SELECT id, user_id, contact_id, title, status, due_at, created_at, updated_at
		FROM tasks
		WHERE user_id = $1 AND status != 'completed' AND due_at IS NOT NULL AND due_at < $2
		ORDER BY due_at
	`

	rows, err := r.pool.Query(ctx, query, userID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresTasks(rows)
}

// Create inserts a new task.
func (r *PostgresTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, contact_id, title, status, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.ContactID,
		task.Title,
		string(task.Status),
		task.DueAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	return err
}

func scanPostgresTasks(rows pgx.Rows) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		var status string
		if err := rows.Scan(&t.ID, &t.UserID, &t.ContactID, &t.Title, &status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = domain.TaskStatus(status)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
