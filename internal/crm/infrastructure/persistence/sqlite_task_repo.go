package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/google/uuid"
)

// SQLiteTaskRepository implements domain.TaskRepository using SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a new SQLite task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

// ListByContact retrieves the contact's tasks.
func (r *SQLiteTaskRepository) ListByContact(ctx context.Context, contactID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT id, user_id, contact_id, title, status, due_at, created_at, updated_at
		FROM tasks
		WHERE contact_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, contactID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteTasks(rows)
}

// ListOverdue retrieves tasks past due and not completed, in due-date order.
func (r *SQLiteTaskRepository) ListOverdue(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*domain.Task, error) {
	query := `
		SELECT id, user_id, contact_id, title, status, due_at, created_at, updated_at
		FROM tasks
		WHERE user_id = ? AND status != 'completed' AND due_at IS NOT NULL AND due_at < ?
		ORDER BY due_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String(), asOf.Format(sqliteTimeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteTasks(rows)
}

// Create inserts a new task.
func (r *SQLiteTaskRepository) Create(ctx context.Context, task *domain.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, contact_id, title, status, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var contactID sql.NullString
	if task.ContactID != nil {
		contactID = sql.NullString{String: task.ContactID.String(), Valid: true}
	}
	var dueAt sql.NullString
	if task.DueAt != nil {
		dueAt = sql.NullString{String: task.DueAt.Format(sqliteTimeFormat), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		task.ID.String(),
		task.UserID.String(),
		contactID,
		task.Title,
		string(task.Status),
		dueAt,
		task.CreatedAt.Format(sqliteTimeFormat),
		task.UpdatedAt.Format(sqliteTimeFormat),
	)
	return err
}

func scanSQLiteTasks(rows *sql.Rows) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		var idStr, userIDStr, status string
		var contactIDStr, dueAtStr sql.NullString
		var createdAtStr, updatedAtStr string

		err := rows.Scan(&idStr, &userIDStr, &contactIDStr, &t.Title, &status,
			&dueAtStr, &createdAtStr, &updatedAtStr)
		if err != nil {
			return nil, err
		}

		t.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		t.UserID, err = uuid.Parse(userIDStr)
		if err != nil {
			return nil, err
		}
		if contactIDStr.Valid {
			contactID, err := uuid.Parse(contactIDStr.String)
			if err != nil {
				return nil, err
			}
			t.ContactID = &contactID
		}
		t.Status = domain.TaskStatus(status)
		if dueAtStr.Valid {
			dueAt, err := time.Parse(sqliteTimeFormat, dueAtStr.String)
			if err != nil {
				return nil, err
			}
			t.DueAt = &dueAt
		}
		t.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAtStr)
		if err != nil {
			return nil, err
		}
		t.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAtStr)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
