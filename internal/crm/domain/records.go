package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a CRM task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

// Activity is a logged interaction with a contact (call, email, meeting, note).
type Activity struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ContactID uuid.UUID
	Kind      string
	Subject   string
	CreatedAt time.Time
}

// Task is a to-do item, optionally linked to a contact.
type Task struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ContactID *uuid.UUID
	Title     string
	Status    TaskStatus
	DueAt     *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOverdue reports whether the task is past due and not completed.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != TaskStatusCompleted && t.DueAt != nil && t.DueAt.Before(now)
}

// Deal is an opportunity moving through the pipeline.
type Deal struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ContactID      *uuid.UUID
	Title          string
	Stage          string
	ValueCents     int64
	StageChangedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
