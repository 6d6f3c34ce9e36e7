// Package notifications delivers in-app notifications to CRM users.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app notification row.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
}

// Notifier delivers notifications. Callers treat delivery as fire-and-forget:
// failures may be logged but must not abort the surrounding operation.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message, link string) error
}

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, notification *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
}

// StoreNotifier implements Notifier by persisting notifications for the UI
// to pick up.
type StoreNotifier struct {
	repo Repository
}

// NewStoreNotifier creates a store-backed notifier.
func NewStoreNotifier(repo Repository) *StoreNotifier {
	return &StoreNotifier{repo: repo}
}

// Notify persists a notification row.
func (n *StoreNotifier) Notify(ctx context.Context, userID uuid.UUID, title, message, link string) error {
	return n.repo.Create(ctx, &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	})
}
