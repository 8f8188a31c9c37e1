// Package repository stores user notifications.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification tells a user that something happened to one of their records.
type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	ActorType   string // e.g. "import_file"
	ActorID     uuid.UUID
	Verb        string
	Description string
	Unread      bool
	CreatedAt   time.Time
}

// NotificationRepository defines notification persistence
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}
