package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/pkg/db"
)

const (
	insertNotificationQuery = `
		INSERT INTO notifications (id, recipient_id, actor_type, actor_id, verb, description, unread)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING created_at`

	listUnreadQuery = `
		SELECT id, recipient_id, actor_type, actor_id, verb, description, unread, created_at
		FROM notifications
		WHERE recipient_id = $1 AND unread
		ORDER BY created_at DESC
		LIMIT $2`

	markReadQuery = `UPDATE notifications SET unread = FALSE WHERE recipient_id = $1 AND id = $2`

	markAllReadQuery = `UPDATE notifications SET unread = FALSE WHERE recipient_id = $1 AND unread`
)

// PostgresNotificationRepository implements NotificationRepository on PostgreSQL
type PostgresNotificationRepository struct {
	q db.Querier
}

var _ NotificationRepository = (*PostgresNotificationRepository)(nil)

// NewPostgresNotificationRepository creates a new notification repository
func NewPostgresNotificationRepository(q db.Querier) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{q: q}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.q.QueryRow(ctx, insertNotificationQuery,
		n.ID, n.RecipientID, n.ActorType, n.ActorID, n.Verb, n.Description,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.Unread = true
	return nil
}

func (r *PostgresNotificationRepository) ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]*Notification, error) {
	rows, err := r.q.Query(ctx, listUnreadQuery, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorType, &n.ActorID, &n.Verb, &n.Description, &n.Unread, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, markReadQuery, recipientID, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, markAllReadQuery, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
