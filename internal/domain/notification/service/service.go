// Package service records notifications and emails them when a sender is configured.
package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/notification/repository"
	"github.com/FACorreiaa/sales-manager/pkg/observability"
	"github.com/FACorreiaa/sales-manager/pkg/webhook"
)

// Input describes one notification to send
type Input struct {
	RecipientID    uuid.UUID
	RecipientEmail string // Optional; no email is sent when empty
	ActorType      string
	ActorID        uuid.UUID
	ActorLabel     string // Human readable actor, e.g. the import record's description
	Verb           string
	Description    string
}

// EmailSender delivers a single email
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// WebhookSender posts a notification to an external endpoint
type WebhookSender interface {
	Send(ctx context.Context, ev webhook.Event) error
}

// Service handles notifications
type Service struct {
	repo    repository.NotificationRepository
	email   EmailSender
	webhook WebhookSender
	logger  *slog.Logger
}

// NewService creates a notification service. email may be nil.
func NewService(repo repository.NotificationRepository, email EmailSender, logger *slog.Logger) *Service {
	return &Service{repo: repo, email: email, logger: logger}
}

// WithWebhook also posts every notification to hook
func (s *Service) WithWebhook(hook WebhookSender) *Service {
	s.webhook = hook
	return s
}

// Notify stores the notification. Webhook and email failures are logged, not returned.
func (s *Service) Notify(ctx context.Context, in Input) error {
	if in.RecipientID == uuid.Nil {
		return errors.New("notification recipient is required")
	}

	n := &repository.Notification{
		RecipientID: in.RecipientID,
		ActorType:   in.ActorType,
		ActorID:     in.ActorID,
		Verb:        in.Verb,
		Description: in.Description,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	observability.NotificationsTotal.WithLabelValues("inbox", in.Verb).Inc()

	subject := fmt.Sprintf("%s %s", in.ActorLabel, in.Verb)
	s.postWebhook(ctx, n, subject)

	if s.email == nil || in.RecipientEmail == "" {
		return nil
	}

	body := fmt.Sprintf("<p>%s</p>", html.EscapeString(subject))
	if in.Description != "" {
		body += fmt.Sprintf("<p>%s</p>", html.EscapeString(in.Description))
	}
	if err := s.email.Send(ctx, in.RecipientEmail, subject, body); err != nil {
		s.logger.Warn("failed to email notification",
			slog.String("notification_id", n.ID.String()),
			slog.Any("error", err))
		return nil
	}
	observability.NotificationsTotal.WithLabelValues("email", in.Verb).Inc()
	return nil
}

func (s *Service) postWebhook(ctx context.Context, n *repository.Notification, text string) {
	if s.webhook == nil {
		return
	}
	err := s.webhook.Send(ctx, webhook.Event{
		Type:        "notification",
		RecipientID: n.RecipientID.String(),
		ActorType:   n.ActorType,
		ActorID:     n.ActorID.String(),
		Text:        text,
		OccurredAt:  n.CreatedAt,
	})
	if err != nil {
		s.logger.Warn("failed to post notification webhook",
			slog.String("notification_id", n.ID.String()),
			slog.Any("error", err))
		return
	}
	observability.NotificationsTotal.WithLabelValues("webhook", n.Verb).Inc()
}

// ListUnread returns the newest unread notifications of a user
func (s *Service) ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]*repository.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListUnread(ctx, recipientID, limit)
}

// MarkRead marks one notification read
func (s *Service) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, recipientID, id)
}

// MarkAllRead marks every notification of a user read
func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}
