// Package handler exposes a user's notifications over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/sales-manager/internal/domain/common"
	"github.com/FACorreiaa/sales-manager/internal/domain/notification/repository"
	"github.com/FACorreiaa/sales-manager/pkg/httpx"
	"github.com/FACorreiaa/sales-manager/pkg/middleware"
)

// NotificationService is the part of the notification service the handler needs
type NotificationService interface {
	ListUnread(ctx context.Context, recipientID uuid.UUID, limit int) ([]*repository.Notification, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

// NotificationHandler serves the notification routes
type NotificationHandler struct {
	svc    NotificationService
	logger *slog.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(svc NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Register mounts the routes on mux
func (h *NotificationHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/notifications", wrap(http.HandlerFunc(h.ListUnread)))
	mux.Handle("POST /api/notifications/read", wrap(http.HandlerFunc(h.MarkRead)))
}

type notificationResponse struct {
	ID          uuid.UUID `json:"id"`
	ActorType   string    `json:"actor_type"`
	ActorID     uuid.UUID `json:"actor_id"`
	Verb        string    `json:"verb"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type markReadRequest struct {
	ID *uuid.UUID `json:"id"` // Nil marks everything read
}

// ListUnread handles GET /api/notifications
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, common.ErrUnauthenticated)
		return
	}

	list, err := h.svc.ListUnread(r.Context(), user.ID, 50)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	resp := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, notificationResponse{
			ID:          n.ID,
			ActorType:   n.ActorType,
			ActorID:     n.ActorID,
			Verb:        n.Verb,
			Description: n.Description,
			CreatedAt:   n.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// MarkRead handles POST /api/notifications/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		httpx.WriteDomainError(w, h.logger, common.ErrUnauthenticated)
		return
	}

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ID != nil {
		if err := h.svc.MarkRead(r.Context(), user.ID, *req.ID); err != nil {
			httpx.WriteDomainError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]int64{"marked": 1})
		return
	}

	n, err := h.svc.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
