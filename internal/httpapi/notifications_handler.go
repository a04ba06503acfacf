package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ironico1809/tienda-backend/internal/notify/domain"
)

type NotificationsAPI interface {
	ListNotificationsByUserID(ctx context.Context, userID string) ([]*domain.Notification, error)
	GetNotificationByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}

type NotificationsHandler struct {
	notifications NotificationsAPI
	timeout       time.Duration
}

func NewNotificationsHandler(notifications NotificationsAPI, timeout time.Duration) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, timeout: timeout}
}

func (h *NotificationsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	notifications, err := h.notifications.ListNotificationsByUserID(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if notifications == nil {
		notifications = []*domain.Notification{}
	}
	respondJSON(w, http.StatusOK, notifications)
}

// MarkRead flips a notification to SENT once the owner has seen it.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	idStr := chi.URLParam(r, "notification_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_notification_id", "notification_id must be a UUID")
		return
	}

	notification, err := h.notifications.GetNotificationByID(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	// Callers only see their own notifications; a foreign id behaves as
	// if it did not exist.
	if notification.UserID != userID {
		respondError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}

	if err := h.notifications.MarkSent(ctx, id); err != nil {
		handleServiceError(w, err)
		return
	}

	notification.Status = domain.NotificationStatusSent
	respondJSON(w, http.StatusOK, notification)
}
