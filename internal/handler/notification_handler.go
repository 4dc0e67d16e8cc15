package handler

import (
	"context"
	"net/http"

	"github.com/dandantas/shopwatch/internal/model"
)

// NotificationService exposes the user notification log
type NotificationService interface {
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, page, limit int) ([]model.Notification, int64, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// NotificationHandler handles user notification endpoints
type NotificationHandler struct {
	service NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(service NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List handles GET /api/v1/notifications?user_id=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	page, limit := pagination(r)

	items, total, err := h.service.ListNotifications(r.Context(), userID, parseQueryBool(r, "unread"), page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, ListResponse[model.Notification]{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Results: items,
	})
}

// MarkRead handles PATCH /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkNotificationRead(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
