package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/estate-assistant/internal/middleware"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/internal/store"
)

// NotificationHandler handles the durable notification list.
type NotificationHandler struct {
	channel *service.NotificationChannel
	store   *store.Store
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(channel *service.NotificationChannel, st *store.Store) *NotificationHandler {
	return &NotificationHandler{
		channel: channel,
		store:   st,
	}
}

// NotificationListResponse is the local notification list.
type NotificationListResponse struct {
	Items       []model.Notification `json:"items"`
	UnreadCount int                  `json:"unread_count"`
	Live        string               `json:"live"`
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.list())
}

// Refresh handles POST /api/notifications/refresh
func (h *NotificationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.Refresh(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.list())
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationParam(w, r)
	if !ok {
		return
	}
	if err := h.channel.MarkRead(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.channel.MarkAllRead(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationParam(w, r)
	if !ok {
		return
	}
	if err := h.channel.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) list() *NotificationListResponse {
	items := h.store.Notifications()
	if items == nil {
		items = []model.Notification{}
	}
	return &NotificationListResponse{
		Items:       items,
		UnreadCount: h.store.UnreadCount(),
		Live:        h.channel.State().String(),
	}
}

func notificationParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateNotificationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
