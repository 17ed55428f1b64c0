package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// AlertHandler handles ephemeral alert endpoints.
type AlertHandler struct {
	queue  *alert.Queue
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(q *alert.Queue, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		queue:  q,
		logger: log,
	}
}

// List handles GET /api/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.queue.Active()
	if items == nil {
		items = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Alert{"items": items})
}

// Dismiss handles DELETE /api/alerts/{id}
func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if !h.queue.Dismiss(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invoke handles POST /api/alerts/{id}/invoke
func (h *AlertHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	if !h.queue.Invoke(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pause handles POST /api/alerts/{id}/pause
func (h *AlertHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.queue.Pause(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Resume handles POST /api/alerts/{id}/resume
func (h *AlertHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.queue.Resume(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
