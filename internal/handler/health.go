package handler

import (
	"net/http"

	"github.com/capitalize-ai/estate-assistant/internal/service"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	channel      *service.NotificationChannel
	liveRequired bool
}

// NewHealthHandler creates a new health handler. When liveRequired is set the
// process is not ready while the live transport is disconnected.
func NewHealthHandler(channel *service.NotificationChannel, liveRequired bool) *HealthHandler {
	return &HealthHandler{
		channel:      channel,
		liveRequired: liveRequired,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	live := service.ChannelDisconnected
	if h.channel != nil {
		live = h.channel.State()
	}

	if h.liveRequired && live == service.ChannelDisconnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "live channel " + live.String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"live":   live.String(),
	})
}
