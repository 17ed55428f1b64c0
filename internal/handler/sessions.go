package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/middleware"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// SessionHandler handles chat session endpoints.
type SessionHandler struct {
	chat     *service.ChatManager
	exchange *service.Exchange
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(chat *service.ChatManager, ex *service.Exchange, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		chat:     chat,
		exchange: ex,
		logger:   log,
	}
}

// CurrentResponse describes the device's current chat.
type CurrentResponse struct {
	SessionID string             `json:"session_id"`
	State     string             `json:"state"`
	Mode      model.Mode         `json:"mode"`
	Composing bool               `json:"composing"`
	Session   *model.ChatSession `json:"session,omitempty"`
}

type modeRequest struct {
	Mode model.Mode `json:"mode"`
}

type contextRequest struct {
	Context model.Context `json:"context"`
}

// Resolve handles POST /api/chat/resolve
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := h.chat.Resolve(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.current(r, id))
}

// Current handles GET /api/chat/current
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current(r, h.chat.Current()))
}

// Start handles POST /api/chat/sessions
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, err := h.chat.StartNew(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.current(r, id))
}

// SwitchMode handles PUT /api/chat/mode
func (h *SessionHandler) SwitchMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "unknown chat mode")
		return
	}

	id, err := h.chat.SwitchMode(r.Context(), req.Mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.current(r, id))
}

// Get handles GET /api/chat/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	sess, err := h.exchange.Session(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Select handles POST /api/chat/sessions/{id}/select
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	if err := h.chat.SelectSession(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.current(r, id))
}

// Delete handles DELETE /api/chat/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	if err := h.chat.DeleteSession(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// End handles POST /api/chat/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	if err := h.exchange.EndSession(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MergeContext handles PATCH /api/chat/sessions/{id}/context
func (h *SessionHandler) MergeContext(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	var req contextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.exchange.MergeContext(id, req.Context); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Feedback handles POST /api/chat/sessions/{id}/feedback
func (h *SessionHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	var fb model.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.exchange.SubmitSessionFeedback(r.Context(), id, fb); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// current builds the current-chat view. The session is served from cache
// when possible; a failed load is logged and omitted.
func (h *SessionHandler) current(r *http.Request, id string) *CurrentResponse {
	resp := &CurrentResponse{
		SessionID: id,
		State:     h.chat.State().String(),
		Mode:      h.chat.Mode(),
	}
	if id == "" {
		return resp
	}

	resp.Composing = h.exchange.Composing(id)
	sess, err := h.exchange.Session(r.Context(), id)
	if err != nil {
		h.logger.Warn("failed to load current session",
			zap.String("session_id", id),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err))
		return resp
	}
	resp.Session = sess
	return resp
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
