package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/estate-assistant/internal/middleware"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	exchange *service.Exchange
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(ex *service.Exchange, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		exchange: ex,
		logger:   log,
	}
}

// SendMessageRequest is the body of a send.
type SendMessageRequest struct {
	Content string        `json:"content"`
	Context model.Context `json:"context,omitempty"`
}

// Send handles POST /api/chat/sessions/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.exchange.Send(r.Context(), id, req.Content, req.Context)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

// Feedback handles POST /api/chat/sessions/{id}/messages/{messageId}/feedback
func (h *MessageHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageId")
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var fb model.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.exchange.SubmitMessageFeedback(r.Context(), id, messageID, fb); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
