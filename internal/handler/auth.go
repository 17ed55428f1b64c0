package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/auth"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/service"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// AuthHandler signs the device in and out.
type AuthHandler struct {
	store   *store.Store
	chat    *service.ChatManager
	channel *service.NotificationChannel
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st *store.Store, chat *service.ChatManager, channel *service.NotificationChannel, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		store:   st,
		chat:    chat,
		channel: channel,
		logger:  log,
	}
}

// LoginRequest carries the credentials issued by the backend.
type LoginRequest struct {
	AuthToken    string         `json:"auth_token"`
	RefreshToken string         `json:"refresh_token"`
	UserMode     model.UserMode `json:"user_mode,omitempty"`
}

// MeResponse describes the signed-in user.
type MeResponse struct {
	Identity *model.Identity `json:"identity"`
	UserMode model.UserMode  `json:"user_mode"`
}

type userModeRequest struct {
	UserMode model.UserMode `json:"user_mode"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := auth.ParseToken(req.AuthToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if info.Expired(time.Now()) {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}

	ctx := r.Context()
	ident := info.Identity
	if prev, ok := h.store.AuthenticatedIdentity(); ok && prev.ID != ident.ID {
		h.logger.Info("identity changed, dropping previous user's state",
			zap.String("previous_identity_id", prev.ID), zap.String("identity_id", ident.ID))
		h.forgetUser(ctx)
	}

	h.store.SetCredentials(model.Credentials{AuthToken: req.AuthToken, RefreshToken: req.RefreshToken})
	h.store.SetIdentity(&ident)
	h.store.SetAuthenticated(true)
	switch {
	case req.UserMode.Valid():
		h.store.SetUserMode(req.UserMode)
	case info.UserMode.Valid():
		h.store.SetUserMode(info.UserMode)
	}

	if err := h.channel.Rejoin(ctx); err != nil {
		h.logger.Warn("failed to join notification room after sign in", zap.Error(err))
	}
	if err := h.channel.Refresh(ctx); err != nil {
		h.logger.Warn("failed to load notifications after sign in", zap.Error(err))
	}

	h.logger.Info("signed in", zap.String("identity_id", ident.ID))
	writeJSON(w, http.StatusOK, &MeResponse{Identity: &ident, UserMode: h.store.UserMode()})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.store.AuthenticatedIdentity()
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}
	writeJSON(w, http.StatusOK, &MeResponse{Identity: ident, UserMode: h.store.UserMode()})
}

// SetUserMode handles PUT /api/auth/user-mode
func (h *AuthHandler) SetUserMode(w http.ResponseWriter, r *http.Request) {
	var req userModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.UserMode.Valid() {
		writeError(w, http.StatusBadRequest, "user mode must be buyer or seller")
		return
	}
	h.store.SetUserMode(req.UserMode)
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.forgetUser(r.Context())
	h.store.Logout()
	h.logger.Info("signed out")
	w.WriteHeader(http.StatusNoContent)
}

// forgetUser stops live notifications and drops the chat state of the
// signed-in user.
func (h *AuthHandler) forgetUser(ctx context.Context) {
	if err := h.channel.Leave(ctx); err != nil {
		h.logger.Warn("failed to leave notification room", zap.Error(err))
	}
	h.chat.Reset()
	h.store.SetNotifications(nil)
}
