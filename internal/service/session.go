package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
)

// ResolveState is the per-device session resolution state.
type ResolveState int

const (
	StateUninitialized ResolveState = iota
	StateResolving
	StateReady
)

func (s ResolveState) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ChatManager decides which session the device is talking in.
type ChatManager struct {
	backend  backend.Backend
	store    *store.Store
	exchange *Exchange
	history  *HistoryPager
	alerts   *alert.Queue
	logger   *logger.Logger

	mu    sync.Mutex
	state ResolveState
	mode  model.Mode
}

// NewChatManager creates a manager. An invalid defaultMode falls back to property search.
func NewChatManager(b backend.Backend, st *store.Store, ex *Exchange, h *HistoryPager, alerts *alert.Queue, defaultMode model.Mode, log *logger.Logger) *ChatManager {
	if !defaultMode.Valid() {
		defaultMode = model.ModePropertySearch
	}
	if log == nil {
		log = logger.Global()
	}
	return &ChatManager{
		backend:  b,
		store:    st,
		exchange: ex,
		history:  h,
		alerts:   alerts,
		logger:   log.Named("chat"),
		mode:     defaultMode,
	}
}

// State returns the resolution state.
func (m *ChatManager) State() ResolveState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the mode new sessions are created in.
func (m *ChatManager) Mode() model.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Current returns the current session id, or "" when none is adopted.
func (m *ChatManager) Current() string {
	return m.store.CurrentChatID()
}

// Resolve picks the session for this device: the stored pointer if present,
// else the newest active session of an authenticated user, else a new one.
// A call made while another resolution is running returns immediately.
func (m *ChatManager) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	switch m.state {
	case StateResolving:
		m.mu.Unlock()
		m.logger.Debug("resolve already in flight")
		return m.store.CurrentChatID(), nil
	case StateReady:
		if id := m.store.CurrentChatID(); id != "" {
			m.mu.Unlock()
			return id, nil
		}
	}
	m.state = StateResolving
	mode := m.mode
	m.mu.Unlock()

	id, err := m.resolve(ctx, mode)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUninitialized
		m.logger.Error("failed to resolve session", zap.Error(err))
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	m.state = StateReady
	return id, nil
}

func (m *ChatManager) resolve(ctx context.Context, mode model.Mode) (string, error) {
	if id := m.store.CurrentChatID(); id != "" {
		m.logger.Debug("resuming stored session", zap.String("session_id", id))
		return id, nil
	}

	if ident, ok := m.store.AuthenticatedIdentity(); ok {
		page, err := m.backend.ListSessions(ctx, 1, 1, model.StatusActive)
		if err != nil {
			return "", fmt.Errorf("failed to list active sessions: %w", err)
		}
		if len(page.Items) > 0 {
			id := page.Items[0].ID
			m.store.SetCurrentChatID(id)
			m.logger.WithSession(ident.ID, id).Info("adopted latest active session")
			return id, nil
		}
	}

	return m.createAndAdopt(ctx, mode)
}

// SwitchMode starts a fresh session in newMode. Sessions never change mode.
func (m *ChatManager) SwitchMode(ctx context.Context, newMode model.Mode) (string, error) {
	if !newMode.Valid() {
		return "", fmt.Errorf("unknown chat mode %q", newMode)
	}

	m.mu.Lock()
	if m.mode == newMode && m.state == StateReady && m.store.CurrentChatID() != "" {
		m.mu.Unlock()
		return m.store.CurrentChatID(), nil
	}
	m.mode = newMode
	m.mu.Unlock()

	return m.startNew(ctx, newMode)
}

// SelectSession adopts an existing session. Selecting the current one does nothing.
func (m *ChatManager) SelectSession(id string) error {
	if id == "" {
		return model.ErrNoActiveSession
	}
	if id == m.store.CurrentChatID() {
		m.logger.Debug("session already current", zap.String("session_id", id))
		return nil
	}

	m.store.SetCurrentChatID(id)
	m.mu.Lock()
	m.state = StateReady
	if cached, ok := m.exchange.Cached(id); ok && cached.Mode.Valid() {
		m.mode = cached.Mode
	}
	m.mu.Unlock()
	return nil
}

// StartNew always creates a session in the current mode and adopts it.
func (m *ChatManager) StartNew(ctx context.Context) (string, error) {
	return m.startNew(ctx, m.Mode())
}

func (m *ChatManager) startNew(ctx context.Context, mode model.Mode) (string, error) {
	id, err := m.createAndAdopt(ctx, mode)
	if err != nil {
		m.logger.Error("failed to start session", zap.String("mode", string(mode)), zap.Error(err))
		return "", err
	}

	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
	return id, nil
}

// DeleteSession deletes a session. The current pointer is left alone even
// when it names the deleted session; the caller picks a replacement.
func (m *ChatManager) DeleteSession(ctx context.Context, id string) error {
	if err := m.backend.DeleteSession(ctx, id); err != nil {
		m.sessionLogger(id).Error("failed to delete session", zap.Error(err))
		m.alerts.Error("Could not delete conversation", "Please try again.")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.exchange.Evict(id)
	m.history.Invalidate()
	m.sessionLogger(id).Info("session deleted")
	return nil
}

// Reset forgets the current session, the cached sessions and the loaded
// history so the next Resolve starts over. Called when the identity changes.
func (m *ChatManager) Reset() {
	m.mu.Lock()
	m.state = StateUninitialized
	m.store.SetCurrentChatID("")
	m.mu.Unlock()

	m.exchange.Reset()
	m.history.Reset()
}

func (m *ChatManager) createAndAdopt(ctx context.Context, mode model.Mode) (string, error) {
	sess, err := m.backend.CreateSession(ctx, mode, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	metrics.SessionsCreated.WithLabelValues(string(mode)).Inc()

	m.exchange.Prime(sess)
	m.store.SetCurrentChatID(sess.ID)
	m.history.Invalidate()

	m.sessionLogger(sess.ID).Info("session created", zap.String("mode", string(mode)))
	return sess.ID, nil
}

func (m *ChatManager) sessionLogger(sessionID string) *logger.Logger {
	identityID := ""
	if ident, ok := m.store.AuthenticatedIdentity(); ok {
		identityID = ident.ID
	}
	return m.logger.WithSession(identityID, sessionID)
}
