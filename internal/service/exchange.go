// Package service coordinates chat sessions, message exchange, history paging
// and live notifications on top of the backend and the shared store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
)

// ErrEmptyMessage is returned when sending blank text.
var ErrEmptyMessage = errors.New("message cannot be empty")

// contextSyncTimeout bounds the fire-and-forget context update.
const contextSyncTimeout = 15 * time.Second

// cachedSession is one entry of the read-through session cache. A stale entry
// is refetched on the next read.
type cachedSession struct {
	session *model.ChatSession
	stale   bool
}

// SessionState reports who is signed in and which session is on screen.
type SessionState interface {
	CurrentChatID() string
	AuthenticatedIdentity() (*model.Identity, bool)
}

// Exchange sends messages and feedback into sessions and keeps the local
// session cache consistent with the backend.
type Exchange struct {
	backend backend.Backend
	alerts  *alert.Queue
	state   SessionState
	logger  *logger.Logger

	mu        sync.Mutex
	cache     map[string]*cachedSession
	closed    map[string]bool
	composing map[string]int

	wg sync.WaitGroup
}

// NewExchange creates the message exchange engine. state reports the session
// the user is looking at; replies for other sessions are not merged. A nil
// log uses the global logger.
func NewExchange(b backend.Backend, alerts *alert.Queue, state SessionState, log *logger.Logger) *Exchange {
	if log == nil {
		log = logger.Global()
	}
	return &Exchange{
		backend:   b,
		alerts:    alerts,
		state:     state,
		logger:    log.Named("exchange"),
		cache:     make(map[string]*cachedSession),
		closed:    make(map[string]bool),
		composing: make(map[string]int),
	}
}

// Session returns the session, fetching it when it is not cached or stale.
func (e *Exchange) Session(ctx context.Context, id string) (*model.ChatSession, error) {
	if id == "" {
		return nil, model.ErrNoActiveSession
	}

	e.mu.Lock()
	if c, ok := e.cache[id]; ok && !c.stale {
		sess := c.session.Clone()
		e.mu.Unlock()
		return sess, nil
	}
	e.mu.Unlock()

	sess, err := e.backend.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[id] = &cachedSession{session: sess}
	if sess.Status != model.StatusActive {
		e.closed[id] = true
	}
	return sess.Clone(), nil
}

// Cached returns the cached session without touching the network.
func (e *Exchange) Cached(id string) (*model.ChatSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cache[id]
	if !ok {
		return nil, false
	}
	return c.session.Clone(), true
}

// Prime stores a session the caller just received from the backend.
func (e *Exchange) Prime(sess *model.ChatSession) {
	if sess == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[sess.ID] = &cachedSession{session: sess.Clone()}
}

// Evict drops a session from the cache.
func (e *Exchange) Evict(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, id)
	delete(e.closed, id)
}

// Composing reports whether a reply is in flight for the session.
func (e *Exchange) Composing(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composing[sessionID] > 0
}

// Send posts a user message and appends the assistant reply to the cached session.
func (e *Exchange) Send(ctx context.Context, sessionID, text string, extra model.Context) (*model.Message, error) {
	if sessionID == "" {
		return nil, model.ErrNoActiveSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	e.mu.Lock()
	if e.closed[sessionID] {
		e.mu.Unlock()
		return nil, model.ErrSessionClosed
	}
	entry := e.entryLocked(sessionID)
	userMsg := model.Message{
		ID:        "local-" + uuid.NewString(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: nextTimestamp(entry.session, time.Now()),
	}
	entry.session.Messages = append(entry.session.Messages, userMsg)
	chatCtx := entry.session.Context.Merge(extra)
	e.composing[sessionID]++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.composing[sessionID]--; e.composing[sessionID] <= 0 {
			delete(e.composing, sessionID)
		}
		e.mu.Unlock()
	}()

	log := e.sessionLogger(sessionID)

	reply, err := e.backend.SendMessage(ctx, sessionID, text, chatCtx)
	if err != nil {
		metrics.MessagesSent.WithLabelValues("error").Inc()
		e.mu.Lock()
		e.markFailedLocked(sessionID, userMsg.ID)
		if errors.Is(err, model.ErrSessionClosed) {
			e.closed[sessionID] = true
		}
		e.mu.Unlock()
		log.Error("failed to send message", zap.Error(err))
		if errors.Is(err, model.ErrSessionClosed) {
			return nil, model.ErrSessionClosed
		}
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues("success").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.cache[sessionID]
	if !ok {
		// Deleted while the reply was in flight.
		return reply, nil
	}
	if cur := e.currentID(); cur != "" && cur != sessionID {
		entry.stale = true
		log.Debug("reply arrived for an inactive session; refetching on next view")
		return reply, nil
	}

	msg := *reply
	msg.Timestamp = nextTimestamp(entry.session, msg.Timestamp)
	entry.session.Messages = append(entry.session.Messages, msg)
	entry.session.Context = chatCtx
	entry.session.Stats.MessageCount = len(entry.session.Messages)
	entry.session.UpdatedAt = msg.Timestamp

	return &msg, nil
}

// MergeContext applies patch to the local context right away and sends it to
// the backend in the background.
func (e *Exchange) MergeContext(sessionID string, patch model.Context) error {
	if sessionID == "" {
		return model.ErrNoActiveSession
	}
	if len(patch) == 0 {
		return nil
	}

	e.mu.Lock()
	entry := e.entryLocked(sessionID)
	entry.session.Context = entry.session.Context.Merge(patch)
	e.mu.Unlock()

	patch = model.Context{}.Merge(patch)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), contextSyncTimeout)
		defer cancel()
		if err := e.backend.UpdateContext(ctx, sessionID, patch); err != nil {
			e.sessionLogger(sessionID).Warn("failed to sync session context", zap.Error(err))
			e.alerts.Error("Search preferences not saved", "Your latest preferences may not be used. Please try again.")
		}
	}()
	return nil
}

// SubmitMessageFeedback rates one message. A repeat submission overwrites.
func (e *Exchange) SubmitMessageFeedback(ctx context.Context, sessionID, messageID string, fb model.Feedback) error {
	if sessionID == "" {
		return model.ErrNoActiveSession
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	if err := e.backend.SubmitMessageFeedback(ctx, sessionID, messageID, fb); err != nil {
		e.logger.Warn("failed to submit message feedback",
			zap.String("session_id", sessionID), zap.String("message_id", messageID), zap.Error(err))
		e.alerts.Error("Feedback not sent", "We could not save your rating. Please try again.")
		return fmt.Errorf("failed to submit message feedback: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache[sessionID]; ok {
		for i := range c.session.Messages {
			if c.session.Messages[i].ID == messageID {
				f := fb
				c.session.Messages[i].Feedback = &f
				break
			}
		}
	}
	return nil
}

// SubmitSessionFeedback rates the whole session. A repeat submission overwrites.
func (e *Exchange) SubmitSessionFeedback(ctx context.Context, sessionID string, fb model.Feedback) error {
	if sessionID == "" {
		return model.ErrNoActiveSession
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	if err := e.backend.SubmitSessionFeedback(ctx, sessionID, fb); err != nil {
		e.logger.Warn("failed to submit session feedback",
			zap.String("session_id", sessionID), zap.Error(err))
		e.alerts.Error("Feedback not sent", "We could not save your rating. Please try again.")
		return fmt.Errorf("failed to submit session feedback: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.cache[sessionID]; ok {
		f := fb
		c.session.Feedback = &f
	}
	return nil
}

// EndSession completes a session; later sends into it fail with ErrSessionClosed.
func (e *Exchange) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return model.ErrNoActiveSession
	}
	if err := e.backend.EndSession(ctx, sessionID); err != nil {
		e.logger.Error("failed to end session", zap.String("session_id", sessionID), zap.Error(err))
		e.alerts.Error("Could not end conversation", "Please try again.")
		return fmt.Errorf("failed to end session: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed[sessionID] = true
	if c, ok := e.cache[sessionID]; ok {
		c.session.Status = model.StatusCompleted
	}
	return nil
}

// Reset forgets every cached session, for example after sign out. Replies
// still in flight are not merged.
func (e *Exchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*cachedSession)
	e.closed = make(map[string]bool)
}

// Wait blocks until background context updates finish.
func (e *Exchange) Wait() {
	e.wg.Wait()
}

func (e *Exchange) currentID() string {
	if e.state == nil {
		return ""
	}
	return e.state.CurrentChatID()
}

func (e *Exchange) sessionLogger(sessionID string) *logger.Logger {
	identityID := ""
	if e.state != nil {
		if ident, ok := e.state.AuthenticatedIdentity(); ok {
			identityID = ident.ID
		}
	}
	return e.logger.WithSession(identityID, sessionID)
}

// entryLocked returns the cache entry, creating a stale placeholder for
// sessions that were never loaded. Must be called with e.mu held.
func (e *Exchange) entryLocked(id string) *cachedSession {
	c, ok := e.cache[id]
	if !ok {
		c = &cachedSession{
			session: &model.ChatSession{ID: id, Status: model.StatusActive, Context: model.Context{}},
			stale:   true,
		}
		e.cache[id] = c
	}
	if c.session.Context == nil {
		c.session.Context = model.Context{}
	}
	return c
}

func (e *Exchange) markFailedLocked(sessionID, messageID string) {
	c, ok := e.cache[sessionID]
	if !ok {
		return
	}
	for i := range c.session.Messages {
		if c.session.Messages[i].ID == messageID {
			c.session.Messages[i].DeliveryFailed = true
			return
		}
	}
}

// nextTimestamp keeps timestamps strictly increasing within a session.
func nextTimestamp(sess *model.ChatSession, t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	if n := len(sess.Messages); n > 0 {
		last := sess.Messages[n-1].Timestamp
		if !t.After(last) {
			t = last.Add(time.Microsecond)
		}
	}
	return t
}
