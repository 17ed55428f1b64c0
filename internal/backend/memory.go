package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

// Responder produces the assistant reply for the in-process backend.
type Responder interface {
	Reply(ctx context.Context, mode model.Mode, history []model.Message, chatCtx model.Context) (string, error)
}

// Memory is an in-process Backend used for local development and tests.
type Memory struct {
	responder Responder

	mu            sync.RWMutex
	sessions      map[string]*model.ChatSession
	notifications []model.Notification
}

// NewMemory creates an empty in-process backend. A nil responder answers with a canned reply.
func NewMemory(responder Responder) *Memory {
	return &Memory{
		responder: responder,
		sessions:  make(map[string]*model.ChatSession),
	}
}

// CreateSession creates a new active session.
func (m *Memory) CreateSession(ctx context.Context, mode model.Mode, chatCtx model.Context) (*model.ChatSession, error) {
	if !mode.Valid() {
		return nil, &APIError{Op: "create_session", Status: 400, Message: fmt.Sprintf("unknown mode %q", mode)}
	}
	now := time.Now()

	sess := &model.ChatSession{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Mode:      mode,
		Context:   model.Context{}.Merge(chatCtx),
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	return sess.Clone(), nil
}

// GetSession retrieves a session by ID.
func (m *Memory) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, err := m.lookup("get_session", id)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// ListSessions returns sessions newest first.
func (m *Memory) ListSessions(ctx context.Context, page, pageSize int, status model.SessionStatus) (*model.SessionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	m.mu.RLock()
	var all []model.SessionSummary
	for _, sess := range m.sessions {
		if status != "" && sess.Status != status {
			continue
		}
		all = append(all, sess.Summary())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &model.SessionPage{
		Items:      all[start:end],
		Page:       page,
		TotalPages: totalPages,
	}, nil
}

// DeleteSession removes a session.
func (m *Memory) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup("delete_session", id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// SendMessage appends the user message and the generated assistant reply.
func (m *Memory) SendMessage(ctx context.Context, sessionID, text string, chatCtx model.Context) (*model.Message, error) {
	m.mu.Lock()
	sess, err := m.lookup("send_message", sessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if sess.Status != model.StatusActive {
		m.mu.Unlock()
		return nil, &APIError{Op: "send_message", Status: 409, Message: "session is not active"}
	}
	if len(chatCtx) > 0 {
		sess.Context = sess.Context.Merge(chatCtx)
	}
	sess.Messages = append(sess.Messages, model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	mode := sess.Mode
	history := append([]model.Message(nil), sess.Messages...)
	sessCtx := model.Context{}.Merge(sess.Context)
	m.mu.Unlock()

	reply := cannedReply(mode)
	if m.responder != nil {
		reply, err = m.responder.Reply(ctx, mode, history, sessCtx)
		if err != nil {
			return nil, &APIError{Op: "send_message", Status: 502, Message: err.Error()}
		}
	}

	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
		Actions:   suggestedActions(mode),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err = m.lookup("send_message", sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = append(sess.Messages, msg)
	sess.Stats.MessageCount = len(sess.Messages)
	sess.UpdatedAt = msg.Timestamp

	return &msg, nil
}

// SubmitMessageFeedback overwrites the feedback on one message.
func (m *Memory) SubmitMessageFeedback(ctx context.Context, sessionID, messageID string, fb model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.lookup("message_feedback", sessionID)
	if err != nil {
		return err
	}
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			f := fb
			sess.Messages[i].Feedback = &f
			return nil
		}
	}
	return &APIError{Op: "message_feedback", Status: 404, Message: "message not found"}
}

// SubmitSessionFeedback overwrites the session feedback.
func (m *Memory) SubmitSessionFeedback(ctx context.Context, sessionID string, fb model.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.lookup("session_feedback", sessionID)
	if err != nil {
		return err
	}
	f := fb
	sess.Feedback = &f
	return nil
}

// EndSession marks a session completed.
func (m *Memory) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.lookup("end_session", sessionID)
	if err != nil {
		return err
	}
	sess.Status = model.StatusCompleted
	sess.UpdatedAt = time.Now()
	return nil
}

// UpdateContext shallow-merges patch into the session context.
func (m *Memory) UpdateContext(ctx context.Context, sessionID string, patch model.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.lookup("update_context", sessionID)
	if err != nil {
		return err
	}
	sess.Context = sess.Context.Merge(patch)
	return nil
}

// Notify adds a notification as if the server had created it.
func (m *Memory) Notify(n model.Notification) model.Notification {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV7()).String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append([]model.Notification{n}, m.notifications...)
	return n
}

// ListNotifications returns all notifications newest first.
func (m *Memory) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Notification(nil), m.notifications...), nil
}

// MarkNotificationRead flags one notification read.
func (m *Memory) MarkNotificationRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Read = true
			return nil
		}
	}
	return &APIError{Op: "mark_notification_read", Status: 404}
}

// MarkAllNotificationsRead flags every notification read.
func (m *Memory) MarkAllNotificationsRead(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		m.notifications[i].Read = true
	}
	return nil
}

// DeleteNotification removes one notification.
func (m *Memory) DeleteNotification(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications = append(m.notifications[:i:i], m.notifications[i+1:]...)
			return nil
		}
	}
	return &APIError{Op: "delete_notification", Status: 404}
}

// lookup must be called with m.mu held.
func (m *Memory) lookup(op, id string) (*model.ChatSession, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, &APIError{Op: op, Status: 404, Message: "session not found"}
	}
	return sess, nil
}

func cannedReply(mode model.Mode) string {
	switch mode {
	case model.ModePropertySearch:
		return "Tell me your budget, preferred area and number of bedrooms and I will look for matching listings."
	case model.ModeRecommendation:
		return "Based on what you have shared so far, I will put together a shortlist of homes for you."
	case model.ModeSupport:
		return "Thanks for reaching out. Could you describe the problem in a bit more detail?"
	default:
		return "Happy to help. What would you like to know?"
	}
}

func suggestedActions(mode model.Mode) []model.Action {
	switch mode {
	case model.ModePropertySearch, model.ModeRecommendation:
		return []model.Action{
			{Type: model.ActionScheduleViewing, Label: "Schedule a viewing"},
			{Type: model.ActionSaveProperty, Label: "Save property"},
		}
	case model.ModeSupport:
		return []model.Action{{Type: model.ActionContactAgent, Label: "Contact an agent"}}
	default:
		return []model.Action{{Type: model.ActionRequestInfo, Label: "Request more info"}}
	}
}
