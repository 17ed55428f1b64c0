// Package backend talks to the marketplace backend that owns chat sessions
// and notifications.
package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

// Backend is the set of remote operations the client consumes.
type Backend interface {
	CreateSession(ctx context.Context, mode model.Mode, chatCtx model.Context) (*model.ChatSession, error)
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListSessions(ctx context.Context, page, pageSize int, status model.SessionStatus) (*model.SessionPage, error)
	DeleteSession(ctx context.Context, id string) error
	SendMessage(ctx context.Context, sessionID, text string, chatCtx model.Context) (*model.Message, error)
	SubmitMessageFeedback(ctx context.Context, sessionID, messageID string, fb model.Feedback) error
	SubmitSessionFeedback(ctx context.Context, sessionID string, fb model.Feedback) error
	EndSession(ctx context.Context, sessionID string) error
	UpdateContext(ctx context.Context, sessionID string, patch model.Context) error

	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
}

// Unwrap maps the status onto the client error taxonomy.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return model.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return model.ErrNotFound
	case e.Status == http.StatusGone || e.Status == http.StatusConflict:
		return model.ErrSessionClosed
	case e.Status >= http.StatusInternalServerError:
		return model.ErrNetworkFailure
	}
	return nil
}
