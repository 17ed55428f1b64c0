package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
	"github.com/capitalize-ai/estate-assistant/pkg/tracing"
)

// TokenSource returns the bearer token to attach, or "" for anonymous calls.
type TokenSource func() string

// envelope is the response wrapper used by every backend route.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HTTPClient is the REST implementation of Backend.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	token   TokenSource
	tracer  trace.Tracer
	logger  *logger.Logger
}

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, token TokenSource, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
		tracer:  tracing.Tracer("backend"),
		logger:  log.Named("backend"),
	}
}

type createSessionRequest struct {
	Mode    model.Mode    `json:"mode"`
	Context model.Context `json:"context,omitempty"`
}

type sendMessageRequest struct {
	Message string        `json:"message"`
	Context model.Context `json:"context,omitempty"`
}

// CreateSession handles POST /api/ai-chat/sessions
func (c *HTTPClient) CreateSession(ctx context.Context, mode model.Mode, chatCtx model.Context) (*model.ChatSession, error) {
	var sess model.ChatSession
	err := c.do(ctx, "create_session", http.MethodPost, "/api/ai-chat/sessions",
		&createSessionRequest{Mode: mode, Context: chatCtx}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession handles GET /api/ai-chat/sessions/:id
func (c *HTTPClient) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	var sess model.ChatSession
	if err := c.do(ctx, "get_session", http.MethodGet, sessionPath(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions handles GET /api/ai-chat/sessions?page=&limit=&status=
func (c *HTTPClient) ListSessions(ctx context.Context, page, pageSize int, status model.SessionStatus) (*model.SessionPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	if status != "" {
		q.Set("status", string(status))
	}

	var out model.SessionPage
	if err := c.do(ctx, "list_sessions", http.MethodGet, "/api/ai-chat/sessions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Page == 0 {
		out.Page = page
	}
	return &out, nil
}

// DeleteSession handles DELETE /api/ai-chat/sessions/:id
func (c *HTTPClient) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, sessionPath(id), nil, nil)
}

// SendMessage handles POST /api/ai-chat/sessions/:id/messages
func (c *HTTPClient) SendMessage(ctx context.Context, sessionID, text string, chatCtx model.Context) (*model.Message, error) {
	var msg model.Message
	err := c.do(ctx, "send_message", http.MethodPost, sessionPath(sessionID)+"/messages",
		&sendMessageRequest{Message: text, Context: chatCtx}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// SubmitMessageFeedback handles POST /api/ai-chat/sessions/:id/messages/:messageId/feedback
func (c *HTTPClient) SubmitMessageFeedback(ctx context.Context, sessionID, messageID string, fb model.Feedback) error {
	return c.do(ctx, "message_feedback", http.MethodPost,
		sessionPath(sessionID)+"/messages/"+url.PathEscape(messageID)+"/feedback", &fb, nil)
}

// SubmitSessionFeedback handles POST /api/ai-chat/sessions/:id/feedback
func (c *HTTPClient) SubmitSessionFeedback(ctx context.Context, sessionID string, fb model.Feedback) error {
	return c.do(ctx, "session_feedback", http.MethodPost, sessionPath(sessionID)+"/feedback", &fb, nil)
}

// EndSession handles POST /api/ai-chat/sessions/:id/end
func (c *HTTPClient) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "end_session", http.MethodPost, sessionPath(sessionID)+"/end", nil, nil)
}

// UpdateContext handles PATCH /api/ai-chat/sessions/:id/context
func (c *HTTPClient) UpdateContext(ctx context.Context, sessionID string, patch model.Context) error {
	return c.do(ctx, "update_context", http.MethodPatch, sessionPath(sessionID)+"/context", patch, nil)
}

// ListNotifications handles GET /api/notifications
func (c *HTTPClient) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	if err := c.do(ctx, "list_notifications", http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotificationRead handles PATCH /api/notifications/:id/read
func (c *HTTPClient) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, "mark_notification_read", http.MethodPatch,
		"/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead handles PATCH /api/notifications/read-all
func (c *HTTPClient) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, "mark_all_notifications_read", http.MethodPatch, "/api/notifications/read-all", nil, nil)
}

// DeleteNotification handles DELETE /api/notifications/:id
func (c *HTTPClient) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, "delete_notification", http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil)
}

func sessionPath(id string) string {
	return "/api/ai-chat/sessions/" + url.PathEscape(id)
}

// do performs one backend round trip. It never retries.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.path", path),
	))
	start := time.Now()
	defer func() {
		metrics.RecordBackendCall(op, err, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Debug("backend call failed", zap.String("op", op), zap.Error(err))
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrNetworkFailure, op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: failed to read response: %v", model.ErrNetworkFailure, op, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("%w: %s: malformed response: %v", model.ErrNetworkFailure, op, err)
		}
	}

	if resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s: failed to decode data: %v", model.ErrNetworkFailure, op, err)
	}
	return nil
}
