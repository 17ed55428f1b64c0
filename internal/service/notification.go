package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
)

const joinTimeout = 10 * time.Second

// Transport is a persistent bidirectional event connection. Implementations
// reconnect on their own and report every (re)connection through OnConnect.
type Transport interface {
	Connect(ctx context.Context) error
	OnConnect(fn func())
	OnDisconnect(fn func())
	On(event string, h func(payload []byte))
	Off(event string)
	Emit(ctx context.Context, event string, payload any) error
	Close() error
}

// ChannelState is the live channel state.
type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelJoined
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

var inboundEvents = []string{
	model.EventNotificationAdd,
	model.EventNotificationRead,
	model.EventNotificationDelete,
}

// NotificationChannel keeps the store's notification list in sync with the
// live channel and the backend.
type NotificationChannel struct {
	transport Transport
	backend   backend.Backend
	store     *store.Store
	alerts    *alert.Queue
	logger    *logger.Logger

	mu        sync.Mutex
	state     ChannelState
	listening bool
	started   bool
	// room is the identity whose room was last joined.
	room string
}

// NewNotificationChannel creates a channel over t. A nil transport leaves the
// channel permanently disconnected; the backend operations still work.
func NewNotificationChannel(t Transport, b backend.Backend, st *store.Store, alerts *alert.Queue, log *logger.Logger) *NotificationChannel {
	if log == nil {
		log = logger.Global()
	}
	return &NotificationChannel{
		transport: t,
		backend:   b,
		store:     st,
		alerts:    alerts,
		logger:    log.Named("notifications"),
	}
}

// Start connects the transport. Connection loss afterwards is handled by the transport.
func (c *NotificationChannel) Start(ctx context.Context) error {
	if c.transport == nil {
		return nil
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.setStateLocked(ChannelConnecting)
	c.mu.Unlock()

	c.transport.OnConnect(c.handleConnect)
	c.transport.OnDisconnect(c.handleDisconnect)

	if err := c.transport.Connect(ctx); err != nil {
		c.mu.Lock()
		c.started = false
		c.setStateLocked(ChannelDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("failed to connect live channel: %w", err)
	}
	return nil
}

// Stop unregisters the handlers and closes the transport.
func (c *NotificationChannel) Stop() error {
	if c.transport == nil {
		return nil
	}

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.listening = false
	c.room = ""
	c.setStateLocked(ChannelDisconnected)
	c.mu.Unlock()

	for _, ev := range inboundEvents {
		c.transport.Off(ev)
	}
	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("failed to close live channel: %w", err)
	}
	return nil
}

// State returns the channel state.
func (c *NotificationChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether the device is joined to its room.
func (c *NotificationChannel) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Rejoin joins the room of the current identity, typically after sign in.
func (c *NotificationChannel) Rejoin(ctx context.Context) error {
	if c.transport == nil {
		return nil
	}
	return c.join(ctx)
}

// Leave stops live notifications for the identity that is signing out. The
// inbound handlers are removed and the transport leaves the room.
func (c *NotificationChannel) Leave(ctx context.Context) error {
	if c.transport == nil {
		return nil
	}

	for _, ev := range inboundEvents {
		c.transport.Off(ev)
	}

	c.mu.Lock()
	room := c.room
	c.room = ""
	c.listening = false
	if c.state == ChannelJoined {
		c.setStateLocked(ChannelConnecting)
	}
	c.mu.Unlock()

	if room == "" {
		return nil
	}
	if err := c.transport.Emit(ctx, model.EventLeave, room); err != nil {
		return fmt.Errorf("failed to leave notification room: %w", err)
	}
	c.logger.Info("left notification room", zap.String("identity_id", room))
	return nil
}

func (c *NotificationChannel) handleConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := c.join(ctx); err != nil {
		c.logger.Warn("live channel connected without joining", zap.Error(err))
	}
}

func (c *NotificationChannel) handleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
	c.setStateLocked(ChannelDisconnected)
	c.logger.Info("live channel disconnected")
}

// join registers the inbound handlers and announces the identity. Handlers
// are replaced, never added, so repeated connects leave one per event.
func (c *NotificationChannel) join(ctx context.Context) error {
	ident, ok := c.store.AuthenticatedIdentity()
	if !ok {
		c.mu.Lock()
		c.listening = false
		c.setStateLocked(ChannelConnecting)
		c.mu.Unlock()
		return model.ErrUnauthorized
	}

	c.transport.Off(model.EventNotificationAdd)
	c.transport.On(model.EventNotificationAdd, c.onAdd)
	c.transport.Off(model.EventNotificationRead)
	c.transport.On(model.EventNotificationRead, c.onRead)
	c.transport.Off(model.EventNotificationDelete)
	c.transport.On(model.EventNotificationDelete, c.onDelete)

	if err := c.transport.Emit(ctx, model.EventJoin, ident.ID); err != nil {
		c.mu.Lock()
		c.listening = false
		c.setStateLocked(ChannelConnecting)
		c.mu.Unlock()
		return fmt.Errorf("failed to join notification room: %w", err)
	}

	c.mu.Lock()
	c.listening = true
	c.room = ident.ID
	c.setStateLocked(ChannelJoined)
	c.mu.Unlock()

	c.logger.Info("joined notification room", zap.String("identity_id", ident.ID))
	return nil
}

// accepting reports whether inbound events belong to the signed-in identity.
func (c *NotificationChannel) accepting() bool {
	ident, ok := c.store.AuthenticatedIdentity()
	c.mu.Lock()
	defer c.mu.Unlock()
	return ok && ident.ID == c.room
}

func (c *NotificationChannel) onAdd(payload []byte) {
	metrics.NotificationEvents.WithLabelValues("add").Inc()
	if !c.accepting() {
		c.logger.Debug("dropping notification for a signed-out identity")
		return
	}

	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil || n.ID == "" {
		c.logger.Warn("dropping malformed notification", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	c.store.AddNotification(n)
	c.alerts.Push(model.Alert{
		Title:    n.Title,
		Body:     n.Body,
		Severity: model.SeverityFor(n.Type),
	})
}

func (c *NotificationChannel) onRead(payload []byte) {
	metrics.NotificationEvents.WithLabelValues("read").Inc()
	if !c.accepting() {
		return
	}

	id, err := decodeEventID(payload)
	if err != nil {
		c.logger.Warn("dropping malformed read event", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	c.store.MarkRead(id)
}

func (c *NotificationChannel) onDelete(payload []byte) {
	metrics.NotificationEvents.WithLabelValues("delete").Inc()
	if !c.accepting() {
		return
	}

	id, err := decodeEventID(payload)
	if err != nil {
		c.logger.Warn("dropping malformed delete event", zap.ByteString("payload", payload), zap.Error(err))
		return
	}
	c.store.RemoveNotification(id)
}

// Refresh replaces the local list with the backend's.
func (c *NotificationChannel) Refresh(ctx context.Context) error {
	list, err := c.backend.ListNotifications(ctx)
	if err != nil {
		c.logger.Warn("failed to refresh notifications", zap.Error(err))
		return fmt.Errorf("failed to refresh notifications: %w", err)
	}
	c.store.SetNotifications(list)
	return nil
}

// MarkRead marks one notification read locally and on the backend.
func (c *NotificationChannel) MarkRead(ctx context.Context, id string) error {
	c.store.MarkRead(id)
	if err := c.backend.MarkNotificationRead(ctx, id); err != nil {
		c.logger.Warn("failed to mark notification read", zap.String("notification_id", id), zap.Error(err))
		c.alerts.Error("Could not update notification", "Please try again.")
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification read locally and on the backend.
func (c *NotificationChannel) MarkAllRead(ctx context.Context) error {
	c.store.MarkAllRead()
	if err := c.backend.MarkAllNotificationsRead(ctx); err != nil {
		c.logger.Warn("failed to mark all notifications read", zap.Error(err))
		c.alerts.Error("Could not update notifications", "Please try again.")
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}

// Delete removes a notification. On failure it is put back.
func (c *NotificationChannel) Delete(ctx context.Context, id string) error {
	prev, had := c.store.Notification(id)
	c.store.RemoveNotification(id)

	if err := c.backend.DeleteNotification(ctx, id); err != nil {
		if had {
			c.store.AddNotification(prev)
		}
		c.logger.Warn("failed to delete notification", zap.String("notification_id", id), zap.Error(err))
		c.alerts.Error("Could not delete notification", "Please try again.")
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// setStateLocked must be called with c.mu held.
func (c *NotificationChannel) setStateLocked(s ChannelState) {
	c.state = s
	metrics.ChannelState.Set(float64(s))
}

// decodeEventID accepts either a bare JSON string or an object with an id field.
func decodeEventID(payload []byte) (string, error) {
	var id string
	if err := json.Unmarshal(payload, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return "", err
	}
	if obj.ID == "" {
		return "", fmt.Errorf("event has no id")
	}
	return obj.ID, nil
}
