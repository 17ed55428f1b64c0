package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

func newChannel(t *testing.T, h *harness) (*NotificationChannel, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	ch := NewNotificationChannel(tr, h.backend, h.store, h.alerts, logger.NewNop())
	t.Cleanup(func() { _ = ch.Stop() })
	return ch, tr
}

func notificationPayload(t *testing.T, id string) []byte {
	t.Helper()
	raw, err := json.Marshal(model.Notification{
		ID:        id,
		Type:      model.NotificationProperty,
		Title:     "Price drop",
		Body:      "A saved home is now cheaper",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return raw
}

func TestNotificationChannelConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("connect joins the identity room", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)

		require.NoError(t, ch.Start(ctx))

		assert.Equal(t, ChannelJoined, ch.State())
		assert.True(t, ch.Listening())
		emits := tr.emitLog()
		require.Len(t, emits, 1)
		assert.Equal(t, model.EventJoin, emits[0].event)
		assert.Equal(t, "u1", emits[0].payload)
	})

	t.Run("reconnecting leaves one handler per event", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		tr.drop()
		tr.connect()
		tr.drop()
		tr.connect()

		for _, ev := range inboundEvents {
			assert.Equal(t, 1, tr.handlerCount(ev), ev)
		}
		assert.Len(t, tr.emitLog(), 3)
		assert.Equal(t, ChannelJoined, ch.State())
	})

	t.Run("disconnect clears listening and keeps handlers", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		tr.drop()

		assert.False(t, ch.Listening())
		assert.Equal(t, ChannelDisconnected, ch.State())
		for _, ev := range inboundEvents {
			assert.Equal(t, 1, tr.handlerCount(ev), ev)
		}
	})

	t.Run("anonymous device neither joins nor registers", func(t *testing.T) {
		h := newHarness(t)
		ch, tr := newChannel(t, h)

		require.NoError(t, ch.Start(ctx))

		assert.Empty(t, tr.emitLog())
		for _, ev := range inboundEvents {
			assert.Zero(t, tr.handlerCount(ev), ev)
		}
		assert.False(t, ch.Listening())
		assert.ErrorIs(t, ch.Rejoin(ctx), model.ErrUnauthorized)
	})

	t.Run("sign in then rejoin", func(t *testing.T) {
		h := newHarness(t)
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		h.signIn("u2")
		require.NoError(t, ch.Rejoin(ctx))

		assert.True(t, ch.Listening())
		assert.Equal(t, "u2", tr.emitLog()[0].payload)
	})

	t.Run("transport connect failure is returned", func(t *testing.T) {
		h := newHarness(t)
		ch, tr := newChannel(t, h)
		tr.connectErr = errors.New("dial refused")

		require.Error(t, ch.Start(ctx))
		assert.Equal(t, ChannelDisconnected, ch.State())
	})

	t.Run("join failure leaves the channel connecting", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		tr.emitErr = errors.New("write failed")

		require.NoError(t, ch.Start(ctx))
		assert.Equal(t, ChannelConnecting, ch.State())
		assert.False(t, ch.Listening())
	})
}

func TestNotificationChannelInbound(t *testing.T) {
	ctx := context.Background()

	t.Run("add grows the list by one and raises an alert", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))
		before := len(h.store.Notifications())

		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))

		assert.Len(t, h.store.Notifications(), before+1)
		active := h.alerts.Active()
		require.Len(t, active, 1)
		assert.Equal(t, "Price drop", active[0].Title)
	})

	t.Run("malformed add is dropped", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		tr.deliver(model.EventNotificationAdd, []byte(`{"title":`))

		assert.Empty(t, h.store.Notifications())
		assert.Zero(t, h.alerts.Len())
	})

	t.Run("read accepts a bare id or an object", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n2"))

		tr.deliver(model.EventNotificationRead, []byte(`"n1"`))
		tr.deliver(model.EventNotificationRead, []byte(`{"id":"n2"}`))

		assert.Zero(t, h.store.UnreadCount())
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))

		tr.deliver(model.EventNotificationDelete, []byte(`"n1"`))
		tr.deliver(model.EventNotificationDelete, []byte(`"n1"`))

		assert.Empty(t, h.store.Notifications())
	})
}

func TestNotificationChannelSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("leave then logout receives nothing", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		require.NoError(t, ch.Leave(ctx))
		h.store.Logout()
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))

		assert.Empty(t, h.store.Notifications())
		assert.Zero(t, h.alerts.Len())
		assert.False(t, ch.Listening())
		assert.Equal(t, ChannelConnecting, ch.State())
		for _, ev := range inboundEvents {
			assert.Zero(t, tr.handlerCount(ev), ev)
		}

		emits := tr.emitLog()
		require.Len(t, emits, 2)
		assert.Equal(t, model.EventLeave, emits[1].event)
		assert.Equal(t, "u1", emits[1].payload)
	})

	t.Run("events after logout are dropped even with handlers installed", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))
		require.Len(t, h.store.Notifications(), 1)

		h.store.Logout()
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n2"))
		h.store.AddNotification(model.Notification{ID: "n3"})
		tr.deliver(model.EventNotificationDelete, []byte(`"n3"`))

		list := h.store.Notifications()
		require.Len(t, list, 1)
		assert.Equal(t, "n3", list[0].ID)
		assert.Equal(t, 1, h.alerts.Len())
	})

	t.Run("events for a previous identity are dropped until rejoin", func(t *testing.T) {
		h := newHarness(t)
		h.signIn("u1")
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		h.signIn("u2")
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n1"))
		assert.Empty(t, h.store.Notifications())

		require.NoError(t, ch.Rejoin(ctx))
		tr.deliver(model.EventNotificationAdd, notificationPayload(t, "n2"))
		assert.Len(t, h.store.Notifications(), 1)
	})

	t.Run("leave without a joined room emits nothing", func(t *testing.T) {
		h := newHarness(t)
		ch, tr := newChannel(t, h)
		require.NoError(t, ch.Start(ctx))

		require.NoError(t, ch.Leave(ctx))
		assert.Empty(t, tr.emitLog())
	})
}

func TestNotificationChannelOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh replaces the local list", func(t *testing.T) {
		h := newHarness(t)
		ch, _ := newChannel(t, h)
		h.store.AddNotification(model.Notification{ID: "stale"})
		h.backend.Notify(model.Notification{ID: "a", Title: "A"})
		h.backend.Notify(model.Notification{ID: "b", Title: "B"})

		require.NoError(t, ch.Refresh(ctx))

		list := h.store.Notifications()
		require.Len(t, list, 2)
		assert.Equal(t, "b", list[0].ID)
	})

	t.Run("mark read and mark all read reach the backend", func(t *testing.T) {
		h := newHarness(t)
		ch, _ := newChannel(t, h)
		h.backend.Notify(model.Notification{ID: "a"})
		h.backend.Notify(model.Notification{ID: "b"})
		require.NoError(t, ch.Refresh(ctx))

		require.NoError(t, ch.MarkRead(ctx, "a"))
		assert.Equal(t, 1, h.store.UnreadCount())

		require.NoError(t, ch.MarkAllRead(ctx))
		assert.Zero(t, h.store.UnreadCount())

		remote, err := h.backend.Memory.ListNotifications(ctx)
		require.NoError(t, err)
		for _, n := range remote {
			assert.True(t, n.Read, n.ID)
		}
	})

	t.Run("failed delete restores the entry and alerts", func(t *testing.T) {
		h := newHarness(t)
		ch, _ := newChannel(t, h)
		h.backend.Notify(model.Notification{ID: "a"})
		require.NoError(t, ch.Refresh(ctx))
		h.backend.failOn("delete_notification", &backend.APIError{Op: "delete_notification", Status: 500})

		require.Error(t, ch.Delete(ctx, "a"))

		_, ok := h.store.Notification("a")
		assert.True(t, ok)
		assert.Equal(t, 1, h.alerts.Len())
	})

	t.Run("failed mark read alerts", func(t *testing.T) {
		h := newHarness(t)
		ch, _ := newChannel(t, h)
		h.backend.failOn("mark_read", &backend.APIError{Op: "mark_notification_read", Status: 503})

		err := ch.MarkRead(ctx, "a")
		assert.ErrorIs(t, err, model.ErrNetworkFailure)
		assert.Equal(t, 1, h.alerts.Len())
	})
}

func TestNotificationChannelWithoutTransport(t *testing.T) {
	h := newHarness(t)
	ch := NewNotificationChannel(nil, h.backend, h.store, h.alerts, logger.NewNop())

	require.NoError(t, ch.Start(context.Background()))
	assert.Equal(t, ChannelDisconnected, ch.State())
	require.NoError(t, ch.Stop())
}
