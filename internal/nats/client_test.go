package nats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

func TestDispatchRoutesByLastToken(t *testing.T) {
	tr := New(Config{}, logger.NewNop())

	var got []string
	tr.On("notification:add", func(p []byte) { got = append(got, "add:"+string(p)) })
	tr.On("notification:read", func(p []byte) { got = append(got, "read:"+string(p)) })

	tr.dispatch(&nats.Msg{Subject: "notify.u1.notification:add", Data: []byte(`{"id":"n1"}`)})
	tr.dispatch(&nats.Msg{Subject: "notify.u1.notification:read", Data: []byte(`"n1"`)})
	tr.dispatch(&nats.Msg{Subject: "notify.u1.notification:delete", Data: []byte(`"n1"`)})

	assert.Equal(t, []string{`add:{"id":"n1"}`, `read:"n1"`}, got)
}

func TestOnReplacesHandler(t *testing.T) {
	tr := New(Config{}, logger.NewNop())

	calls := 0
	tr.On("notification:add", func([]byte) { calls += 10 })
	tr.On("notification:add", func([]byte) { calls++ })
	tr.dispatch(&nats.Msg{Subject: "notify.u1.notification:add"})
	assert.Equal(t, 1, calls)

	tr.Off("notification:add")
	tr.dispatch(&nats.Msg{Subject: "notify.u1.notification:add"})
	assert.Equal(t, 1, calls)
}

func TestRoomSubject(t *testing.T) {
	assert.Equal(t, "notify.u1.>", New(Config{}, logger.NewNop()).roomSubject("u1"))
	assert.Equal(t, "estate.u1.>", New(Config{SubjectPrefix: "estate"}, logger.NewNop()).roomSubject("u1"))
}

func TestEmitBeforeConnect(t *testing.T) {
	tr := New(Config{}, logger.NewNop())
	err := tr.Emit(context.Background(), "join", "u1")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Close())
}

func TestCreateTLSConfigMissingFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := createTLSConfig(filepath.Join(dir, "ca.pem"), filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem"))
	assert.Error(t, err)
}

func TestLeaveRoomWithoutSubscription(t *testing.T) {
	tr := New(Config{}, logger.NewNop())
	tr.room = "u1"

	require.NoError(t, tr.leaveRoom())
	assert.Empty(t, tr.room)
	assert.Nil(t, tr.sub)
}
