package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testServer struct {
	srv      *httptest.Server
	conns    chan *websocket.Conn
	received chan Event
	auth     atomic.Value
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan Event, 16),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth.Store(r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.conns <- conn
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			s.received <- ev
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *testServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func TestTransportRoundTrip(t *testing.T) {
	s := newTestServer(t)
	tr := New(Config{URL: s.url(), Token: func() string { return "tok" }, NewBackOff: fastBackOff}, logger.NewNop())

	var connects atomic.Int32
	tr.OnConnect(func() { connects.Add(1) })
	got := make(chan []byte, 1)
	tr.On("notification:add", func(p []byte) { got <- p })

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()
	assert.Equal(t, int32(1), connects.Load())
	assert.Equal(t, "Bearer tok", s.auth.Load())

	require.NoError(t, tr.Emit(context.Background(), "join", "u1"))
	select {
	case ev := <-s.received:
		assert.Equal(t, "join", ev.Type)
		assert.JSONEq(t, `"u1"`, string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received join")
	}

	server := <-s.conns
	require.NoError(t, server.WriteJSON(Event{Type: "notification:add", Data: json.RawMessage(`{"id":"n1"}`)}))
	select {
	case p := <-got:
		assert.JSONEq(t, `{"id":"n1"}`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestTransportReconnects(t *testing.T) {
	s := newTestServer(t)
	tr := New(Config{URL: s.url(), NewBackOff: fastBackOff}, logger.NewNop())

	var connects, disconnects atomic.Int32
	tr.OnConnect(func() { connects.Add(1) })
	tr.OnDisconnect(func() { disconnects.Add(1) })

	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	first := <-s.conns
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool { return connects.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), disconnects.Load())
	require.NoError(t, tr.Emit(context.Background(), "join", "u1"))
}

func TestTransportConnectFailure(t *testing.T) {
	s := newTestServer(t)
	url := s.url()
	s.srv.Close()

	tr := New(Config{URL: url}, logger.NewNop())
	assert.Error(t, tr.Connect(context.Background()))
	require.NoError(t, tr.Close())
}

func TestEmitWithoutConnection(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1"}, logger.NewNop())
	assert.ErrorIs(t, tr.Emit(context.Background(), "join", "u1"), ErrNotConnected)
}

func TestConnectAfterClose(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1"}, logger.NewNop())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Connect(context.Background()), ErrClosed)
}

func TestOnReplacesHandler(t *testing.T) {
	tr := New(Config{}, logger.NewNop())
	tr.On("a", func([]byte) {})
	tr.On("a", func([]byte) {})
	assert.Len(t, tr.handlers, 1)
	tr.Off("a")
	assert.Empty(t, tr.handlers)
}
