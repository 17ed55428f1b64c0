// Package ws carries live notification events over a websocket.
//
// Frames are JSON objects of the form {"type": "<event>", "data": <payload>}.
// A dropped connection is re-dialled with exponential backoff until Close.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

const writeTimeout = 10 * time.Second

var (
	// ErrNotConnected is returned by Emit while no connection is open.
	ErrNotConnected = errors.New("websocket: not connected")
	// ErrClosed is returned once the transport has been closed.
	ErrClosed = errors.New("websocket: transport closed")
)

// Event is one websocket frame.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Config configures the websocket transport.
type Config struct {
	URL              string
	Token            func() string
	HandshakeTimeout time.Duration
	// NewBackOff builds the reconnect schedule. Defaults to exponential
	// backoff capped at 30s that never gives up.
	NewBackOff func() backoff.BackOff
}

// Transport is a live event transport over a websocket.
type Transport struct {
	cfg    Config
	logger *logger.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	handlers     map[string]func([]byte)
	onConnect    func()
	onDisconnect func()
	cancel       context.CancelFunc
	closed       bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates an unconnected transport.
func New(cfg Config, log *logger.Logger) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = defaultBackOff
	}
	return &Transport{
		cfg:      cfg,
		logger:   log.Named("ws"),
		handlers: make(map[string]func([]byte)),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// OnConnect sets the callback run after the first connect and every reconnect.
func (t *Transport) OnConnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = fn
}

// OnDisconnect sets the callback run when the connection drops.
func (t *Transport) OnDisconnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// On sets the handler for an event, replacing any previous one.
func (t *Transport) On(event string, h func(payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = h
}

// Off removes the handler for an event.
func (t *Transport) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
}

// Connect dials the server once and then keeps the connection alive in the
// background until Close.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.cancel != nil {
		t.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		cancel()
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		return err
	}

	t.logger.Info("websocket connected", zap.String("url", t.cfg.URL))
	t.fire(true)

	t.wg.Add(1)
	go t.run(runCtx, conn)
	return nil
}

// Emit sends one event frame.
func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteJSON(Event{Type: event, Data: data}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Close stops reconnecting and closes the connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	cancel := t.cancel
	t.cancel = nil
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		_ = conn.Close()
	}
	t.wg.Wait()
	return nil
}

func (t *Transport) run(ctx context.Context, conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		err := t.readLoop(conn)

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		t.logger.Warn("websocket disconnected", zap.Error(err))
		t.fire(false)

		conn, err = t.reconnect(ctx)
		if err != nil {
			return
		}
		t.logger.Info("websocket reconnected", zap.String("url", t.cfg.URL))
		t.fire(true)
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		t.mu.Lock()
		h := t.handlers[ev.Type]
		t.mu.Unlock()
		if h == nil {
			t.logger.Debug("no handler for event", zap.String("type", ev.Type))
			continue
		}
		h(ev.Data)
	}
}

func (t *Transport) reconnect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		c, err := t.dial(ctx)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		if err != nil {
			t.logger.Debug("reconnect attempt failed", zap.Error(err))
			return err
		}
		conn = c
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(t.cfg.NewBackOff(), ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// dial opens a connection and makes it current.
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if t.cfg.Token != nil {
		if tok := t.cfg.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", t.cfg.URL, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return nil, ErrClosed
	}
	t.conn = conn
	return conn, nil
}

func (t *Transport) fire(connected bool) {
	t.mu.Lock()
	fn := t.onDisconnect
	if connected {
		fn = t.onConnect
	}
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}
