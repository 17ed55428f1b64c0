// Package nats carries live notification events over a NATS connection.
//
// The device joins its room by publishing its identity id on
// "<prefix>.join" and subscribing to "<prefix>.<identity>.>". The last
// subject token of every delivered message is the event name, for example
// "notify.u1.notification:add". Reconnection is left to nats.go; the
// subscription is restored by the library and OnConnect fires again so the
// caller can re-announce itself.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// DefaultSubjectPrefix is the subject namespace for notification rooms.
const DefaultSubjectPrefix = "notify"

// ErrNotConnected is returned by Emit before Connect succeeds.
var ErrNotConnected = errors.New("nats: not connected")

// Config holds NATS connection configuration.
type Config struct {
	URL           string
	CAFile        string
	CertFile      string
	KeyFile       string
	Token         string
	SubjectPrefix string
}

// Transport is a live event transport over NATS.
type Transport struct {
	cfg    Config
	logger *logger.Logger

	mu           sync.Mutex
	conn         *nats.Conn
	sub          *nats.Subscription
	room         string
	handlers     map[string]func([]byte)
	onConnect    func()
	onDisconnect func()
}

// New creates an unconnected transport.
func New(cfg Config, log *logger.Logger) *Transport {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	return &Transport{
		cfg:      cfg,
		logger:   log.Named("nats"),
		handlers: make(map[string]func([]byte)),
	}
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

// Connect establishes a connection to the NATS server.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := []nats.Option{
		nats.Name("estate-assistant"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			t.logger.Warn("NATS disconnected", zap.Error(err))
			t.fire(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
			t.fire(true)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			t.logger.Error("NATS error", zap.Error(err))
		}),
	}

	// Add TLS configuration if certificates are provided
	if t.cfg.CAFile != "" && t.cfg.CertFile != "" && t.cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(t.cfg.CAFile, t.cfg.CertFile, t.cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if t.cfg.Token != "" {
		opts = append(opts, nats.Token(t.cfg.Token))
	}

	nc, err := nats.Connect(t.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	t.mu.Lock()
	t.conn = nc
	t.mu.Unlock()

	t.logger.Info("NATS connected", zap.String("url", nc.ConnectedUrl()))
	t.fire(true)
	return nil
}

// Emit publishes an event. A join event also moves the room subscription to
// the given identity and a leave event drops it.
func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	nc := t.conn
	t.mu.Unlock()
	if nc == nil || nc.IsClosed() {
		return ErrNotConnected
	}

	switch event {
	case "join":
		room, ok := payload.(string)
		if !ok || room == "" {
			return fmt.Errorf("join requires an identity id, got %T", payload)
		}
		if err := t.subscribeRoom(nc, room); err != nil {
			return err
		}
	case "leave":
		if err := t.leaveRoom(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	if err := nc.Publish(t.cfg.SubjectPrefix+"."+event, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

// Close closes the NATS connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	nc := t.conn
	t.conn = nil
	t.sub = nil
	t.room = ""
	t.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	return nil
}

// IsConnected returns true if connected to NATS.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.conn.IsConnected()
}

func (t *Transport) subscribeRoom(nc *nats.Conn, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sub != nil && t.room == room && t.sub.IsValid() {
		return nil
	}
	if t.sub != nil {
		if err := t.sub.Unsubscribe(); err != nil {
			t.logger.Warn("failed to leave previous room", zap.String("room", t.room), zap.Error(err))
		}
	}

	sub, err := nc.Subscribe(t.roomSubject(room), t.dispatch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room: %w", err)
	}
	t.sub = sub
	t.room = room
	return nil
}

func (t *Transport) leaveRoom() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := t.sub
	t.sub = nil
	t.room = ""
	if sub == nil || !sub.IsValid() {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}
	return nil
}

func (t *Transport) roomSubject(room string) string {
	return t.cfg.SubjectPrefix + "." + room + ".>"
}

// dispatch routes a room message to the handler named by its last subject token.
func (t *Transport) dispatch(msg *nats.Msg) {
	event := msg.Subject
	if i := strings.LastIndexByte(event, '.'); i >= 0 {
		event = event[i+1:]
	}

	t.mu.Lock()
	h := t.handlers[event]
	t.mu.Unlock()

	if h == nil {
		t.logger.Debug("no handler for event", zap.String("subject", msg.Subject))
		return
	}
	h(msg.Data)
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

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
