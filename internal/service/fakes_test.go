package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/capitalize-ai/estate-assistant/internal/alert"
	"github.com/capitalize-ai/estate-assistant/internal/backend"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingBackend wraps the in-memory backend, counts calls per operation and
// can fail or hold any operation.
type countingBackend struct {
	*backend.Memory

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	gates map[string]chan struct{}
}

func newCountingBackend() *countingBackend {
	return &countingBackend{
		Memory: backend.NewMemory(nil),
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		gates:  make(map[string]chan struct{}),
	}
}

func (b *countingBackend) enter(op string) error {
	b.mu.Lock()
	b.calls[op]++
	gate := b.gates[op]
	err := b.fail[op]
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (b *countingBackend) failOn(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, op)
		return
	}
	b.fail[op] = err
}

// hold makes op block until the returned func is called.
func (b *countingBackend) hold(op string) func() {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[op] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.gates, op)
			b.mu.Unlock()
			close(gate)
		})
	}
}

func (b *countingBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *countingBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

func (b *countingBackend) CreateSession(ctx context.Context, mode model.Mode, chatCtx model.Context) (*model.ChatSession, error) {
	if err := b.enter("create"); err != nil {
		return nil, err
	}
	return b.Memory.CreateSession(ctx, mode, chatCtx)
}

func (b *countingBackend) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	if err := b.enter("get"); err != nil {
		return nil, err
	}
	return b.Memory.GetSession(ctx, id)
}

func (b *countingBackend) ListSessions(ctx context.Context, page, pageSize int, status model.SessionStatus) (*model.SessionPage, error) {
	if err := b.enter("list"); err != nil {
		return nil, err
	}
	return b.Memory.ListSessions(ctx, page, pageSize, status)
}

func (b *countingBackend) DeleteSession(ctx context.Context, id string) error {
	if err := b.enter("delete"); err != nil {
		return err
	}
	return b.Memory.DeleteSession(ctx, id)
}

func (b *countingBackend) SendMessage(ctx context.Context, sessionID, text string, chatCtx model.Context) (*model.Message, error) {
	if err := b.enter("send"); err != nil {
		return nil, err
	}
	return b.Memory.SendMessage(ctx, sessionID, text, chatCtx)
}

func (b *countingBackend) SubmitMessageFeedback(ctx context.Context, sessionID, messageID string, fb model.Feedback) error {
	if err := b.enter("message_feedback"); err != nil {
		return err
	}
	return b.Memory.SubmitMessageFeedback(ctx, sessionID, messageID, fb)
}

func (b *countingBackend) SubmitSessionFeedback(ctx context.Context, sessionID string, fb model.Feedback) error {
	if err := b.enter("session_feedback"); err != nil {
		return err
	}
	return b.Memory.SubmitSessionFeedback(ctx, sessionID, fb)
}

func (b *countingBackend) EndSession(ctx context.Context, sessionID string) error {
	if err := b.enter("end"); err != nil {
		return err
	}
	return b.Memory.EndSession(ctx, sessionID)
}

func (b *countingBackend) UpdateContext(ctx context.Context, sessionID string, patch model.Context) error {
	if err := b.enter("update_context"); err != nil {
		return err
	}
	return b.Memory.UpdateContext(ctx, sessionID, patch)
}

func (b *countingBackend) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	if err := b.enter("list_notifications"); err != nil {
		return nil, err
	}
	return b.Memory.ListNotifications(ctx)
}

func (b *countingBackend) MarkNotificationRead(ctx context.Context, id string) error {
	if err := b.enter("mark_read"); err != nil {
		return err
	}
	return b.Memory.MarkNotificationRead(ctx, id)
}

func (b *countingBackend) MarkAllNotificationsRead(ctx context.Context) error {
	if err := b.enter("mark_all_read"); err != nil {
		return err
	}
	return b.Memory.MarkAllNotificationsRead(ctx)
}

func (b *countingBackend) DeleteNotification(ctx context.Context, id string) error {
	if err := b.enter("delete_notification"); err != nil {
		return err
	}
	return b.Memory.DeleteNotification(ctx, id)
}

// fakeTransport stacks handlers on every On call so that duplicate
// registration shows up as more than one handler per event.
type fakeTransport struct {
	mu           sync.Mutex
	handlers     map[string][]func([]byte)
	onConnect    func()
	onDisconnect func()
	emits        []emitted
	emitErr      error
	connectErr   error
	closed       bool
}

type emitted struct {
	event   string
	payload any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func([]byte))}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connect()
	return nil
}

func (t *fakeTransport) OnConnect(fn func())    { t.mu.Lock(); t.onConnect = fn; t.mu.Unlock() }
func (t *fakeTransport) OnDisconnect(fn func()) { t.mu.Lock(); t.onDisconnect = fn; t.mu.Unlock() }

func (t *fakeTransport) On(event string, h func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = append(t.handlers[event], h)
}

func (t *fakeTransport) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
}

func (t *fakeTransport) Emit(ctx context.Context, event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.emitErr != nil {
		return t.emitErr
	}
	t.emits = append(t.emits, emitted{event: event, payload: payload})
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) connect() {
	t.mu.Lock()
	fn := t.onConnect
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTransport) drop() {
	t.mu.Lock()
	fn := t.onDisconnect
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *fakeTransport) deliver(event string, payload []byte) {
	t.mu.Lock()
	hs := append(([]func([]byte))(nil), t.handlers[event]...)
	t.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (t *fakeTransport) handlerCount(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers[event])
}

func (t *fakeTransport) emitLog() []emitted {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]emitted(nil), t.emits...)
}

// harness wires the services the way cmd/assistant does.
type harness struct {
	backend  *countingBackend
	store    *store.Store
	alerts   *alert.Queue
	exchange *Exchange
	history  *HistoryPager
	chat     *ChatManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewNop()

	b := newCountingBackend()
	st := store.New(store.NewMemoryPersister(), log)
	alerts := alert.NewQueue(time.Minute)
	ex := NewExchange(b, alerts, st, log)
	hist := NewHistoryPager(b, 10, log)
	chat := NewChatManager(b, st, ex, hist, alerts, model.ModePropertySearch, log)

	t.Cleanup(func() {
		ex.Wait()
		alerts.Close()
	})

	return &harness{
		backend:  b,
		store:    st,
		alerts:   alerts,
		exchange: ex,
		history:  hist,
		chat:     chat,
	}
}

func (h *harness) signIn(id string) {
	h.store.SetIdentity(&model.Identity{ID: id, DisplayName: "Test User"})
	h.store.SetAuthenticated(true)
}
