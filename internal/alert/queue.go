// Package alert implements the ephemeral, self-dismissing alert queue.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/metrics"
)

// DefaultDuration is used when an alert does not specify one.
const DefaultDuration = 5 * time.Second

// EventKind describes a change to the queue.
type EventKind string

const (
	EventPushed  EventKind = "pushed"
	EventRemoved EventKind = "removed"
)

// Event is delivered to subscribers on every push and removal.
type Event struct {
	Kind  EventKind   `json:"kind"`
	Alert model.Alert `json:"alert"`
}

type entry struct {
	alert     model.Alert
	timer     *time.Timer
	deadline  time.Time
	remaining time.Duration
	paused    bool
}

// Queue is an ordered set of alerts, each with its own countdown.
type Queue struct {
	defaultDuration time.Duration

	mu      sync.Mutex
	entries []*entry
	subs    map[chan Event]struct{}
	closed  bool
}

// NewQueue creates a queue; d <= 0 selects DefaultDuration.
func NewQueue(d time.Duration) *Queue {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Queue{
		defaultDuration: d,
		subs:            make(map[chan Event]struct{}),
	}
}

// Push appends an alert and starts its countdown. Every alert gets a fresh
// id; any id set by the caller is replaced. It returns the alert id.
func (q *Queue) Push(a model.Alert) string {
	a.ID = uuid.NewString()
	if a.Duration <= 0 {
		a.Duration = q.defaultDuration
	}
	if a.Severity == "" {
		a.Severity = model.SeverityInfo
	}
	a.CreatedAt = time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return a.ID
	}

	e := &entry{alert: a, deadline: a.CreatedAt.Add(a.Duration)}
	e.timer = time.AfterFunc(a.Duration, func() { q.expire(e) })
	q.entries = append(q.entries, e)
	metrics.AlertsActive.Inc()
	q.publish(Event{Kind: EventPushed, Alert: a})

	return a.ID
}

// Error is a shortcut for a failure alert.
func (q *Queue) Error(title, body string) string {
	return q.Push(model.Alert{Title: title, Body: body, Severity: model.SeverityError})
}

// Success is a shortcut for a success alert.
func (q *Queue) Success(title, body string) string {
	return q.Push(model.Alert{Title: title, Body: body, Severity: model.SeveritySuccess})
}

// Dismiss removes an alert before its timer fires.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

// Invoke runs the alert's action, if any, and dismisses it.
func (q *Queue) Invoke(id string) bool {
	q.mu.Lock()
	var action func()
	for _, e := range q.entries {
		if e.alert.ID == id && e.alert.Action != nil {
			action = e.alert.Action.Do
		}
	}
	found := q.removeLocked(id)
	q.mu.Unlock()

	if found && action != nil {
		action()
	}
	return found
}

// Pause freezes an alert's countdown, e.g. while it is hovered.
func (q *Queue) Pause(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.alert.ID == id && !e.paused {
			if e.timer.Stop() {
				e.paused = true
				e.remaining = time.Until(e.deadline)
			}
			return
		}
	}
}

// Resume restarts a paused countdown with the time that was left.
func (q *Queue) Resume(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.alert.ID == id && e.paused {
			e.paused = false
			if e.remaining <= 0 {
				e.remaining = time.Millisecond
			}
			e.deadline = time.Now().Add(e.remaining)
			e.timer = time.AfterFunc(e.remaining, func() { q.expire(e) })
			return
		}
	}
}

// Active returns the queued alerts in push order.
func (q *Queue) Active() []model.Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Alert, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.alert
	}
	return out
}

// Len returns the number of queued alerts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Subscribe streams queue events. Slow subscribers miss events rather than
// block the queue. The returned func unsubscribes.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	q.subs[ch] = struct{}{}
	q.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			if _, ok := q.subs[ch]; ok {
				delete(q.subs, ch)
				close(ch)
			}
		})
	}
}

// Close stops every timer, drops all alerts and closes subscriber channels.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, e := range q.entries {
		e.timer.Stop()
	}
	metrics.AlertsActive.Sub(float64(len(q.entries)))
	q.entries = nil
	for ch := range q.subs {
		close(ch)
	}
	q.subs = map[chan Event]struct{}{}
}

// expire removes exactly the entry whose timer fired.
func (q *Queue) expire(target *entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e == target {
			q.removeAtLocked(i)
			return
		}
	}
}

func (q *Queue) removeLocked(id string) bool {
	for i, e := range q.entries {
		if e.alert.ID == id {
			q.removeAtLocked(i)
			return true
		}
	}
	return false
}

func (q *Queue) removeAtLocked(i int) {
	e := q.entries[i]
	e.timer.Stop()
	q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
	metrics.AlertsActive.Dec()
	q.publish(Event{Kind: EventRemoved, Alert: e.alert})
}

func (q *Queue) publish(ev Event) {
	for ch := range q.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
