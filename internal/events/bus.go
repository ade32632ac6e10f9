// Package events is the in-process publish/subscribe bus that carries session,
// round and stage progress to followers (CLI, TUI, SSE).
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is implemented by every event type in this package.
type Event interface {
	EventType() string
	Timestamp() time.Time
	SessionID() string
}

// BaseEvent holds the fields shared by all events.
type BaseEvent struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"timestamp"`
	Session string    `json:"session_id"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) SessionID() string    { return e.Session }

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent(eventType, sessionID string) BaseEvent {
	return BaseEvent{Type: eventType, Time: time.Now(), Session: sessionID}
}

// filter selects the events a subscription receives. Zero values match
// everything.
type filter struct {
	session string
	types   map[string]struct{}
}

func (f filter) accepts(e Event) bool {
	if f.session != "" && f.session != e.SessionID() {
		return false
	}
	if len(f.types) == 0 {
		return true
	}
	_, ok := f.types[e.EventType()]
	return ok
}

// EventBus fans events out to buffered subscriber channels. Publishers
// never block: a regular event that finds a subscriber's buffer full is
// dropped for that subscriber.
type EventBus struct {
	mu      sync.Mutex
	subs    map[<-chan Event]*subscription
	buffer  int
	dropped atomic.Int64
	closed  bool
}

type subscription struct {
	ch chan Event
	filter
}

// New creates a bus whose subscriber channels hold bufferSize events.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{subs: make(map[<-chan Event]*subscription), buffer: bufferSize}
}

// Subscribe receives events of the given types from every session, or all
// events when no type is given.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.SubscribeForSession("", types...)
}

// SubscribeForSession is Subscribe restricted to one session. An empty
// sessionID matches every session.
func (eb *EventBus) SubscribeForSession(sessionID string, types ...string) <-chan Event {
	sub := &subscription{ch: make(chan Event, eb.buffer), filter: filter{session: sessionID}}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(sub.ch)
	} else {
		eb.subs[sub.ch] = sub
	}
	return sub.ch
}

// Unsubscribe closes ch and stops delivery to it. Unknown channels are
// ignored.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if sub, ok := eb.subs[ch]; ok {
		delete(eb.subs, ch)
		close(sub.ch)
	}
}

// Publish delivers event to matching subscribers that have room.
func (eb *EventBus) Publish(event Event) {
	eb.deliver(event, false)
}

// PublishPriority is for terminal events (paused, completed, failed). A full
// subscriber loses its oldest buffered event so this one always lands.
func (eb *EventBus) PublishPriority(event Event) {
	eb.deliver(event, true)
}

func (eb *EventBus) deliver(event Event, priority bool) {
	if eb == nil {
		return
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	for _, sub := range eb.subs {
		if !sub.accepts(event) || offer(sub.ch, event) {
			continue
		}
		if priority {
			// Only the bus sends, under mu, so one eviction frees a slot.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- event
		}
		eb.dropped.Add(1)
	}
}

func offer(ch chan Event, e Event) bool {
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

// Dropped reports how many events slow subscribers missed.
func (eb *EventBus) Dropped() int64 {
	if eb == nil {
		return 0
	}
	return eb.dropped.Load()
}

// Close closes every subscription. Publishing afterwards is a no-op.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for ch, sub := range eb.subs {
		close(sub.ch)
		delete(eb.subs, ch)
	}
}
