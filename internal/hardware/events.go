package hardware

import (
	"sync"
	"time"
)

// EventKind names a connection lifecycle notification.
type EventKind string

// Event kinds.
const (
	EventConnectionAttempt EventKind = "connection-attempt"
	EventConnected         EventKind = "connected"
	EventRetrying          EventKind = "retrying"
	EventConnectionFailed  EventKind = "connection-failed"
	EventDisconnected      EventKind = "disconnected"
	EventStatusUpdate      EventKind = "status-update"
)

// Event is an advisory notification about the connection pool.
// Fields that do not apply to a kind are zero.
type Event struct {
	Kind   EventKind `json:"kind"`
	Vendor Vendor    `json:"vendor,omitempty"`
	Time   time.Time `json:"time"`

	// Attempt is the 1-based attempt number for attempt and retry events.
	Attempt int `json:"attempt,omitempty"`

	// Delay is the wait before the next attempt for retry events.
	Delay time.Duration `json:"delay,omitempty"`

	// Err is the cause of a retry, failure, or disconnect.
	Err error `json:"-"`

	// Statuses is the pool snapshot for status-update events.
	Statuses []EntryStatus `json:"statuses,omitempty"`
}

// broker fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the event.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close ends every subscription.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
