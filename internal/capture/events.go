package capture

import "sync"

// EventType identifies a controller event
type EventType string

const (
	EventStateChanged EventType = "state"
	EventTick         EventType = "tick"
	EventTranscribed  EventType = "transcribed"
	EventFailed       EventType = "failed"
)

// Event is delivered to subscribers for UI display
type Event struct {
	Type      EventType
	State     State
	SessionID string
	Source    AudioSource
	Elapsed   int64
	Text      string
	Err       error
}

const subscriberBuffer = 32

// broadcaster fans events out to subscribers without ever blocking the sender
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish drops the event for subscribers whose buffer is full
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
