package assistant

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/logging"
)

// EventType names an event pushed to subscribers.
type EventType string

const (
	EventDelta   EventType = "delta"
	EventWarning EventType = "warning"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is published for streaming progress and non-fatal problems.
type Event struct {
	Type      EventType         `json:"type"`
	Text      string            `json:"text,omitempty"`
	MessageID int64             `json:"message_id,omitempty"`
	Stats     *completion.Stats `json:"stats,omitempty"`
}

const subscriberBufferSize = 64

// Broadcaster fans events out to subscribers. Slow subscribers lose events
// rather than blocking the stream.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a subscriber until ctx ends or Unsubscribe is called.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { b.Unsubscribe(id) })
	return ch, id
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			logging.ServerDebug("dropped %s event for slow subscriber %s", ev.Type, id)
		}
	}
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Close removes every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
