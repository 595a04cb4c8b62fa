// Package fanout broadcasts per-user conversation events to any number of
// viewer subscribers.
//
// Each subscriber owns a bounded queue: a subscriber that cannot keep up is
// dropped, never awaited, so one slow viewer cannot stall the user's session
// worker or other viewers. Joining subscribers receive a synthetic
// "connected" event followed by a replay of the current conversation log
// before any live event.
package fanout

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/lensrelay/internal/conversation"
)

// EventType discriminates the events a hub broadcasts.
type EventType string

const (
	// EventConnected is sent once to each subscriber on join.
	EventConnected EventType = "connected"

	// EventTranslation carries a created or updated [conversation.Entry].
	EventTranslation EventType = "translation"

	// EventLanguageChange signals a change of the user's language pair.
	EventLanguageChange EventType = "languageChange"

	// EventClear signals that the conversation log was emptied.
	EventClear EventType = "clear"
)

// Event is one typed broadcast. Payload is JSON-marshalable.
type Event struct {
	Type    EventType
	Payload any
}

// defaultQueueSize bounds each subscriber's outbound buffer. The replay of a
// full conversation log plus headroom for live events must fit, or the
// subscriber is dropped at the first overflow.
const defaultQueueSize = 768

// Subscription is one viewer's handle on a [Hub]. Drain [Subscription.Events]
// until it closes; the channel closes when the subscriber is removed, either
// explicitly or because its queue overflowed.
type Subscription struct {
	// ID uniquely identifies this subscriber within its hub.
	ID string

	ch chan Event
}

// Events returns the subscriber's event stream.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Hub is the per-user broadcast channel. All exported methods are safe for
// concurrent use. A Hub outlives individual sessions: viewers stay
// subscribed across session stops and receive the next session's events.
type Hub struct {
	mu        sync.Mutex
	userID    string
	subs      map[string]*Subscription
	queueSize int
}

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueSize overrides the per-subscriber buffer bound.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates an empty hub for one user.
func NewHub(userID string, opts ...Option) *Hub {
	h := &Hub{
		userID:    userID,
		subs:      make(map[string]*Subscription),
		queueSize: defaultQueueSize,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// AddSubscriber registers a new viewer and queues, in order, the connected
// event and a replay of every entry in the current conversation log. Live
// events broadcast after this call follow the replay on the subscriber's
// channel.
//
// If the replay alone overflows the queue the subscriber is dropped
// immediately and the returned subscription's channel is already closed.
func (h *Hub) AddSubscriber(replay []conversation.Entry) *Subscription {
	sub := &Subscription{
		ID: uuid.NewString(),
		ch: make(chan Event, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[sub.ID] = sub
	if !h.offerLocked(sub, Event{Type: EventConnected, Payload: map[string]string{}}) {
		return sub
	}
	for i := range replay {
		if !h.offerLocked(sub, Event{Type: EventTranslation, Payload: replay[i]}) {
			return sub
		}
	}

	slog.Debug("viewer subscribed", "user_id", h.userID, "subscriber_id", sub.ID, "replayed", len(replay))
	return sub
}

// RemoveSubscriber drops a subscriber and closes its channel. Removing an
// unknown or already-removed ID is a no-op.
func (h *Hub) RemoveSubscriber(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

// Broadcast delivers an event to every current subscriber. Subscribers whose
// queue is full are removed atomically; the event is never partially
// delivered to a subscriber.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// offerLocked removes overflowing subscribers; deleting map entries
	// while ranging is safe.
	for _, sub := range h.subs {
		h.offerLocked(sub, ev)
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// offerLocked enqueues ev for sub, removing the subscriber on overflow.
// Returns false when the subscriber was dropped. Must be called with h.mu
// held.
func (h *Hub) offerLocked(sub *Subscription, ev Event) bool {
	select {
	case sub.ch <- ev:
		return true
	default:
		slog.Warn("viewer queue overflow, dropping subscriber",
			"user_id", h.userID, "subscriber_id", sub.ID, "event", ev.Type)
		h.removeLocked(sub.ID)
		return false
	}
}

// removeLocked deletes and closes a subscriber. Must be called with h.mu held.
func (h *Hub) removeLocked(id string) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}
