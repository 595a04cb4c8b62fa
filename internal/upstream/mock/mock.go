// Package mock provides a channel-backed in-memory implementation of
// [upstream.Source] for use in unit tests.
//
// Tests push events through [Source.Emit] and end the stream with
// [Source.Disconnect], which consumers observe as a closed event channel.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lensrelay/internal/upstream"
)

// Compile-time interface assertions.
var (
	_ upstream.Source       = (*Source)(nil)
	_ upstream.Subscription = (*Subscription)(nil)
)

// Source is a mock implementation of [upstream.Source].
// All exported methods are safe for concurrent use.
type Source struct {
	mu sync.Mutex

	// SubscribeError, when non-nil, is returned by Subscribe.
	SubscribeError error

	// SubscribeCalls records the configs passed to Subscribe.
	SubscribeCalls []upstream.StreamConfig

	subs []*Subscription
}

// Subscribe records the call and returns a fresh mock subscription.
func (s *Source) Subscribe(_ context.Context, cfg upstream.StreamConfig) (upstream.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SubscribeCalls = append(s.SubscribeCalls, cfg)
	if s.SubscribeError != nil {
		return nil, s.SubscribeError
	}
	sub := &Subscription{events: make(chan upstream.TranslationEvent, 256)}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Last returns the most recently created subscription, or nil.
func (s *Source) Last() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

// Subscription is a mock implementation of [upstream.Subscription].
type Subscription struct {
	mu     sync.Mutex
	events chan upstream.TranslationEvent
	closed bool
}

// Events returns the mock event stream.
func (s *Subscription) Events() <-chan upstream.TranslationEvent { return s.events }

// Close marks the subscription disposed and ends the stream.
func (s *Subscription) Close() error {
	s.Disconnect()
	return nil
}

// Closed reports whether Close or Disconnect was called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit pushes an event to the consumer. Emitting on a disconnected
// subscription is a no-op.
func (s *Subscription) Emit(ev upstream.TranslationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Disconnect simulates the upstream dropping the stream.
func (s *Subscription) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
