// Package mock provides an in-memory mock implementation of [glasses.Sink]
// for use in unit tests. It records every display request.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lensrelay/internal/glasses"
)

// Compile-time interface assertion.
var _ glasses.Sink = (*Sink)(nil)

// Sink is a mock implementation of [glasses.Sink].
// All exported methods are safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	// ShowError, when non-nil, is returned by every ShowTextWall call.
	ShowError error

	calls []glasses.DisplayRequest
}

// ShowTextWall records the request.
func (s *Sink) ShowTextWall(_ context.Context, req glasses.DisplayRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.ShowError
}

// Calls returns a snapshot of all recorded display requests.
func (s *Sink) Calls() []glasses.DisplayRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]glasses.DisplayRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// Last returns the most recent display request and true, or false when no
// request has been recorded.
func (s *Sink) Last() (glasses.DisplayRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return glasses.DisplayRequest{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// Reset clears the recorded calls.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
