// Package debounce rate-limits interim display frames on their way to the
// glasses while letting final frames through immediately.
//
// A single reschedulable timer token per debouncer coalesces bursts of
// interims to the latest frame: intermediate frames between two emits may be
// dropped, finals never are.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between interim emits.
const DefaultInterval = 400 * time.Millisecond

// Frame is one display update on its way to the glasses.
type Frame struct {
	// Text is the full text-wall content to show.
	Text string

	// IsFinal marks the frame as closing an utterance. Final frames bypass
	// the rate limit and cancel any pending interim.
	IsFinal bool
}

// Debouncer caps the interim frame rate towards a sink. All exported methods
// are safe for concurrent use. The emit callback may be invoked from a timer
// goroutine.
type Debouncer struct {
	mu sync.Mutex

	interval time.Duration
	emit     func(Frame)
	now      func() time.Time

	lastSent time.Time
	timer    *time.Timer

	// gen invalidates in-flight timer fires: a fire whose generation does
	// not match is a cancelled token and must be a no-op.
	gen uint64

	pending    string
	hasPending bool
	stopped    bool
}

// Option configures a [Debouncer].
type Option func(*Debouncer)

// WithInterval overrides the minimum interim spacing.
// Default: [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(db *Debouncer) {
		if d > 0 {
			db.interval = d
		}
	}
}

// New creates a Debouncer that delivers frames through emit.
func New(emit func(Frame), opts ...Option) *Debouncer {
	db := &Debouncer{
		interval: DefaultInterval,
		emit:     emit,
		now:      time.Now,
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

// Send submits a frame.
//
// Finals are emitted immediately and cancel any pending interim timer.
// An interim is emitted immediately when the interval has elapsed since the
// last emit; otherwise it is parked on a single-shot timer for the remainder
// of the interval, and any newer interim arriving meanwhile replaces the
// parked text (coalesce to latest).
func (db *Debouncer) Send(frame Frame) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.stopped {
		return
	}

	if frame.IsFinal {
		db.cancelLocked()
		db.lastSent = db.now()
		db.emitLocked(frame)
		return
	}

	now := db.now()
	elapsed := now.Sub(db.lastSent)
	if elapsed >= db.interval {
		db.cancelLocked()
		db.lastSent = now
		db.emitLocked(frame)
		return
	}

	db.pending = frame.Text
	db.hasPending = true
	if db.timer == nil {
		gen := db.gen
		db.timer = time.AfterFunc(db.interval-elapsed, func() {
			db.fire(gen)
		})
	}
}

// Stop cancels any pending emit and rejects all further frames. Safe to call
// more than once; a timer firing after Stop is a no-op.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cancelLocked()
	db.stopped = true
}

// fire delivers the parked interim, unless the token was cancelled first.
func (db *Debouncer) fire(gen uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.stopped || gen != db.gen || !db.hasPending {
		return
	}
	text := db.pending
	db.timer = nil
	db.hasPending = false
	db.pending = ""
	db.gen++
	// lastSent deliberately stays at the last direct emit: the trailing
	// write closes the previous window instead of opening a new one.
	db.emitLocked(Frame{Text: text})
}

// cancelLocked invalidates and discards the pending timer token.
// Must be called with db.mu held.
func (db *Debouncer) cancelLocked() {
	db.gen++
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.pending = ""
	db.hasPending = false
}

// emitLocked invokes the emit callback. The callback runs under the mutex so
// frame order matches decision order; sinks must not call back into the
// Debouncer.
func (db *Debouncer) emitLocked(frame Frame) {
	if db.emit != nil {
		db.emit(frame)
	}
}
