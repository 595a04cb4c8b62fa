package debounce

import (
	"sync"
	"testing"
	"time"
)

// recorder collects emitted frames with their arrival times.
type recorder struct {
	mu     sync.Mutex
	frames []Frame
	times  []time.Time
}

func (r *recorder) emit(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	r.times = append(r.times, time.Now())
}

func (r *recorder) snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func TestFinal_EmittedImmediately(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(time.Hour))
	defer db.Stop()

	db.Send(Frame{Text: "done", IsFinal: true})

	frames := rec.snapshot()
	if len(frames) != 1 || !frames[0].IsFinal || frames[0].Text != "done" {
		t.Fatalf("final not emitted immediately: %v", frames)
	}
}

func TestInterim_FirstPassesThenCoalesces(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(80*time.Millisecond))
	defer db.Stop()

	db.Send(Frame{Text: "a"})
	db.Send(Frame{Text: "b"})
	db.Send(Frame{Text: "c"})

	if frames := rec.snapshot(); len(frames) != 1 || frames[0].Text != "a" {
		t.Fatalf("want only the first interim so far, got %v", frames)
	}

	// After the interval, the latest parked interim fires.
	time.Sleep(150 * time.Millisecond)
	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("want 2 frames after timer fire, got %v", frames)
	}
	if frames[1].Text != "c" {
		t.Fatalf("coalescing must keep the latest interim, got %q", frames[1].Text)
	}
}

func TestInterim_SpacedEmitsPassThrough(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(30*time.Millisecond))
	defer db.Stop()

	db.Send(Frame{Text: "a"})
	time.Sleep(60 * time.Millisecond)
	db.Send(Frame{Text: "b"})

	frames := rec.snapshot()
	if len(frames) != 2 || frames[1].Text != "b" {
		t.Fatalf("spaced interims should pass directly: %v", frames)
	}
}

func TestFinal_CancelsPendingInterim(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(60*time.Millisecond))
	defer db.Stop()

	db.Send(Frame{Text: "a"})
	db.Send(Frame{Text: "parked"})
	db.Send(Frame{Text: "closing", IsFinal: true})

	time.Sleep(120 * time.Millisecond)
	frames := rec.snapshot()
	if len(frames) != 2 {
		t.Fatalf("want 2 frames (parked interim dropped), got %v", frames)
	}
	if !frames[1].IsFinal || frames[1].Text != "closing" {
		t.Fatalf("final must win over parked interim: %v", frames)
	}
}

func TestStop_DropsPendingAndRejectsFurtherFrames(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(40*time.Millisecond))

	db.Send(Frame{Text: "a"})
	db.Send(Frame{Text: "parked"})
	db.Stop()
	db.Send(Frame{Text: "late", IsFinal: true})

	time.Sleep(100 * time.Millisecond)
	frames := rec.snapshot()
	if len(frames) != 1 {
		t.Fatalf("stopped debouncer must not emit: %v", frames)
	}

	// Stop is idempotent.
	db.Stop()
}

// Scenario: interims at t=0, 25, 50, 75 and 135 ms with a 100 ms interval
// produce an emit at t=0, a coalesced emit at ~100 ms carrying the t=75
// text, and a direct emit at 135 ms.
func TestCoalescingWindow(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := New(rec.emit, WithInterval(100*time.Millisecond))
	defer db.Stop()

	db.Send(Frame{Text: "t0"})
	time.Sleep(25 * time.Millisecond)
	db.Send(Frame{Text: "t25"})
	time.Sleep(25 * time.Millisecond)
	db.Send(Frame{Text: "t50"})
	time.Sleep(25 * time.Millisecond)
	db.Send(Frame{Text: "t75"})
	time.Sleep(60 * time.Millisecond) // timer fires at ~100ms
	db.Send(Frame{Text: "t135"})

	time.Sleep(50 * time.Millisecond)
	frames := rec.snapshot()
	if len(frames) != 3 {
		t.Fatalf("want 3 emits, got %v", frames)
	}
	if frames[0].Text != "t0" || frames[1].Text != "t75" || frames[2].Text != "t135" {
		t.Fatalf("unexpected emit sequence: %v", frames)
	}
}
