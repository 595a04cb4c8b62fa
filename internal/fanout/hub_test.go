package fanout

import (
	"fmt"
	"testing"

	"github.com/MrWong99/lensrelay/internal/conversation"
)

func entry(id, text string) conversation.Entry {
	return conversation.Entry{ID: id, TranslatedText: text}
}

// drain reads everything currently buffered on the subscription.
func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSubscribe_ConnectedThenReplayThenLive(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1")

	replay := []conversation.Entry{entry("entry-1", "one"), entry("entry-2", "two")}
	sub := h.AddSubscriber(replay)
	h.Broadcast(Event{Type: EventTranslation, Payload: entry("entry-3", "three")})

	events := drain(sub)
	if len(events) != 4 {
		t.Fatalf("want connected + 2 replay + 1 live, got %d: %v", len(events), events)
	}
	if events[0].Type != EventConnected {
		t.Fatalf("first event must be connected, got %s", events[0].Type)
	}
	for i, wantID := range []string{"entry-1", "entry-2", "entry-3"} {
		e, ok := events[i+1].Payload.(conversation.Entry)
		if !ok {
			t.Fatalf("event %d payload is %T", i+1, events[i+1].Payload)
		}
		if e.ID != wantID {
			t.Fatalf("event %d: want %s, got %s", i+1, wantID, e.ID)
		}
	}
}

func TestBroadcast_AllSubscribersSeeSamePayload(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1")

	a := h.AddSubscriber(nil)
	b := h.AddSubscriber(nil)

	h.Broadcast(Event{Type: EventClear, Payload: map[string]string{}})

	for _, sub := range []*Subscription{a, b} {
		events := drain(sub)
		if len(events) != 2 {
			t.Fatalf("want connected + clear, got %v", events)
		}
		if events[1].Type != EventClear {
			t.Fatalf("want clear, got %s", events[1].Type)
		}
	}
}

func TestSlowSubscriber_DroppedNotAwaited(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1", WithQueueSize(16))

	// Pre-fill the slow subscriber's queue with a replay so the first live
	// events overflow it; the fast subscriber has plenty of headroom.
	var backlog []conversation.Entry
	for i := 0; i < 15; i++ {
		backlog = append(backlog, entry(fmt.Sprintf("old-%d", i), "x"))
	}
	slow := h.AddSubscriber(backlog) // connected + 15 replay = full queue
	fast := h.AddSubscriber(nil)
	drain(fast)

	// Overflow the slow subscriber's queue. Broadcast must never block.
	for i := 0; i < 10; i++ {
		h.Broadcast(Event{Type: EventTranslation, Payload: entry(fmt.Sprintf("entry-%d", i), "x")})
	}

	if h.SubscriberCount() != 1 {
		t.Fatalf("slow subscriber should be dropped, have %d subscribers", h.SubscriberCount())
	}

	// The slow subscriber's channel is closed after its buffered events.
	events := drain(slow)
	if len(events) == 0 {
		t.Fatal("slow subscriber should still see its buffered events")
	}
	if _, ok := <-slow.Events(); ok {
		t.Fatal("slow subscriber's channel must be closed")
	}

	// The fast subscriber got everything.
	if events := drain(fast); len(events) != 10 {
		t.Fatalf("fast subscriber missed events: got %d", len(events))
	}
}

func TestReplayOverflow_DropsImmediately(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1", WithQueueSize(2))

	replay := []conversation.Entry{entry("a", ""), entry("b", ""), entry("c", "")}
	sub := h.AddSubscriber(replay)

	if h.SubscriberCount() != 0 {
		t.Fatalf("overflowing replay must drop the subscriber, have %d", h.SubscriberCount())
	}
	drain(sub)
	if _, ok := <-sub.Events(); ok {
		t.Fatal("channel must be closed")
	}
}

func TestRemoveSubscriber_Idempotent(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1")

	sub := h.AddSubscriber(nil)
	h.RemoveSubscriber(sub.ID)
	h.RemoveSubscriber(sub.ID)
	h.RemoveSubscriber("no-such-id")

	if h.SubscriberCount() != 0 {
		t.Fatalf("want 0 subscribers, got %d", h.SubscriberCount())
	}
}

func TestOrdering_PerSubscriberFIFO(t *testing.T) {
	t.Parallel()
	h := NewHub("user-1")
	sub := h.AddSubscriber(nil)

	for i := 0; i < 20; i++ {
		h.Broadcast(Event{Type: EventTranslation, Payload: entry(fmt.Sprintf("entry-%d", i), "x")})
	}

	events := drain(sub)
	if events[0].Type != EventConnected {
		t.Fatal("connected must come first")
	}
	for i, ev := range events[1:] {
		e := ev.Payload.(conversation.Entry)
		if want := fmt.Sprintf("entry-%d", i); e.ID != want {
			t.Fatalf("out of order at %d: want %s, got %s", i, want, e.ID)
		}
	}
}
