package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lensrelay/internal/caption"
	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/conversation"
	"github.com/MrWong99/lensrelay/internal/fanout"
	"github.com/MrWong99/lensrelay/internal/glasses"
	glassesmock "github.com/MrWong99/lensrelay/internal/glasses/mock"
	"github.com/MrWong99/lensrelay/internal/stabilize"
	"github.com/MrWong99/lensrelay/internal/upstream"
	upstreammock "github.com/MrWong99/lensrelay/internal/upstream/mock"
)

// testSettings is a plain everything-mode configuration translating German
// speech into English.
func testSettings() Settings {
	return Settings{
		SourceLanguage:      "de-DE",
		TargetLanguage:      "en-US",
		LineWidth:           caption.WidthMedium,
		NumberOfLines:       3,
		DisplayMode:         ModeEverything,
		ConfidenceHeuristic: stabilize.HeuristicNone,
	}
}

// rig bundles a registry wired to mocks with one open session.
type rig struct {
	registry *Registry
	source   *upstreammock.Source
	sink     *glassesmock.Sink
}

func newRig(t *testing.T, settings Settings) *rig {
	t.Helper()
	r := &rig{
		source: &upstreammock.Source{},
		sink:   &glassesmock.Sink{},
	}
	r.registry = NewRegistry(RegistryConfig{
		Source:            r.source,
		Sink:              r.sink,
		Defaults:          settings,
		DebounceInterval:  time.Millisecond,
		InactivityTimeout: time.Hour,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.registry.Shutdown(ctx)
	})
	return r
}

func (r *rig) open(t *testing.T, userID, sessionID string) *upstreammock.Subscription {
	t.Helper()
	if err := r.registry.Open(context.Background(), OpenRequest{
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		t.Fatalf("open: %v", err)
	}
	sub := r.source.Last()
	if sub == nil {
		t.Fatal("no upstream subscription was made")
	}
	return sub
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// collectEvents drains everything currently buffered on a subscription.
func collectEvents(sub *fanout.Subscription) []fanout.Event {
	var out []fanout.Event
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

func event(isFinal bool, original, translated string) upstream.TranslationEvent {
	return upstream.TranslationEvent{
		SessionID:      "sess-1",
		UserID:         "user-1",
		OriginalText:   original,
		TranslatedText: translated,
		SourceLocale:   "de-DE",
		TargetLocale:   "en-US",
		DidTranslate:   true,
		ReceivedAt:     time.Now(),
		IsFinal:        isFinal,
	}
}

func TestUtterancePromotion_SingleEntryThreeBroadcasts(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)

	up.Emit(event(false, "hallo", "A"))
	up.Emit(event(false, "hallo zusammen", "B"))
	up.Emit(event(true, "hallo zusammen", "C"))

	var translations []fanout.Event
	waitFor(t, func() bool {
		translations = append(translations, collectEvents(viewer)...)
		n := 0
		for _, ev := range translations {
			if ev.Type == fanout.EventTranslation {
				n++
			}
		}
		return n == 3
	}, "three translation broadcasts")

	var ids []string
	var lastText string
	var lastFinal bool
	for _, ev := range translations {
		if ev.Type != fanout.EventTranslation {
			continue
		}
		e := ev.Payload.(conversation.Entry)
		ids = append(ids, e.ID)
		lastText = e.TranslatedText
		lastFinal = e.IsFinal
	}
	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("all three broadcasts must share one id: %v", ids)
	}
	if lastText != "C" || !lastFinal {
		t.Fatalf("final broadcast: text=%q final=%v", lastText, lastFinal)
	}

	pair, ok := r.registry.LanguagePair("user-1")
	if !ok || pair.From != "de-DE" || pair.To != "en-US" {
		t.Fatalf("language pair: %+v %v", pair, ok)
	}
}

func TestReverseDirection_LoggedButNotDisplayed(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)

	// The conversation partner's side: English speech translated to Chinese.
	up.Emit(upstream.TranslationEvent{
		SessionID:      "sess-1",
		UserID:         "user-1",
		OriginalText:   "good morning",
		TranslatedText: "早上好",
		SourceLocale:   "en-US",
		TargetLocale:   "zh-CN",
		DidTranslate:   true,
		IsFinal:        true,
		ReceivedAt:     time.Now(),
	})

	var entry conversation.Entry
	waitFor(t, func() bool {
		for _, ev := range collectEvents(viewer) {
			if ev.Type == fanout.EventTranslation {
				entry = ev.Payload.(conversation.Entry)
				return true
			}
		}
		return false
	}, "reverse-direction log entry")

	if entry.OriginalLanguage != "English" || entry.TranslatedLanguage != "Chinese" {
		t.Fatalf("language attribution: %+v", entry)
	}
	if calls := r.sink.Calls(); len(calls) != 0 {
		t.Fatalf("reverse direction must not reach the glasses: %v", calls)
	}
}

func TestDisplayMode_GatesPassthrough(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.DisplayMode = ModeTranslations
	r := newRig(t, settings)
	up := r.open(t, "user-1", "sess-1")

	// Passthrough transcription: hidden in translations-only mode, and
	// didTranslate=false events are not logged either.
	up.Emit(upstream.TranslationEvent{
		SessionID:      "sess-1",
		UserID:         "user-1",
		TranslatedText: "raw transcription",
		SourceLocale:   "en-US",
		TargetLocale:   "en-US",
		DidTranslate:   false,
		ReceivedAt:     time.Now(),
	})
	// A real translation still shows.
	up.Emit(event(true, "hallo", "hello"))

	waitFor(t, func() bool {
		last, ok := r.sink.Last()
		return ok && strings.Contains(last.Text, "hello")
	}, "translated caption on glasses")

	for _, call := range r.sink.Calls() {
		if strings.Contains(call.Text, "raw transcription") {
			t.Fatalf("passthrough shown despite translations-only mode: %q", call.Text)
		}
	}
}

func TestInactivity_ClearsLogAndKeepsCounter(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	r.registry.cfg.InactivityTimeout = 150 * time.Millisecond
	up := r.open(t, "user-1", "sess-1")

	// Emit before subscribing so the idle timer is armed by a real event
	// well before it can fire.
	up.Emit(event(true, "eins", "one"))

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)

	var got []fanout.Event
	waitFor(t, func() bool {
		got = append(got, collectEvents(viewer)...)
		for _, ev := range got {
			if ev.Type == fanout.EventClear {
				return true
			}
		}
		return false
	}, "clear broadcast after inactivity")

	clears := 0
	for _, ev := range got {
		if ev.Type == fanout.EventClear {
			clears++
		}
	}
	if clears != 1 {
		t.Fatalf("want exactly one clear, got %d", clears)
	}

	// The glasses got a blank frame.
	waitFor(t, func() bool {
		calls := r.sink.Calls()
		return len(calls) > 0 && calls[len(calls)-1].Text == ""
	}, "blank frame")

	// The next utterance continues the entry counter.
	up.Emit(event(true, "zwei", "two"))
	waitFor(t, func() bool {
		for _, ev := range collectEvents(viewer) {
			if ev.Type == fanout.EventTranslation {
				e := ev.Payload.(conversation.Entry)
				return e.ID == "entry-2"
			}
		}
		return false
	}, "counter continues after clear")
}

func TestSettingsChange_FormattingOnlyKeepsLog(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	up.Emit(event(true, "eins", "one"))

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)
	waitFor(t, func() bool {
		evs := collectEvents(viewer)
		return len(evs) >= 2 // connected + replay of entry-1
	}, "replay for first viewer")

	next := testSettings()
	next.DisplayMode = ModeTranslations
	next.LineWidth = caption.WidthSmall
	if err := r.registry.UpdateSettings("user-1", next); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	// No clear, no languageChange; the log survives — verified through a
	// fresh viewer's replay.
	time.Sleep(50 * time.Millisecond)
	second := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", second.ID)

	var replayed int
	waitFor(t, func() bool {
		for _, ev := range collectEvents(second) {
			if ev.Type == fanout.EventTranslation {
				replayed++
			}
		}
		return replayed == 1
	}, "replay after formatting-only settings change")
}

func TestSettingsChange_LanguageChange(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	up.Emit(event(true, "eins", "one"))

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)
	waitFor(t, func() bool { return len(collectEvents(viewer)) >= 1 }, "viewer attached")

	next := testSettings()
	next.TargetLanguage = "fr-FR"
	if err := r.registry.UpdateSettings("user-1", next); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	var change conversation.LanguagePair
	waitFor(t, func() bool {
		for _, ev := range collectEvents(viewer) {
			if ev.Type == fanout.EventLanguageChange {
				change = ev.Payload.(conversation.LanguagePair)
				return true
			}
		}
		return false
	}, "languageChange broadcast")

	if change.To != "fr-FR" {
		t.Fatalf("language change payload: %+v", change)
	}

	// The upstream subscription moved to the new pair.
	waitFor(t, func() bool {
		calls := r.source.SubscribeCalls
		return len(calls) == 2 && calls[1].TargetLocale == "fr-FR"
	}, "upstream resubscription")

	// The conversation log is kept as historical context.
	second := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", second.ID)
	waitFor(t, func() bool {
		for _, ev := range collectEvents(second) {
			if ev.Type == fanout.EventTranslation {
				return true
			}
		}
		return false
	}, "log kept across language change")
}

func TestSupersede_CarriesConversationLog(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	up.Emit(event(true, "eins", "one"))

	// Let the worker process the event before superseding.
	viewer := r.registry.Subscribe(context.Background(), "user-1")
	waitFor(t, func() bool {
		for _, ev := range collectEvents(viewer) {
			if ev.Type == fanout.EventTranslation {
				return true
			}
		}
		return false
	}, "entry logged in first session")
	r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)

	up2 := r.open(t, "user-1", "sess-2")
	if up2 == up {
		t.Fatal("second open must create a new upstream subscription")
	}
	if !up.Closed() {
		t.Fatal("prior session's subscription must be disposed")
	}

	// The new session still replays the carried log.
	second := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", second.ID)
	waitFor(t, func() bool {
		for _, ev := range collectEvents(second) {
			if ev.Type == fanout.EventTranslation {
				e := ev.Payload.(conversation.Entry)
				return e.TranslatedText == "one"
			}
		}
		return false
	}, "carried log replay")
}

func TestUpstreamDisconnect_StopsSession(t *testing.T) {
	t.Parallel()
	r := newRig(t, testSettings())
	up := r.open(t, "user-1", "sess-1")

	viewer := r.registry.Subscribe(context.Background(), "user-1")
	defer r.registry.Unsubscribe(context.Background(), "user-1", viewer.ID)

	up.Disconnect()

	waitFor(t, func() bool {
		return len(r.registry.ActiveUserIDs()) == 0
	}, "session removal after disconnect")

	// The viewer's stream stays open and serves the next session.
	select {
	case _, ok := <-viewer.Events():
		if !ok {
			t.Fatal("viewer channel must survive session stop")
		}
	default:
	}

	up2 := r.open(t, "user-1", "sess-3")
	up2.Emit(event(true, "drei", "three"))
	waitFor(t, func() bool {
		for _, ev := range collectEvents(viewer) {
			if ev.Type == fanout.EventTranslation {
				e := ev.Payload.(conversation.Entry)
				return e.TranslatedText == "three"
			}
		}
		return false
	}, "viewer receives next session's events")
}

func TestStabilizedGlassesPath(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.ConfidenceHeuristic = stabilize.HeuristicWordStability
	r := newRig(t, settings)
	up := r.open(t, "user-1", "sess-1")

	interims := []string{"the", "the quik", "the quick", "the quick brow", "the quick brown"}
	for _, text := range interims {
		up.Emit(event(false, "der text", text))
	}
	up.Emit(event(true, "der text", "the quick brown fox"))

	waitFor(t, func() bool {
		last, ok := r.sink.Last()
		return ok && strings.Contains(last.Text, "the quick brown fox")
	}, "final caption displayed")

	// Interim frames only ever contained confident prefixes, so no frame
	// carries a token that later turned out wrong.
	for _, call := range r.sink.Calls() {
		if strings.Contains(call.Text, "quik") {
			t.Fatalf("unstable token reached the glasses: %q", call.Text)
		}
	}
}

func TestUnsupportedCombination_WarnsAndDoesNotSubscribe(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.TargetLanguage = "th-TH"
	r := newRig(t, settings)
	r.registry.cfg.Unsupported = &config.Config{Unsupported: []config.UnsupportedCombo{
		{DeviceModel: "Vuzix Z100", TargetLanguage: "th"},
	}}

	if err := r.registry.Open(context.Background(), OpenRequest{
		UserID:      "user-1",
		SessionID:   "sess-1",
		DeviceModel: "Vuzix Z100",
	}); err != nil {
		t.Fatalf("open: %v", err)
	}

	if len(r.source.SubscribeCalls) != 0 {
		t.Fatal("unsupported combination must not subscribe upstream")
	}
	last, ok := r.sink.Last()
	if !ok || last.Duration != glasses.WarningDuration {
		t.Fatalf("want warning caption with %v duration, got %+v", glasses.WarningDuration, last)
	}
	if len(r.registry.ActiveUserIDs()) != 0 {
		t.Fatal("no session should exist")
	}
}

func TestPinyinTransliteration(t *testing.T) {
	t.Parallel()
	settings := testSettings()
	settings.SourceLanguage = "en-US"
	settings.TargetLanguage = "zh-CN-pinyin"

	r := newRig(t, settings)
	r.registry.cfg.Transliterator = func(s string) string { return "PINYIN:" + s }
	up := r.open(t, "user-1", "sess-1")

	up.Emit(upstream.TranslationEvent{
		SessionID:      "sess-1",
		UserID:         "user-1",
		OriginalText:   "hello",
		TranslatedText: "你好",
		SourceLocale:   "en-US",
		TargetLocale:   "zh-CN",
		DidTranslate:   true,
		IsFinal:        true,
		ReceivedAt:     time.Now(),
	})

	waitFor(t, func() bool {
		last, ok := r.sink.Last()
		return ok && strings.Contains(last.Text, "PINYIN:你好")
	}, "transliterated caption")
}
