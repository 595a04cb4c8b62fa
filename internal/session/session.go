// Package session hosts the per-user Interim Stabilization & Fan-out
// engine: one worker goroutine per user serializes every mutation of that
// user's state — translation events, settings changes, inactivity firing,
// viewer subscription — so the hot path needs no locks and per-user event
// order is preserved end to end.
//
// The [Registry] owns all per-user state and is the only cross-worker
// shared object in the process.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/lensrelay/internal/caption"
	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/conversation"
	"github.com/MrWong99/lensrelay/internal/debounce"
	"github.com/MrWong99/lensrelay/internal/fanout"
	"github.com/MrWong99/lensrelay/internal/glasses"
	"github.com/MrWong99/lensrelay/internal/observe"
	"github.com/MrWong99/lensrelay/internal/stabilize"
	"github.com/MrWong99/lensrelay/internal/upstream"
)

// DefaultInactivityTimeout clears a user's display and log after this long
// without a translation event.
const DefaultInactivityTimeout = 40 * time.Second

// sinkWriteTimeout bounds a single glasses write.
const sinkWriteTimeout = 5 * time.Second

// Worker inbox messages.
type (
	settingsMsg  struct{ settings Settings }
	subscribeMsg struct {
		reply chan *fanout.Subscription
	}
)

// Session is one user's active relay session. All state it owns is mutated
// exclusively by its worker goroutine; other goroutines communicate through
// the inbox.
type Session struct {
	userID    string
	sessionID string
	settings  Settings

	stab      *stabilize.Stabilizer
	formatter *caption.Formatter
	log       *conversation.Log
	deb       *debounce.Debouncer
	hub       *fanout.Hub
	sink      glasses.Sink
	source    upstream.Source
	metrics   *observe.Metrics
	translit  func(string) string

	sub    upstream.Subscription
	events <-chan upstream.TranslationEvent

	inbox             chan any
	quit              chan struct{}
	stopped           chan struct{}
	stopOnce          sync.Once
	removedOnce       sync.Once
	inactivityTimeout time.Duration

	// onExit runs once when the worker goroutine ends, from the worker's
	// defer, so the registry can drop its reference.
	onExit func(*Session)
}

// sessionConfig bundles everything a new Session needs.
type sessionConfig struct {
	userID            string
	sessionID         string
	settings          Settings
	carriedLog        *conversation.Log
	hub               *fanout.Hub
	sink              glasses.Sink
	source            upstream.Source
	sub               upstream.Subscription
	metrics           *observe.Metrics
	translit          func(string) string
	debounceInterval  time.Duration
	inactivityTimeout time.Duration
}

// newSession assembles the per-user pipeline: stabilizer → formatter →
// debouncer → sink on the glasses side, log → hub on the viewer side.
func newSession(cfg sessionConfig) *Session {
	log := cfg.carriedLog
	if log == nil {
		log = conversation.NewLog()
	}
	log.SetLanguagePair(cfg.settings.SourceLanguage, cfg.settings.TargetLanguage)

	s := &Session{
		userID:            cfg.userID,
		sessionID:         cfg.sessionID,
		settings:          cfg.settings,
		stab:              newStabilizer(cfg.settings),
		formatter:         caption.NewFormatter(cfg.settings.captionConfig()),
		log:               log,
		hub:               cfg.hub,
		sink:              cfg.sink,
		source:            cfg.source,
		metrics:           cfg.metrics,
		translit:          cfg.translit,
		sub:               cfg.sub,
		inbox:             make(chan any, 16),
		quit:              make(chan struct{}),
		stopped:           make(chan struct{}),
		inactivityTimeout: cfg.inactivityTimeout,
	}
	if s.inactivityTimeout <= 0 {
		s.inactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.sub != nil {
		s.events = cfg.sub.Events()
	}

	var debOpts []debounce.Option
	if cfg.debounceInterval > 0 {
		debOpts = append(debOpts, debounce.WithInterval(cfg.debounceInterval))
	}
	s.deb = debounce.New(s.emitFrame, debOpts...)

	return s
}

// newStabilizer derives a fresh stabilizer from the settings.
func newStabilizer(settings Settings) *stabilize.Stabilizer {
	return stabilize.New(
		stabilize.WithHeuristic(settings.ConfidenceHeuristic),
		stabilize.WithCJK(settings.TargetIsCJK()),
	)
}

// requestStop asks the worker to exit. Safe to call more than once and from
// any goroutine.
func (s *Session) requestStop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// post delivers a message to the worker inbox. Returns false when the
// worker has already stopped.
func (s *Session) post(m any) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.stopped:
		return false
	}
}

// run is the worker goroutine. It owns every mutation of the session state
// and exits on stop request, context cancellation, or upstream disconnect.
func (s *Session) run(ctx context.Context) {
	defer close(s.stopped)
	defer func() {
		s.teardown()
		if s.onExit != nil {
			s.onExit(s)
		}
	}()

	timer := time.NewTimer(s.inactivityTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.quit:
			return

		case ev, ok := <-s.events:
			if !ok {
				// Upstream disconnect is a session stop.
				slog.Info("upstream stream closed, stopping session",
					"user_id", s.userID, "session_id", s.sessionID)
				return
			}
			s.resetInactivity(timer)
			s.handleTranslation(ctx, ev)

		case <-timer.C:
			s.handleInactivity(ctx)
			// The timer stays disarmed until the next translation event.

		case m := <-s.inbox:
			switch msg := m.(type) {
			case settingsMsg:
				s.applySettings(ctx, msg.settings)
			case subscribeMsg:
				msg.reply <- s.hub.AddSubscriber(s.log.Entries())
			}
		}
	}
}

// teardown cancels the debouncer and disposes the upstream subscription.
// Subscribers are left untouched: viewers keep their stream across session
// stops and receive the next session's events.
func (s *Session) teardown() {
	s.deb.Stop()
	if s.sub != nil {
		_ = s.sub.Close()
	}
}

// resetInactivity idempotently rearms the inactivity timer.
func (s *Session) resetInactivity(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(s.inactivityTimeout)
}

// handleTranslation is the hot path: route the event to the glasses and the
// conversation log according to direction, display mode, and finality.
func (s *Session) handleTranslation(ctx context.Context, ev upstream.TranslationEvent) {
	start := time.Now()

	if ev.OriginalText == "" && ev.TranslatedText == "" {
		slog.Debug("dropping malformed translation event",
			"user_id", s.userID, "session_id", ev.SessionID)
		return
	}

	glassesText, show := s.routeForGlasses(ev)
	if show && s.settings.TargetIsPinyin() && s.translit != nil {
		glassesText = s.translit(glassesText)
	}

	if show && glassesText != "" {
		var frame string
		if ev.IsFinal {
			frame = s.formatter.ProcessString(glassesText, true)
		} else {
			at := ev.ReceivedAt
			if at.IsZero() {
				at = start
			}
			prefix, _ := s.stab.Process(glassesText, at)
			frame = s.formatter.ProcessString(prefix, false)
		}
		if frame != "" || ev.IsFinal {
			s.deb.Send(debounce.Frame{Text: frame, IsFinal: ev.IsFinal})
		}
	}

	if ev.DidTranslate {
		entry := s.log.AddTranslation(
			ev.OriginalText,
			ev.TranslatedText,
			languageName(ev.SourceLocale),
			languageName(ev.TargetLocale),
			ev.IsFinal,
		)
		if entry != nil {
			s.hub.Broadcast(fanout.Event{Type: fanout.EventTranslation, Payload: *entry})
		}
	}

	if ev.IsFinal {
		s.stab.Reset()
	}

	if s.metrics != nil {
		s.metrics.RecordTranslationEvent(ctx, ev.IsFinal, show)
		s.metrics.EventProcessingDuration.Record(ctx, time.Since(start).Seconds())
	}
}

// routeForGlasses decides what (if anything) this event puts on the
// glasses:
//
//   - passthrough transcriptions show only in "everything" mode;
//   - translations into the user's configured target show in both modes;
//   - translations in the reverse direction are logged but never displayed.
func (s *Session) routeForGlasses(ev upstream.TranslationEvent) (string, bool) {
	if !ev.DidTranslate {
		return ev.TranslatedText, s.settings.DisplayMode == ModeEverything
	}
	evLang := config.LanguageSubtag(ev.TargetLocale)
	userLang := config.LanguageSubtag(s.settings.TargetLanguage)
	if strings.EqualFold(evLang, userLang) {
		return ev.TranslatedText, true
	}
	return "", false
}

// handleInactivity clears the caption history and conversation log,
// broadcasts the clear to viewers, and blanks the glasses. Subscribers are
// not closed.
func (s *Session) handleInactivity(ctx context.Context) {
	slog.Info("inactivity timeout, clearing session display",
		"user_id", s.userID, "session_id", s.sessionID)

	s.formatter.Clear()
	s.log.Clear()
	s.hub.Broadcast(fanout.Event{Type: fanout.EventClear, Payload: map[string]string{}})
	s.deb.Send(debounce.Frame{Text: "", IsFinal: true})

	if s.metrics != nil {
		s.metrics.InactivityClears.Add(ctx, 1)
	}
}

// applySettings recomputes the derived pipeline state. A language change
// resets the stabilizer and caption history, notifies viewers, and moves
// the upstream subscription to the new pair; a formatting-only change
// preserves the caption history by replaying it through the new geometry.
// The conversation log is kept in both cases.
func (s *Session) applySettings(ctx context.Context, next Settings) {
	prev := s.settings
	s.settings = next

	if next.LanguageChanged(prev) {
		slog.Info("language pair changed",
			"user_id", s.userID,
			"from", next.SourceLanguage, "to", next.TargetLanguage)

		s.stab = newStabilizer(next)
		s.formatter = caption.NewFormatter(next.captionConfig())
		s.log.SetLanguagePair(next.SourceLanguage, next.TargetLanguage)
		s.hub.Broadcast(fanout.Event{
			Type: fanout.EventLanguageChange,
			Payload: conversation.LanguagePair{
				From: next.SourceLanguage,
				To:   next.TargetLanguage,
			},
		})
		s.resubscribe(ctx)
		return
	}

	s.formatter.Reconfigure(next.captionConfig())
	if next.ConfidenceHeuristic != prev.ConfidenceHeuristic {
		s.stab = newStabilizer(next)
	}
}

// resubscribe moves the upstream subscription to the current language pair.
// On failure the existing stream is kept so the session stays alive.
func (s *Session) resubscribe(ctx context.Context) {
	if s.source == nil {
		return
	}
	newSub, err := s.source.Subscribe(ctx, upstream.StreamConfig{
		SessionID:    s.sessionID,
		SourceLocale: s.settings.SourceLanguage,
		TargetLocale: s.settings.TargetLanguage,
	})
	if err != nil {
		slog.Error("resubscribe after language change failed, keeping old stream",
			"user_id", s.userID, "err", err)
		return
	}

	old := s.sub
	s.sub = newSub
	s.events = newSub.Events()
	if old != nil {
		_ = old.Close()
	}
}

// emitFrame delivers a debounced frame to the glasses sink. Direct emits run
// on the session worker inside Debouncer.Send; trailing emits run on the
// debouncer's timer goroutine. Sink errors are logged and swallowed.
func (s *Session) emitFrame(f debounce.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	req := glasses.DisplayRequest{Text: f.Text}
	kind := "interim"
	switch {
	case f.Text == "":
		kind = "clear"
	case f.IsFinal:
		kind = "final"
		req.Duration = glasses.FinalDuration
	}

	if err := s.sink.ShowTextWall(ctx, req); err != nil {
		slog.Warn("glasses write failed", "user_id", s.userID, "err", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordGlassesWrite(ctx, kind)
	}
}
