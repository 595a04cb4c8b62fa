package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/conversation"
	"github.com/MrWong99/lensrelay/internal/fanout"
	"github.com/MrWong99/lensrelay/internal/glasses"
	"github.com/MrWong99/lensrelay/internal/observe"
	"github.com/MrWong99/lensrelay/internal/upstream"
)

// RegistryConfig holds the dependencies shared by all sessions.
type RegistryConfig struct {
	// Source is the upstream translation service.
	Source upstream.Source

	// Sink is the glasses display surface.
	Sink glasses.Sink

	// Metrics may be nil in tests.
	Metrics *observe.Metrics

	// Defaults are the settings applied when a session opens without any.
	Defaults Settings

	// Unsupported, when non-nil, supplies the (device, language) table
	// checked on session open.
	Unsupported *config.Config

	// Transliterator romanizes glasses text for Pinyin targets. Nil
	// disables transliteration.
	Transliterator func(string) string

	// DebounceInterval overrides the glasses interim rate cap (tests).
	DebounceInterval time.Duration

	// InactivityTimeout overrides the idle eviction timeout (tests).
	InactivityTimeout time.Duration
}

// Registry is the process-wide map of user sessions. It is the only object
// shared across session workers; every mutation of the map itself is
// serialized here, everything per-user belongs to that user's worker.
//
// Fan-out hubs are keyed per user and outlive sessions: a viewer connected
// while no session is active keeps its stream and receives the next
// session's events.
type Registry struct {
	cfg RegistryConfig

	// openMu serializes whole session-open transactions so two concurrent
	// opens for one user cannot both supersede the same prior session.
	openMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Session
	hubs     map[string]*fanout.Hub
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		hubs:     make(map[string]*fanout.Hub),
	}
}

// OpenRequest describes a session-open event from the upstream service.
type OpenRequest struct {
	UserID      string
	SessionID   string
	DeviceModel string

	// Settings, when nil, fall back to the registry defaults.
	Settings *Settings
}

// Open creates (or replaces) the session for a user. A prior session for
// the same user is superseded: its timers are cancelled and its
// conversation log is carried into the new session, since the open arrived
// before the prior session's stop.
//
// Unsupported (device, target language) combinations short-circuit: the
// wearer gets a fixed explanatory caption for a few seconds and no upstream
// subscription is made.
func (r *Registry) Open(ctx context.Context, req OpenRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("session: open: userId is required")
	}

	r.openMu.Lock()
	defer r.openMu.Unlock()

	settings := r.cfg.Defaults
	if req.Settings != nil {
		settings = *req.Settings
	}

	if r.cfg.Unsupported != nil {
		if msg, bad := r.cfg.Unsupported.IsUnsupported(req.DeviceModel, settings.TargetLanguage); bad {
			slog.Warn("unsupported device/language combination",
				"user_id", req.UserID, "device", req.DeviceModel, "target", settings.TargetLanguage)
			wctx, cancel := context.WithTimeout(ctx, sinkWriteTimeout)
			defer cancel()
			if err := r.cfg.Sink.ShowTextWall(wctx, glasses.DisplayRequest{
				Text:     msg,
				Duration: glasses.WarningDuration,
			}); err != nil {
				slog.Warn("warning caption write failed", "user_id", req.UserID, "err", err)
			}
			return nil
		}
	}

	// Supersede any prior session before subscribing anew.
	var carried *conversation.Log
	r.mu.Lock()
	prior := r.sessions[req.UserID]
	hub, ok := r.hubs[req.UserID]
	if !ok {
		hub = fanout.NewHub(req.UserID)
		r.hubs[req.UserID] = hub
	}
	r.mu.Unlock()

	if prior != nil {
		carried = prior.log
		prior.requestStop()
		<-prior.stopped
		slog.Info("superseding prior session",
			"user_id", req.UserID, "prior_session_id", prior.sessionID, "session_id", req.SessionID)
	}

	sub, err := r.cfg.Source.Subscribe(ctx, upstream.StreamConfig{
		SessionID:    req.SessionID,
		SourceLocale: settings.SourceLanguage,
		TargetLocale: settings.TargetLanguage,
	})
	if err != nil {
		return fmt.Errorf("session: subscribe upstream for %s: %w", req.UserID, err)
	}

	s := newSession(sessionConfig{
		userID:            req.UserID,
		sessionID:         req.SessionID,
		settings:          settings,
		carriedLog:        carried,
		hub:               hub,
		sink:              r.cfg.Sink,
		source:            r.cfg.Source,
		sub:               sub,
		metrics:           r.cfg.Metrics,
		translit:          r.cfg.Transliterator,
		debounceInterval:  r.cfg.DebounceInterval,
		inactivityTimeout: r.cfg.InactivityTimeout,
	})
	s.onExit = r.remove

	r.mu.Lock()
	r.sessions[req.UserID] = s
	r.mu.Unlock()

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session opened",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"source", settings.SourceLanguage,
		"target", settings.TargetLanguage,
		"heuristic", settings.ConfidenceHeuristic,
	)

	go s.run(ctx)
	return nil
}

// Stop ends a user's session and waits for its worker to finish. Viewer
// subscribers are not closed. Stopping a user without a session is a no-op.
func (r *Registry) Stop(userID string) {
	r.mu.Lock()
	s := r.sessions[userID]
	r.mu.Unlock()
	if s == nil {
		return
	}
	s.requestStop()
	<-s.stopped
}

// UpdateSettings applies new settings to a user's active session.
func (r *Registry) UpdateSettings(userID string, settings Settings) error {
	r.mu.Lock()
	s := r.sessions[userID]
	r.mu.Unlock()
	if s == nil {
		return fmt.Errorf("session: no active session for %s", userID)
	}
	if !s.post(settingsMsg{settings: settings}) {
		return fmt.Errorf("session: session for %s already stopped", userID)
	}
	return nil
}

// Subscribe attaches a viewer to a user's fan-out hub. When a session is
// active, the subscription is created by the session worker so the replay
// is exactly the log content at the moment of joining; otherwise the viewer
// joins the idle hub with an empty replay.
func (r *Registry) Subscribe(ctx context.Context, userID string) *fanout.Subscription {
	r.mu.Lock()
	s := r.sessions[userID]
	hub, ok := r.hubs[userID]
	if !ok {
		hub = fanout.NewHub(userID)
		r.hubs[userID] = hub
	}
	r.mu.Unlock()

	var sub *fanout.Subscription
	if s != nil {
		reply := make(chan *fanout.Subscription, 1)
		if s.post(subscribeMsg{reply: reply}) {
			select {
			case sub = <-reply:
			case <-s.stopped:
			}
		}
	}
	if sub == nil {
		sub = hub.AddSubscriber(nil)
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSubscribers.Add(ctx, 1)
	}
	return sub
}

// Unsubscribe detaches a viewer. Call exactly once per Subscribe, also for
// subscribers that were already dropped for backpressure.
func (r *Registry) Unsubscribe(ctx context.Context, userID, subscriberID string) {
	r.mu.Lock()
	hub := r.hubs[userID]
	r.mu.Unlock()
	if hub != nil {
		hub.RemoveSubscriber(subscriberID)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ActiveSubscribers.Add(ctx, -1)
	}
}

// LanguagePair returns the active session's language pair.
// The second return is false when the user has no active session.
func (r *Registry) LanguagePair(userID string) (conversation.LanguagePair, bool) {
	r.mu.Lock()
	s := r.sessions[userID]
	r.mu.Unlock()
	if s == nil {
		return conversation.LanguagePair{}, false
	}
	return s.log.LanguagePair(), true
}

// ActiveUserIDs returns the users with a live session, in no particular
// order.
func (r *Registry) ActiveUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every active session and waits for the workers, bounded by
// ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.requestStop()
	}
	for _, s := range all {
		select {
		case <-s.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// remove drops a finished session from the map (if it is still the current
// one) and updates the session gauge exactly once per session.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	if r.sessions[s.userID] == s {
		delete(r.sessions, s.userID)
	}
	r.mu.Unlock()

	s.removedOnce.Do(func() {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		}
		slog.Info("session removed", "user_id", s.userID, "session_id", s.sessionID)
	})
}
