// Package httpapi serves the browser viewer surface: a server-sent event
// stream of conversation updates, a language-settings snapshot, health, and
// Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/fanout"
	"github.com/MrWong99/lensrelay/internal/observe"
	"github.com/MrWong99/lensrelay/internal/session"
)

// keepaliveInterval spaces SSE comment lines that keep intermediaries from
// timing out idle streams.
const keepaliveInterval = 30 * time.Second

// devFallbackUser is the identity assumed in non-production mode when no
// valid token is presented and no session is active.
const devFallbackUser = "dev-user"

// Server is the viewer-facing HTTP API.
type Server struct {
	env      config.Env
	registry *session.Registry
	metrics  *observe.Metrics
	tokens   *tokenValidator
}

// New creates the API server around the session registry.
func New(env config.Env, registry *session.Registry, metrics *observe.Metrics) *Server {
	return &Server{
		env:      env,
		registry: registry,
		metrics:  metrics,
		tokens:   newTokenValidator(env.APIKey),
	}
}

// Router builds the chi router with observability and CORS middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
	}
	r.Use(corsMiddleware)

	r.Get("/translation-events", s.handleTranslationEvents)
	r.Get("/api/language-settings", s.handleLanguageSettings)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)
	r.Post("/api/settings", s.handleSettingsPush)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// authenticate resolves the viewer's user identity from the request token.
//
// In production mode a missing or invalid token is a hard 401. In
// development the server falls back to the first active user, or a
// synthetic dev user, so local viewers work without minting tokens.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	userID, err := s.tokens.Validate(bearerToken(r))
	if err == nil {
		return userID, true
	}
	if s.env.Production {
		return "", false
	}
	if active := s.registry.ActiveUserIDs(); len(active) > 0 {
		return active[0], true
	}
	return devFallbackUser, true
}

// handleTranslationEvents subscribes the caller to their fan-out hub and
// streams events until the client disconnects. The stream opens with a
// synthetic connected event, then replays the conversation log, then goes
// live.
func (s *Server) handleTranslationEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sub := s.registry.Subscribe(ctx, userID)
	defer s.registry.Unsubscribe(ctx, userID, sub.ID)

	slog.Info("viewer stream opened", "user_id", userID, "subscriber_id", sub.ID)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("viewer disconnected", "user_id", userID, "subscriber_id", sub.ID)
			return

		case ev, open := <-sub.Events():
			if !open {
				// Dropped by the hub (backpressure) — end the stream; the
				// browser's EventSource will reconnect.
				if s.metrics != nil {
					s.metrics.RecordSubscriberDrop(ctx, "backpressure")
				}
				return
			}
			if err := writeSSE(w, ev.Type, ev.Payload); err != nil {
				slog.Debug("viewer write failed", "user_id", userID, "err", err)
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE emits one `event:`/`data:` frame.
func writeSSE(w http.ResponseWriter, eventType fanout.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("httpapi: marshal sse payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

// handleLanguageSettings returns the current language pair snapshot.
func (s *Server) handleLanguageSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(r)
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	pair, _ := s.registry.LanguagePair(userID)
	writeJSON(w, http.StatusOK, pair)
}

// handleHealth is an unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"app":       s.env.PackageName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

// corsMiddleware applies the permissive development CORS policy; deployments
// restrict origins at the edge.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
