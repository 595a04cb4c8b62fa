// Package app wires all Lensrelay subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// upstream client, glasses client, session registry, and HTTP server; Run
// serves until the context is cancelled; Shutdown tears everything down in
// order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithSink). When an option is not provided, New creates real
// cloud clients from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lensrelay/internal/config"
	"github.com/MrWong99/lensrelay/internal/glasses"
	"github.com/MrWong99/lensrelay/internal/httpapi"
	"github.com/MrWong99/lensrelay/internal/observe"
	"github.com/MrWong99/lensrelay/internal/pinyin"
	"github.com/MrWong99/lensrelay/internal/session"
	"github.com/MrWong99/lensrelay/internal/upstream"
)

// shutdownGrace bounds the HTTP server drain during shutdown.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	env config.Env
	cfg *config.Config

	registry *session.Registry
	server   *http.Server

	source upstream.Source
	sink   glasses.Sink

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an upstream source instead of the cloud client.
func WithSource(s upstream.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a glasses sink instead of the cloud client.
func WithSink(s glasses.Sink) Option {
	return func(a *App) { a.sink = s }
}

// New creates an App by wiring all subsystems together.
func New(env config.Env, cfg *config.Config, defaults config.SettingsDefaults, opts ...Option) (*App, error) {
	a := &App{env: env, cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	metrics := observe.DefaultMetrics()

	// ── 1. Cloud clients ─────────────────────────────────────────────────
	if a.source == nil {
		client, err := upstream.NewClient(env.APIKey, env.PackageName,
			upstream.WithEndpoint(cfg.Upstream.StreamURL))
		if err != nil {
			return nil, fmt.Errorf("app: init upstream client: %w", err)
		}
		a.source = client
	}
	if a.sink == nil {
		client, err := glasses.NewClient(env.APIKey, env.PackageName,
			glasses.WithEndpoint(cfg.Upstream.DisplayURL))
		if err != nil {
			return nil, fmt.Errorf("app: init glasses client: %w", err)
		}
		a.sink = client
		a.closers = append(a.closers, client.Close)
	}

	// ── 2. Session registry ──────────────────────────────────────────────
	a.registry = session.NewRegistry(session.RegistryConfig{
		Source:         a.source,
		Sink:           a.sink,
		Metrics:        metrics,
		Defaults:       session.SettingsFromDefaults(defaults),
		Unsupported:    cfg,
		Transliterator: pinyin.Convert,
	})

	// ── 3. HTTP server ───────────────────────────────────────────────────
	api := httpapi.New(env, a.registry, metrics)
	a.server = &http.Server{
		Addr:              a.listenAddr(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Registry exposes the session registry, mainly for tests and tooling.
func (a *App) Registry() *session.Registry { return a.registry }

// listenAddr prefers the YAML config over the PORT environment variable.
func (a *App) listenAddr() string {
	if a.cfg.Server.ListenAddr != "" {
		return a.cfg.Server.ListenAddr
	}
	return fmt.Sprintf(":%d", a.env.Port)
}

// Run serves HTTP until ctx is cancelled, then drains the server.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "listen_addr", a.server.Addr, "production", a.env.Production)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(drainCtx)
	})
	return g.Wait()
}

// Shutdown stops all sessions and runs the closers in reverse order. It
// respects the context deadline: if ctx expires, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.registry.Shutdown(ctx); err != nil {
			slog.Warn("registry shutdown error", "err", err)
			shutdownErr = err
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
