// Package observe provides application-wide observability primitives for
// Lensrelay: OpenTelemetry metrics, request tracing, structured logging
// helpers, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Lensrelay metrics.
const meterName = "github.com/MrWong99/lensrelay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// EventProcessingDuration tracks how long one translation event spends
	// in the session worker, from inbox pickup to fan-out.
	EventProcessingDuration metric.Float64Histogram

	// TranslationEvents counts processed translation events. Use with
	// attributes:
	//   attribute.String("kind", "interim"|"final"), attribute.Bool("shown", ...)
	TranslationEvents metric.Int64Counter

	// GlassesWrites counts frames actually written to the glasses sink.
	// Use with attribute.String("kind", "interim"|"final"|"clear").
	GlassesWrites metric.Int64Counter

	// SubscriberDrops counts viewers dropped for backpressure or write
	// failure.
	SubscriberDrops metric.Int64Counter

	// InactivityClears counts per-user inactivity evictions.
	InactivityClears metric.Int64Counter

	// ActiveSessions tracks the number of live user sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks connected viewers across all users.
	ActiveSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a hot path that should stay well under the 400 ms debounce window.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EventProcessingDuration, err = m.Float64Histogram("lensrelay.event.duration",
		metric.WithDescription("Session-worker processing time per translation event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TranslationEvents, err = m.Int64Counter("lensrelay.translation.events",
		metric.WithDescription("Total translation events processed by kind and display outcome."),
	); err != nil {
		return nil, err
	}
	if met.GlassesWrites, err = m.Int64Counter("lensrelay.glasses.writes",
		metric.WithDescription("Total frames written to the glasses sink by kind."),
	); err != nil {
		return nil, err
	}
	if met.SubscriberDrops, err = m.Int64Counter("lensrelay.subscriber.drops",
		metric.WithDescription("Total viewer subscribers dropped for backpressure or write failure."),
	); err != nil {
		return nil, err
	}
	if met.InactivityClears, err = m.Int64Counter("lensrelay.inactivity.clears",
		metric.WithDescription("Total inactivity-driven conversation clears."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("lensrelay.active_sessions",
		metric.WithDescription("Number of live user sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("lensrelay.active_subscribers",
		metric.WithDescription("Number of connected viewer subscribers across all users."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lensrelay.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTranslationEvent records a processed translation event.
func (m *Metrics) RecordTranslationEvent(ctx context.Context, isFinal, shown bool) {
	m.TranslationEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", eventKind(isFinal)),
			attribute.Bool("shown", shown),
		),
	)
}

// RecordGlassesWrite records a frame written to the glasses sink.
func (m *Metrics) RecordGlassesWrite(ctx context.Context, kind string) {
	m.GlassesWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSubscriberDrop records a dropped viewer with the reason attribute.
func (m *Metrics) RecordSubscriberDrop(ctx context.Context, reason string) {
	m.SubscriberDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

func eventKind(isFinal bool) string {
	if isFinal {
		return "final"
	}
	return "interim"
}
