// Package observe provides application-wide observability primitives for
// meetbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all meetbridge metrics.
const meterName = "github.com/opsframe/meetbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptLatency tracks the delay between an audio frame's arrival and
	// the corresponding transcript event reaching the Sink.
	TranscriptLatency metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time, including the
	// webhook intake surface. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriptEvents counts transcript events delivered to the Sink,
	// partitioned by attribute.Bool("is_final", ...).
	TranscriptEvents metric.Int64Counter

	// DroppedFrames counts audio frames dropped before reaching an open
	// provider session (invariant: no audio frame is silently lost without
	// being counted). Use with attribute.String("reason", ...).
	DroppedFrames metric.Int64Counter

	// ProviderInitErrors counts adapter Open failures, partitioned by
	// attribute.String("provider", ...).
	ProviderInitErrors metric.Int64Counter

	// ProviderTransportErrors counts non-fatal SendAudio/session transport
	// errors, partitioned by attribute.String("provider", ...).
	ProviderTransportErrors metric.Int64Counter

	// WebhookEvents counts received control-plane webhook events,
	// partitioned by attribute.String("kind", ...).
	WebhookEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of sessions currently in a non-terminal
	// state.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// streaming transcription latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TranscriptLatency, err = m.Float64Histogram("meetbridge.transcript.latency",
		metric.WithDescription("Delay between audio frame arrival and transcript event delivery."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("meetbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.TranscriptEvents, err = m.Int64Counter("meetbridge.transcript.events",
		metric.WithDescription("Total transcript events delivered to the sink, by finality."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("meetbridge.frames.dropped",
		metric.WithDescription("Total audio frames dropped before reaching an open provider session."),
	); err != nil {
		return nil, err
	}
	if met.ProviderInitErrors, err = m.Int64Counter("meetbridge.provider.init_errors",
		metric.WithDescription("Total provider adapter Open failures by provider."),
	); err != nil {
		return nil, err
	}
	if met.ProviderTransportErrors, err = m.Int64Counter("meetbridge.provider.transport_errors",
		metric.WithDescription("Total non-fatal provider transport errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.WebhookEvents, err = m.Int64Counter("meetbridge.webhook.events",
		metric.WithDescription("Total control-plane webhook events received by kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("meetbridge.active_sessions",
		metric.WithDescription("Number of sessions currently in a non-terminal state."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscriptEvent is a convenience method that records a transcript
// event counter increment and its end-to-end latency.
func (m *Metrics) RecordTranscriptEvent(ctx context.Context, isFinal bool, latencySeconds float64) {
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("is_final", isFinal)),
	)
	m.TranscriptLatency.Record(ctx, latencySeconds)
}

// RecordDroppedFrame is a convenience method that records a dropped-frame
// counter increment with the reason it was dropped.
func (m *Metrics) RecordDroppedFrame(ctx context.Context, reason string) {
	m.DroppedFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderInitError is a convenience method that records a provider
// init-error counter increment.
func (m *Metrics) RecordProviderInitError(ctx context.Context, provider string) {
	m.ProviderInitErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordProviderTransportError is a convenience method that records a
// provider transport-error counter increment.
func (m *Metrics) RecordProviderTransportError(ctx context.Context, provider string) {
	m.ProviderTransportErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordWebhookEvent is a convenience method that records a webhook-event
// counter increment by control event kind.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, kind string) {
	m.WebhookEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
