// Package observe provides observability primitives for iva: OpenTelemetry
// metrics and tracing, trace-aware structured logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance exists for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all iva metrics.
const meterName = "github.com/MrWong99/iva"

// Drop reasons reported through [Metrics.RecordDropped].
const (
	DropQueueFull = "queue_full"
	DropAttention = "attention"
)

// Metrics holds all OpenTelemetry instruments of the assistant.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecognizerDuration tracks batch transcription latency of one utterance.
	RecognizerDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// SpeakDuration tracks the time from speak start until playback drained.
	SpeakDuration metric.Float64Histogram

	// CycleDuration tracks one PROCESSING phase, from the end of recording
	// until the machine is back in IDLE.
	CycleDuration metric.Float64Histogram

	// UtteranceDuration tracks the audio length of recorded utterances.
	UtteranceDuration metric.Float64Histogram

	// --- Counters ---

	// Cycles counts completed turns. Attributes: "trigger", "outcome"
	// (matched or fallback), "stop" (why recording ended).
	Cycles metric.Int64Counter

	// WakeDetections counts wake token detections.
	WakeDetections metric.Int64Counter

	// FramesDropped counts capture frames that never reached a recording.
	// Attribute: "reason".
	FramesDropped metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes: "provider",
	// "kind", "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures. Attributes: "provider", "kind".
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// TurnState is the numeric turn state (0 idle, 1 recording, 2 processing).
	TurnState metric.Int64Gauge

	// DisplayClients tracks the number of connected web display viewers.
	DisplayClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks status server request time. Attributes:
	// "method", "route" (the ServeMux pattern), "status".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// recognizer and speech latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognizerDuration, err = m.Float64Histogram("iva.recognizer.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("iva.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("iva.speak.duration",
		metric.WithDescription("Time spent speaking a reply, synthesis included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("iva.cycle.duration",
		metric.WithDescription("Time from end of recording until the assistant is idle again."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("iva.utterance.duration",
		metric.WithDescription("Audio length of recorded utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 3, 5, 8, 13, 20, 30),
	); err != nil {
		return nil, err
	}

	if met.Cycles, err = m.Int64Counter("iva.cycles",
		metric.WithDescription("Completed turns by trigger, outcome and stop reason."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("iva.wake.detections",
		metric.WithDescription("Wake token detections."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("iva.frames.dropped",
		metric.WithDescription("Capture frames discarded before recording, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("iva.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("iva.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.TurnState, err = m.Int64Gauge("iva.turn.state",
		metric.WithDescription("Current turn state: 0 idle, 1 recording, 2 processing."),
	); err != nil {
		return nil, err
	}
	if met.DisplayClients, err = m.Int64UpDownCounter("iva.display.clients",
		metric.WithDescription("Connected web display viewers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("iva.http.request.duration",
		metric.WithDescription("Status server request latency by route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCycle records one completed turn. trigger is the matching rule's
// trigger, or empty for the fallback reply.
func (m *Metrics) RecordCycle(ctx context.Context, trigger, stop string) {
	outcome := "matched"
	if trigger == "" {
		outcome = "fallback"
	}
	m.Cycles.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("outcome", outcome),
			attribute.String("stop", stop),
		),
	)
}

// RecordDropped records n frames dropped for reason. Non-positive n is a no-op.
func (m *Metrics) RecordDropped(ctx context.Context, reason string, n int) {
	if n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordState publishes the numeric turn state.
func (m *Metrics) RecordState(ctx context.Context, state int64) {
	m.TurnState.Record(ctx, state)
}
