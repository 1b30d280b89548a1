package observe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the process-wide telemetry providers.
type ProviderConfig struct {
	// ServiceName defaults to "iva".
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collector. Nil means
	// [prometheus.DefaultRegisterer], which promhttp.Handler serves.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. When nil and TraceEndpoint is
	// set, spans go to that OTLP/HTTP collector; with neither, spans are
	// recorded for correlation IDs only.
	TraceExporter sdktrace.SpanExporter
	TraceEndpoint string

	// SampleRatio is the fraction of new traces kept, in (0, 1]. Zero keeps
	// all of them. Incoming sampled traces are always continued.
	SampleRatio float64
}

// InitProvider installs a Prometheus-backed meter provider, a tracer
// provider and the W3C propagator as the OpenTelemetry globals. The returned
// function flushes and closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "iva"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("observe: sample ratio %v outside [0, 1]", cfg.SampleRatio)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}
	exp := cfg.TraceExporter
	if exp == nil && cfg.TraceEndpoint != "" {
		exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.TraceEndpoint))
		if err != nil {
			return nil, fmt.Errorf("observe: otlp exporter: %w", err)
		}
	}
	if exp != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		// Spans first: a flushed span may still record metrics.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func serviceResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, resource.WithAttributes(semconv.HostName(host)))
	}
	own, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), own)
}
