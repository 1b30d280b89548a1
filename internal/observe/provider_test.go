package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp, prop := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	restoreGlobals(t)
	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
		SampleRatio:    0.5,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordCycle(context.Background(), "hora", "silence")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var cycles bool
	for _, f := range families {
		cycles = cycles || strings.HasPrefix(f.GetName(), "iva_cycles")
	}
	if !cycles {
		t.Errorf("iva_cycles not exported; got %d families", len(families))
	}

	var service string
	for _, f := range families {
		if f.GetName() != "target_info" {
			continue
		}
		for _, l := range f.GetMetric()[0].GetLabel() {
			if l.GetName() == "service_name" {
				service = l.GetValue()
			}
		}
	}
	if service != "iva" {
		t.Errorf("target_info service_name = %q, want iva", service)
	}

	if otel.GetTextMapPropagator().Fields() == nil {
		t.Error("no propagator installed")
	}
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	restoreGlobals(t)
	for _, r := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{
			Registerer:  prometheus.NewRegistry(),
			SampleRatio: r,
		}); err == nil {
			t.Errorf("SampleRatio %v accepted", r)
		}
	}
}

func TestInitProvider_ExportsSpansOverOTLP(t *testing.T) {
	restoreGlobals(t)
	var posts atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		Registerer:    prometheus.NewRegistry(),
		TraceEndpoint: collector.URL + "/v1/traces",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	_, span := StartSpan(context.Background(), "turn.cycle")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if posts.Load() == 0 {
		t.Error("collector received no spans")
	}
}
