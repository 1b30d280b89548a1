package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWith returns the value of the int64 sum data point carrying key=value.
func sumWith(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"iva.recognizer.duration", m.RecognizerDuration},
		{"iva.tts.duration", m.SynthesisDuration},
		{"iva.speak.duration", m.SpeakDuration},
		{"iva.cycle.duration", m.CycleDuration},
		{"iva.utterance.duration", m.UtteranceDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "whisper", "recognizer", "ok")
	m.RecordProviderRequest(ctx, "whisper", "recognizer", "ok")
	m.RecordProviderRequest(ctx, "whisper", "recognizer", "error")

	rm := collect(t, reader)
	if got := sumWith(t, rm, "iva.provider.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumWith(t, rm, "iva.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestRecordProviderError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordProviderError(context.Background(), "coqui", "tts")

	rm := collect(t, reader)
	if got := sumWith(t, rm, "iva.provider.errors", "provider", "coqui"); got != 1 {
		t.Errorf("provider errors = %d, want 1", got)
	}
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, "hora", "silence")
	m.RecordCycle(ctx, "hora", "silence")
	m.RecordCycle(ctx, "", "fixed")

	rm := collect(t, reader)
	if got := sumWith(t, rm, "iva.cycles", "outcome", "matched"); got != 2 {
		t.Errorf("matched cycles = %d, want 2", got)
	}
	if got := sumWith(t, rm, "iva.cycles", "outcome", "fallback"); got != 1 {
		t.Errorf("fallback cycles = %d, want 1", got)
	}
}

func TestRecordDropped(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDropped(ctx, DropAttention, 12)
	m.RecordDropped(ctx, DropAttention, 0)
	m.RecordDropped(ctx, DropQueueFull, 3)

	rm := collect(t, reader)
	if got := sumWith(t, rm, "iva.frames.dropped", "reason", DropAttention); got != 12 {
		t.Errorf("attention drops = %d, want 12", got)
	}
	if got := sumWith(t, rm, "iva.frames.dropped", "reason", DropQueueFull); got != 3 {
		t.Errorf("queue drops = %d, want 3", got)
	}
}

func TestRecordState(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordState(ctx, 1)
	m.RecordState(ctx, 2)

	rm := collect(t, reader)
	met := findMetric(rm, "iva.turn.state")
	if met == nil {
		t.Fatal("metric not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("metric is %T, want gauge", met.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 2 {
		t.Errorf("data points = %+v, want the last recorded state 2", gauge.DataPoints)
	}
}

func TestDisplayClients(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DisplayClients.Add(ctx, 1)
	m.DisplayClients.Add(ctx, 1)
	m.DisplayClients.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "iva.display.clients")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatal("metric is not a sum with data")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("display clients = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
