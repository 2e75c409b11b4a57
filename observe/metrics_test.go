package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

// sumWhere adds the data points of an int64 sum whose attribute key equals
// value.
func sumWhere(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", met.Name, met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecordLoad(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLoad(ctx, "spectrogram", errors.New("missing"))
	m.RecordLoad(ctx, "classical", nil)
	m.RecordLoad(ctx, "classical", nil)

	met := findMetric(collect(t, reader), "gunshot.model.loads")
	if met == nil {
		t.Fatal("gunshot.model.loads not found")
	}
	if got := sumWhere(t, met, "status", "error"); got != 1 {
		t.Errorf("error loads = %d, want 1", got)
	}
	if got := sumWhere(t, met, "backend", "classical"); got != 2 {
		t.Errorf("classical loads = %d, want 2", got)
	}
}

func TestRecordPrediction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPrediction(ctx, "rule_based", true, 20*time.Millisecond)
	m.RecordPrediction(ctx, "machine_learning", false, 40*time.Millisecond)
	m.RecordFallback(ctx, "classical", "artifact")

	rm := collect(t, reader)

	preds := findMetric(rm, "gunshot.predictions")
	if preds == nil {
		t.Fatal("gunshot.predictions not found")
	}
	if got := sumWhere(t, preds, "method", "rule_based"); got != 1 {
		t.Errorf("rule predictions = %d, want 1", got)
	}

	hist := findMetric(rm, "gunshot.prediction.duration")
	if hist == nil {
		t.Fatal("gunshot.prediction.duration not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected histogram type %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("histogram count = %d, want 2", count)
	}

	fallbacks := findMetric(rm, "gunshot.fallbacks")
	if fallbacks == nil || sumWhere(t, fallbacks, "reason", "artifact") != 1 {
		t.Error("expected one artifact fallback")
	}
}
