// Package observe holds the OpenTelemetry metric instruments for gunshot
// detection: model loads, predictions by answering method, per-request
// fallbacks and prediction latency.
//
// Tests should build their own [Metrics] with [NewMetrics] and a
// ManualReader-backed provider instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/RyanBlaney/sonido-gunshot"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// ModelLoads counts load attempts. Attributes: backend, status.
	ModelLoads metric.Int64Counter

	// Predictions counts answers. Attributes: method, detected.
	Predictions metric.Int64Counter

	// Fallbacks counts per-request fallbacks to rules. Attributes: backend,
	// reason.
	Fallbacks metric.Int64Counter

	// PredictionDuration tracks end-to-end prediction latency. Attribute:
	// method.
	PredictionDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ModelLoads, err = m.Int64Counter("gunshot.model.loads",
		metric.WithDescription("Model load attempts by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.Predictions, err = m.Int64Counter("gunshot.predictions",
		metric.WithDescription("Predictions by answering method and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("gunshot.fallbacks",
		metric.WithDescription("Requests answered by rules after a model backend failed."),
	); err != nil {
		return nil, err
	}
	if met.PredictionDuration, err = m.Float64Histogram("gunshot.prediction.duration",
		metric.WithDescription("Latency of a prediction including fallback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider.
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

// RecordLoad counts one load attempt of backend.
func (m *Metrics) RecordLoad(ctx context.Context, backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

// RecordPrediction counts one answer and records its latency.
func (m *Metrics) RecordPrediction(ctx context.Context, method string, detected bool, elapsed time.Duration) {
	m.Predictions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("detected", detected),
	))
	m.PredictionDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordFallback counts one request that fell back to rules.
func (m *Metrics) RecordFallback(ctx context.Context, backend, reason string) {
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("reason", reason),
	))
}
