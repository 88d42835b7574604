// Package metrics exposes Prometheus instrumentation for the classification pipeline
// and the ingestion driver. All collectors live in a private registry so several
// instances can coexist in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hatewatch"

// Metrics holds all service metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ItemsClassified   *prometheus.CounterVec
	OverrideFlips     prometheus.Counter
	InferenceDuration *prometheus.HistogramVec
	Batches           *prometheus.CounterVec
	RowsWritten       prometheus.Counter
	RowsSkipped       prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// New creates the metrics and registers them, along with the Go runtime
// collectors, in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ItemsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_classified_total",
			Help:      "Items classified by final label",
		}, []string{"label"}),
		OverrideFlips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_flips_total",
			Help:      "Items flipped from non-hate to hate by the lexical override",
		}),
		InferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent in one backend sub-batch call",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_batches_total",
			Help:      "Ingestion batches by terminal state",
		}, []string{"outcome"}),
		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Classified records persisted",
		}),
		RowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "CSV rows skipped because they could not be parsed",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingestion_queue_depth",
			Help:      "Batches waiting for a worker",
		}),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordLabel(label string) {
	if m == nil {
		return
	}
	m.ItemsClassified.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordOverride() {
	if m == nil {
		return
	}
	m.OverrideFlips.Inc()
}

// ObserveInference records the latency of one backend call for stage.
func (m *Metrics) ObserveInference(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordBatch(outcome string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddRowsWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsWritten.Add(float64(n))
}

func (m *Metrics) AddRowsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsSkipped.Add(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
