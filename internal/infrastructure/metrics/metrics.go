package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "price_reconciler"

// Metrics groups the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SourceRequests  *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	RefreshOutcomes *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	IndexSyncs      *prometheus.CounterVec
}

// New registers every collector on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "requests_total",
			Help:      "Series requests per source and outcome",
		}, []string{"source", "outcome"}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "request_duration_seconds",
			Help:      "Series request duration per source, rate-limit waits included",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"source"}),
		RefreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "instruments_total",
			Help:      "Instrument refreshes per terminal status",
		}, []string{"status"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full refresh cycle",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		IndexSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index_sync",
			Name:      "indices_total",
			Help:      "Index synchronizations per result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SourceRequests,
		m.SourceDuration,
		m.RefreshOutcomes,
		m.RefreshDuration,
		m.IndexSyncs,
	)
	return m
}

func (m *Metrics) ObserveSource(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(source, outcome).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRefresh(status string) {
	if m == nil {
		return
	}
	m.RefreshOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCycle(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveIndexSync(result string) {
	if m == nil {
		return
	}
	m.IndexSyncs.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
