package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheHitRate   prometheus.Gauge
	cacheKeys      prometheus.Gauge
	cacheEvictions prometheus.Gauge
	boxOperations  *prometheus.CounterVec
	boxDuration    *prometheus.HistogramVec
	boxErrors      *prometheus.CounterVec
	deferredPuts   *prometheus.CounterVec
	transactions   *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusExporter{
		collector: collector,
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "relbox_record_cache_hits_total",
			Help: "Total number of record cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "relbox_record_cache_misses_total",
			Help: "Total number of record cache misses",
		}),
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relbox_record_cache_hit_rate",
			Help: "Current record cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relbox_record_cache_keys_current",
			Help: "Current number of keys in the record cache",
		}),
		cacheEvictions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relbox_record_cache_evictions",
			Help: "Number of record cache evictions since start",
		}),
		boxOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relbox_box_operations_total",
				Help: "Total number of box operations",
			},
			[]string{"op", "entity"},
		),
		boxDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relbox_box_operation_duration_seconds",
				Help:    "Duration of box operations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"op", "entity"},
		),
		boxErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relbox_box_errors_total",
				Help: "Total number of failed box operations",
			},
			[]string{"op", "entity"},
		),
		deferredPuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relbox_deferred_target_puts_total",
				Help: "Total number of transient relation targets put ahead of their owner",
			},
			[]string{"entity"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relbox_transactions_total",
				Help: "Total number of top-level transactions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated via the Recorder, so only update gauges here.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheEvictions.Set(float64(cacheMetrics.Evictions))
}

// RecordOperation records a box operation in Prometheus.
func (e *PrometheusExporter) RecordOperation(op, entity string) {
	e.boxOperations.WithLabelValues(op, entity).Inc()
}

// RecordDuration records a box operation duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(op, entity string, durationSeconds float64) {
	e.boxDuration.WithLabelValues(op, entity).Observe(durationSeconds)
}

// RecordError records a failed box operation in Prometheus.
func (e *PrometheusExporter) RecordError(op, entity string) {
	e.boxErrors.WithLabelValues(op, entity).Inc()
}

// RecordDeferredPut records a deferred relation target put.
func (e *PrometheusExporter) RecordDeferredPut(entity string) {
	e.deferredPuts.WithLabelValues(entity).Inc()
}

// RecordTx records a transaction outcome.
func (e *PrometheusExporter) RecordTx(committed bool) {
	outcome := "committed"
	if !committed {
		outcome = "failed"
	}
	e.transactions.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit() {
	e.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss() {
	e.cacheMisses.Inc()
}
