package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics in Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheHits        prometheus.GaugeFunc
	cacheMisses      prometheus.GaugeFunc
	cacheEvictions   prometheus.GaugeFunc

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusExporter creates an exporter registering its metrics with reg.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		collector: collector,
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_hit_rate",
			Help: "Current principal cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_keys_current",
			Help: "Current number of cached principals",
		}),
		cacheMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_memory_bytes",
			Help: "Approximate memory used by the principal cache in bytes",
		}),
		cacheHits: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_hits",
			Help: "Principal cache hits since start",
		}, func() float64 { return float64(collector.GetCacheMetrics().Hits) }),
		cacheMisses: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_misses",
			Help: "Principal cache misses since start",
		}, func() float64 { return float64(collector.GetCacheMetrics().Misses) }),
		cacheEvictions: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eddy_principal_cache_evictions",
			Help: "Principal cache evictions since start",
		}, func() float64 { return float64(collector.GetCacheMetrics().Evictions) }),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eddy_operation_requests_total",
				Help: "Total number of operation requests",
			},
			[]string{"operation"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eddy_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eddy_operation_errors_total",
				Help: "Total number of failed operations by status code",
			},
			[]string{"operation", "code"},
		),
	}
}

// Update refreshes the gauges read from the collector.
// Call it periodically; counters are updated by the interceptor.
func (e *PrometheusExporter) Update() {
	m := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(m.HitRate)
	e.cacheKeys.Set(float64(m.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(m.MemoryBytes))
}

// RecordRequest records a request.
func (e *PrometheusExporter) RecordRequest(operation string) {
	e.requests.WithLabelValues(operation).Inc()
}

// RecordDuration records a duration.
func (e *PrometheusExporter) RecordDuration(operation string, durationSeconds float64) {
	e.duration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordError records a failure with its status code.
func (e *PrometheusExporter) RecordError(operation, code string) {
	e.errors.WithLabelValues(operation, code).Inc()
}
