// Package monitoring exposes Prometheus collectors for the analysis
// pipeline. A nil *Metrics is valid and records nothing.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "housmart"

// Model attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeQuota   = "quota"
	OutcomeSchema  = "schema"
	OutcomeFatal   = "fatal"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry       *prometheus.Registry
	cacheLookups   *prometheus.CounterVec
	modelAttempts  *prometheus.CounterVec
	keyRotations   prometheus.Counter
	rateWaits      prometheus.Histogram
	geocodeResults *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
}

// New creates collectors and registers them on a fresh registry together
// with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		modelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Model calls by outcome.",
		}, []string{"outcome"}),
		keyRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_key_rotations_total",
			Help:      "Credentials abandoned after exhausting their quota retries.",
		}),
		rateWaits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time spent waiting for a model call slot.",
			Buckets:   []float64{0, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		geocodeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_results_total",
			Help:      "Address resolutions by source (census, fcc, failed).",
		}, []string{"source", "approximate"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.cacheLookups, m.modelAttempts, m.keyRotations, m.rateWaits, m.geocodeResults, m.stageDuration)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(ns string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(ns, result).Inc()
}

// ModelAttempt records one model call outcome.
func (m *Metrics) ModelAttempt(outcome string) {
	if m == nil {
		return
	}
	m.modelAttempts.WithLabelValues(outcome).Inc()
}

// KeyRotation records that a credential was abandoned.
func (m *Metrics) KeyRotation() {
	if m == nil {
		return
	}
	m.keyRotations.Inc()
}

// RateLimitWait records time spent blocked in the rate limiter.
func (m *Metrics) RateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateWaits.Observe(d.Seconds())
}

// GeocodeResult records how an address was resolved. source is empty when
// resolution failed.
func (m *Metrics) GeocodeResult(source string, approximate bool) {
	if m == nil {
		return
	}
	if source == "" {
		source = "failed"
	}
	approx := "false"
	if approximate {
		approx = "true"
	}
	m.geocodeResults.WithLabelValues(source, approx).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
