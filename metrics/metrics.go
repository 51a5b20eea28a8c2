// Package metrics holds the Prometheus collectors shared by the cache, the
// orchestrator and the HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "imagegen"

type Metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSets   prometheus.Counter
	cacheErrors *prometheus.CounterVec

	sourceFetches     prometheus.Counter
	requests          *prometheus.CounterVec
	transformDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of result cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of result cache misses",
		}),
		cacheSets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Total number of result cache writes",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Result cache backend failures, by operation",
		}, []string{"op"}),
		sourceFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Total number of object source reads",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Image requests by outcome",
		}, []string{"outcome"}),
		transformDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "duration_seconds",
			Help:      "Time spent decoding, resizing and encoding",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cacheHits, m.cacheMisses, m.cacheSets, m.cacheErrors,
		m.sourceFetches, m.requests, m.transformDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) CacheSet() {
	if m != nil {
		m.cacheSets.Inc()
	}
}

// CacheError counts a swallowed backend failure for op ("get" or "set").
func (m *Metrics) CacheError(op string) {
	if m != nil {
		m.cacheErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SourceFetch() {
	if m != nil {
		m.sourceFetches.Inc()
	}
}

// Request counts a finished image request by outcome: hit, miss, or the
// failure kind (validation, not_found, processing).
func (m *Metrics) Request(outcome string) {
	if m != nil {
		m.requests.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveTransform(d time.Duration) {
	if m != nil {
		m.transformDuration.Observe(d.Seconds())
	}
}
