// Package metrics provides Prometheus metrics for the clinical case trainer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Manager owns every metric the service exports
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	reasoningSaves   *prometheus.CounterVec
	scoreComputes    *prometheus.CounterVec
	reasoningTotals  prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a manager registered on its own registry so default Go
// collectors stay out of the exposition.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "case_trainer",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.reasoningSaves = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "reasoning",
		Name:      "saves_total",
		Help:      "Clinical reasoning saves by outcome and whether a record was created",
	}, []string{"outcome", "created"})

	m.scoreComputes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "reasoning",
		Name:      "score_computations_total",
		Help:      "Reasoning score computations by outcome",
	}, []string{"outcome"})

	m.reasoningTotals = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "reasoning",
		Name:      "score_total",
		Help:      "Distribution of computed reasoning totals",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cases",
		Name:      "cache_lookups_total",
		Help:      "Case cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	m.httpRequestTimes = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// RecordReasoningSave counts a save
func (m *Manager) RecordReasoningSave(outcome string, created bool) {
	if m == nil {
		return
	}
	m.reasoningSaves.WithLabelValues(outcome, strconv.FormatBool(created)).Inc()
}

// RecordScoreComputation counts a score computation and observes the total on success
func (m *Manager) RecordScoreComputation(outcome string, total int) {
	if m == nil {
		return
	}
	m.scoreComputes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess {
		m.reasoningTotals.Observe(float64(total))
	}
}

// RecordCacheLookup counts a case cache lookup
func (m *Manager) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a request and observes its latency
func (m *Manager) RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestTimes.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
