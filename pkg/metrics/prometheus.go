// Package metrics provides Prometheus metrics for the janus lineup service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector of the service. A nil *Manager records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Pipeline
	gamesProcessed    *prometheus.CounterVec
	gameDuration      prometheus.Histogram
	miscountsRecorded *prometheus.CounterVec
	miscountsRepaired prometheus.Counter
	workersActive     prometheus.Gauge

	// Providers
	providerFetches  *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Backfill
	backfillJobs *prometheus.CounterVec
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

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets the registry collectors are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates a metrics manager on its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "janus",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.gamesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "games_processed_total",
		Help:      "Games processed by outcome (ok, miscount, failed)",
	}, []string{"outcome"})

	m.gameDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "game_duration_seconds",
		Help:      "Time to process one game",
		Buckets:   m.histogramBuckets,
	})

	m.miscountsRecorded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "miscounts_recorded_total",
		Help:      "Unresolved lineup miscount quarters by side",
	}, []string{"side"})

	m.miscountsRepaired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "miscounts_repaired_total",
		Help:      "Whole-quarter lineup miscounts repaired from box score minutes",
	})

	m.workersActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "workers_active",
		Help:      "Games currently being processed",
	})

	m.providerFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "provider",
		Name:      "fetches_total",
		Help:      "Remote page fetches by kind and result",
	}, []string{"kind", "result"})

	m.providerDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "provider",
		Name:      "fetch_duration_seconds",
		Help:      "Remote page fetch duration",
		Buckets:   m.histogramBuckets,
	}, []string{"kind"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})

	m.backfillJobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "backfill",
		Name:      "jobs_total",
		Help:      "Backfill jobs by final status",
	}, []string{"status"})
}

// Handler serves the manager's registry.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Manager) RecordGame(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gamesProcessed.WithLabelValues(outcome).Inc()
	m.gameDuration.Observe(d.Seconds())
}

func (m *Manager) RecordMiscount(side string) {
	if m == nil {
		return
	}
	m.miscountsRecorded.WithLabelValues(side).Inc()
}

func (m *Manager) RecordRepair() {
	if m == nil {
		return
	}
	m.miscountsRepaired.Inc()
}

func (m *Manager) WorkerStarted() {
	if m == nil {
		return
	}
	m.workersActive.Inc()
}

func (m *Manager) WorkerDone() {
	if m == nil {
		return
	}
	m.workersActive.Dec()
}

func (m *Manager) RecordFetch(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerFetches.WithLabelValues(kind, result).Inc()
	m.providerDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Manager) RecordHTTPRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Manager) RecordBackfillJob(status string) {
	if m == nil {
		return
	}
	m.backfillJobs.WithLabelValues(status).Inc()
}
