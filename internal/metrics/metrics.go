// Package metrics exposes Prometheus collectors for the monitor. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scrape results
const (
	ResultSuccess  = "success"
	ResultPartial  = "partial"
	ResultFailed   = "failed"
	ResultConflict = "conflict"
)

// Metrics wraps Prometheus collectors for shopwatch
type Metrics struct {
	registry                  *prometheus.Registry
	scrapeDurationSeconds     *prometheus.HistogramVec
	scrapesTotal              *prometheus.CounterVec
	lockConflictsTotal        prometheus.Counter
	remoteCallFailuresTotal   *prometheus.CounterVec
	checkFailuresTotal        *prometheus.CounterVec
	transitionsTotal          *prometheus.CounterVec
	notificationFailuresTotal prometheus.Counter
	cycleDurationSeconds      prometheus.Histogram
	lastSuccessfulCycleGauge  prometheus.Gauge
	httpRequestDuration       *prometheus.HistogramVec
}

// New initializes a Metrics registry with all collectors registered
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		scrapeDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopwatch_scrape_duration_seconds",
			Help:    "Duration of per-shop pipeline runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		scrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopwatch_scrapes_total",
			Help: "Per-shop pipeline runs by result.",
		}, []string{"result"}),
		lockConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopwatch_lock_conflicts_total",
			Help: "Shops skipped because another worker held the lease.",
		}),
		remoteCallFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopwatch_remote_call_failures_total",
			Help: "Failed shop API calls by endpoint.",
		}, []string{"endpoint"}),
		checkFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopwatch_check_failures_total",
			Help: "Checks that errored or panicked, by check name.",
		}, []string{"check"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopwatch_transitions_total",
			Help: "Detected finding transitions by target level.",
		}, []string{"level"}),
		notificationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopwatch_notification_failures_total",
			Help: "Notification dispatches that failed.",
		}),
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopwatch_cycle_duration_seconds",
			Help:    "Duration of scheduled scrape cycles in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopwatch_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last completed scrape cycle.",
		}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopwatch_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	registry.MustRegister(
		m.scrapeDurationSeconds,
		m.scrapesTotal,
		m.lockConflictsTotal,
		m.remoteCallFailuresTotal,
		m.checkFailuresTotal,
		m.transitionsTotal,
		m.notificationFailuresTotal,
		m.cycleDurationSeconds,
		m.lastSuccessfulCycleGauge,
		m.httpRequestDuration,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScrape records one per-shop pipeline run
func (m *Metrics) ObserveScrape(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scrapesTotal.WithLabelValues(result).Inc()
	m.scrapeDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
	if result == ResultConflict {
		m.lockConflictsTotal.Inc()
	}
}

// RemoteCallFailed counts a failed shop API call
func (m *Metrics) RemoteCallFailed(endpoint string) {
	if m == nil {
		return
	}
	m.remoteCallFailuresTotal.WithLabelValues(endpoint).Inc()
}

// CheckFailed counts a check that could not be executed
func (m *Metrics) CheckFailed(name string) {
	if m == nil {
		return
	}
	m.checkFailuresTotal.WithLabelValues(name).Inc()
}

// IncTransitions counts a detected transition
func (m *Metrics) IncTransitions(level string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(level).Inc()
}

// IncNotificationFailures counts a failed dispatch
func (m *Metrics) IncNotificationFailures() {
	if m == nil {
		return
	}
	m.notificationFailuresTotal.Inc()
}

// ObserveCycle records a completed scrape cycle
func (m *Metrics) ObserveCycle(duration time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
	m.lastSuccessfulCycleGauge.Set(float64(finishedAt.Unix()))
}

// ObserveHTTPRequest records an API request
func (m *Metrics) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}
