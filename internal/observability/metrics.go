package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	checkIns        *prometheus.CounterVec
	checkInDuration prometheus.Histogram
	decisions       *prometheus.CounterVec
	tokensMinted    *prometheus.CounterVec
	tokensResolved  *prometheus.CounterVec
	tokensPurged    prometheus.Counter
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP errors by code.",
		}, []string{"method", "path", "code"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkins_total",
			Help: "Check-in attempts by outcome.",
		}, []string{"outcome"}),
		checkInDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_duration_seconds",
			Help:    "End-to-end check-in latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3},
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_decisions_total",
			Help: "Credential verification decisions.",
		}, []string{"decision"}),
		tokensMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_tokens_minted_total",
			Help: "Reference tokens minted by kind.",
		}, []string{"kind"}),
		tokensResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_tokens_resolved_total",
			Help: "Reference token resolutions by result.",
		}, []string{"result"}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reference_tokens_purged_total",
			Help: "Expired reference tokens removed by the cleanup worker.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.checkIns, m.checkInDuration, m.decisions,
		m.tokensMinted, m.tokensResolved, m.tokensPurged,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(method, path, code).Inc()
}

// RecordCheckIn counts one check-in attempt. outcome is "accepted" or the denial decision.
func (m *Metrics) RecordCheckIn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(outcome).Inc()
	m.checkInDuration.Observe(duration.Seconds())
}

// RecordDecision counts a single credential verification decision.
func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// RecordTokenMinted counts a minted reference token.
func (m *Metrics) RecordTokenMinted(kind string) {
	if m == nil {
		return
	}
	m.tokensMinted.WithLabelValues(kind).Inc()
}

// RecordTokenResolved counts a resolution attempt.
func (m *Metrics) RecordTokenResolved(result string) {
	if m == nil {
		return
	}
	m.tokensResolved.WithLabelValues(result).Inc()
}

// RecordTokensPurged adds to the purge counter.
func (m *Metrics) RecordTokensPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensPurged.Add(float64(n))
}
