package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imposterd"

// Operation results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the collectors for one server instance.
type Metrics struct {
	registry *prometheus.Registry

	imposters            *prometheus.GaugeVec
	operationsTotal      *prometheus.CounterVec
	adminRequestsTotal   *prometheus.CounterVec
	adminRequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imposters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imposters",
			Help:      "Number of running imposters.",
		}, []string{"protocol"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imposter_operations_total",
			Help:      "Imposter lifecycle operations by outcome.",
		}, []string{"operation", "result"}),
		adminRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_requests_total",
			Help:      "Management API requests.",
		}, []string{"method", "path", "status"}),
		adminRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admin_request_duration_seconds",
			Help:      "Management API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.imposters,
		m.operationsTotal,
		m.adminRequestsTotal,
		m.adminRequestDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ImposterStarted records a newly running imposter.
func (m *Metrics) ImposterStarted(protocol string) {
	if m == nil {
		return
	}
	m.imposters.WithLabelValues(protocol).Inc()
}

// ImposterStopped records a removed imposter.
func (m *Metrics) ImposterStopped(protocol string) {
	if m == nil {
		return
	}
	m.imposters.WithLabelValues(protocol).Dec()
}

// Operation counts a lifecycle operation outcome.
func (m *Metrics) Operation(operation string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

// AdminRequest records one management API request. path should be the
// route pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) AdminRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.adminRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.adminRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
