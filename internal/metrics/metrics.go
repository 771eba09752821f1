// Package metrics exposes Prometheus metrics for wrangling runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wrangler"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	rows          *prometheus.GaugeVec
	filteredRows  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
	apiRequests   *prometheus.CounterVec
}

// New creates metrics registered on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Wrangling runs by outcome.",
		}, []string{"outcome"}),
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "view_rows",
			Help:      "Rows in each view after the last successful run.",
		}, []string{"view"}),
		filteredRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filtered_rows",
			Help:      "Rows removed by the path filter in the last successful run.",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		apiRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
	}
}

// RunStats is what a finished run reports.
type RunStats struct {
	Views        map[string]int
	FilteredRows int
	Stages       map[string]time.Duration
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(stats RunStats) {
	m.runs.WithLabelValues(OutcomeSuccess).Inc()
	for view, n := range stats.Views {
		m.rows.WithLabelValues(view).Set(float64(n))
	}
	m.filteredRows.Set(float64(stats.FilteredRows))
	for stage, d := range stats.Stages {
		m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
	m.lastSuccess.SetToCurrentTime()
}

// ObserveFailure records a failed run.
func (m *Metrics) ObserveFailure() {
	m.runs.WithLabelValues(OutcomeFailure).Inc()
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.apiRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
