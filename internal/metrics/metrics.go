// Package metrics exposes Kestrel's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup and cache results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds the collectors, registered on a private registry so tests
// and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	blacklistLookups *prometheus.CounterVec
	blacklistCache   *prometheus.CounterVec
	reports          *prometheus.CounterVec
	promotions       prometheus.Counter
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_analyses_total",
			Help: "Completed analyses by input kind and label.",
		}, []string{"kind", "label"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kestrel_analysis_duration_seconds",
			Help:    "Time spent analyzing one input.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"kind"}),
		blacklistLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_blacklist_lookups_total",
			Help: "Blacklist lookups by result (hit, miss, error).",
		}, []string{"result"}),
		blacklistCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_blacklist_cache_total",
			Help: "Blacklist cache reads by result.",
		}, []string{"result"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kestrel_reports_total",
			Help: "User reports processed by input kind.",
		}, []string{"kind"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kestrel_blacklist_promotions_total",
			Help: "Values added to the blacklist from user reports.",
		}),
	}

	m.registry.MustRegister(
		m.analyses,
		m.analysisDuration,
		m.blacklistLookups,
		m.blacklistCache,
		m.reports,
		m.promotions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveAnalysis records one completed analysis.
func (m *Metrics) ObserveAnalysis(kind, label string, d time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(kind, label).Inc()
	m.analysisDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// BlacklistLookup records a store lookup result.
func (m *Metrics) BlacklistLookup(result string) {
	if m == nil {
		return
	}
	m.blacklistLookups.WithLabelValues(result).Inc()
}

// BlacklistCache records a cache read result.
func (m *Metrics) BlacklistCache(result string) {
	if m == nil {
		return
	}
	m.blacklistCache.WithLabelValues(result).Inc()
}

// Report records a processed user report.
func (m *Metrics) Report(kind string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(kind).Inc()
}

// Promotion records a report-driven blacklist addition.
func (m *Metrics) Promotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
