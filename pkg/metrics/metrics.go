// Package metrics defines the Prometheus collectors of the indexer and the
// searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be used without instrumentation.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	BlocksFlushedTotal   prometheus.Counter
	BlockBytesTotal      prometheus.Counter
	TermsMergedTotal     prometheus.Counter
	BuildDuration        *prometheus.HistogramVec
	BuildsTotal          *prometheus.CounterVec
	IndexReloadsTotal    *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg means
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by mode and outcome (ok, zero_result, invalid, error).",
			},
			[]string{"mode", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents inverted into blocks.",
			},
		),
		BlocksFlushedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_blocks_flushed_total",
				Help: "Total block files written.",
			},
		),
		BlockBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_block_bytes_total",
				Help: "Total bytes written to block files.",
			},
		),
		TermsMergedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_terms_merged_total",
				Help: "Total terms written to the postings file.",
			},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_phase_seconds",
				Help:    "Duration of each index build phase in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"phase"},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Total index builds by status.",
			},
			[]string{"status"},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_reloads_total",
				Help: "Total searcher index reloads by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.BlocksFlushedTotal,
		m.BlockBytesTotal,
		m.TermsMergedTotal,
		m.BuildDuration,
		m.BuildsTotal,
		m.IndexReloadsTotal,
	)

	return m
}

// ObserveQuery records one evaluated query.
func (m *Metrics) ObserveQuery(mode, outcome string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(mode, outcome).Inc()
	m.SearchLatency.WithLabelValues(mode).Observe(seconds)
	m.SearchResultsCount.WithLabelValues(mode).Observe(float64(results))
}

// ObserveBlock records one flushed block.
func (m *Metrics) ObserveBlock(docs int, bytes int64) {
	if m == nil {
		return
	}
	m.BlocksFlushedTotal.Inc()
	m.DocsIndexedTotal.Add(float64(docs))
	m.BlockBytesTotal.Add(float64(bytes))
}

// ObservePhase records the duration of a build phase.
func (m *Metrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.BuildDuration.WithLabelValues(phase).Observe(seconds)
}

// ObserveBuild records a finished build.
func (m *Metrics) ObserveBuild(status string, terms int) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(status).Inc()
	m.TermsMergedTotal.Add(float64(terms))
}

// ObserveCache records a result cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// ObserveReload records a searcher index reload.
func (m *Metrics) ObserveReload(status string) {
	if m == nil {
		return
	}
	m.IndexReloadsTotal.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
