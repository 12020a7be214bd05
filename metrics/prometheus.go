// Package metrics provides Prometheus metrics for the dashboard backend.
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

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so services can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	pipelineDuration prometheus.Histogram
	snapshotNodes    *prometheus.GaugeVec
	refreshTotal     *prometheus.CounterVec
	importRows       *prometheus.CounterVec
	geoLookups       *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pipelineDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pnodedash_pipeline_duration_seconds",
				Help:    "Time spent enriching, ranking and aggregating one snapshot",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		snapshotNodes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pnodedash_snapshot_nodes",
				Help: "Nodes in the current snapshot by status",
			},
			[]string{"status"},
		),
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnodedash_cache_refresh_total",
				Help: "Dashboard cache refreshes by result",
			},
			[]string{"result"},
		),
		importRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnodedash_import_rows_total",
				Help: "Imported rows by outcome",
			},
			[]string{"outcome"},
		),
		geoLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnodedash_geo_lookups_total",
				Help: "Geolocation lookups by result",
			},
			[]string{"result"},
		),
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pnodedash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pnodedash_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(d.Seconds())
}

func (m *Metrics) SetSnapshotNodes(online, offline int) {
	if m == nil {
		return
	}
	m.snapshotNodes.WithLabelValues("online").Set(float64(online))
	m.snapshotNodes.WithLabelValues("offline").Set(float64(offline))
}

// RecordRefresh counts a cache refresh; result is "ok", "error" or "superseded".
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordImportRows(valid, invalid int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("valid").Add(float64(valid))
	m.importRows.WithLabelValues("invalid").Add(float64(invalid))
}

func (m *Metrics) RecordGeoLookup(ok bool) {
	if m == nil {
		return
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	m.geoLookups.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request. path should be the
// route pattern, not the raw URL.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
