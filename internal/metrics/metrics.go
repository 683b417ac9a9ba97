// Package metrics provides Prometheus metrics for the sync daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vzcode/vzsync/internal/reconcile"
)

// Metrics holds the collectors of one daemon on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	patchesApplied  prometheus.Counter
	patchOps        *prometheus.CounterVec
	savePasses      *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	entryOutcomes   *prometheus.CounterVec
	documentEntries *prometheus.GaugeVec
	externalChanges prometheus.Counter
	feedClients     prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		patchesApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "vzsync_patches_applied_total",
			Help: "Total number of patches applied to the workspace document",
		}),
		patchOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vzsync_patch_ops_total",
			Help: "Total number of patch operations by kind",
		}, []string{"kind"}),
		savePasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vzsync_save_passes_total",
			Help: "Total number of reconciliation passes",
		}, []string{"result"}),
		saveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vzsync_save_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		entryOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vzsync_entry_outcomes_total",
			Help: "Filesystem steps by action and status",
		}, []string{"action", "status"}),
		documentEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vzsync_document_entries",
			Help: "Number of entries in the workspace document by kind",
		}, []string{"kind"}),
		externalChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "vzsync_external_changes_total",
			Help: "Total number of on-disk edits folded back into the document",
		}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "vzsync_feed_clients",
			Help: "Number of connected feed clients",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vzsync_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vzsync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPatch counts an applied patch and its operations.
func (m *Metrics) RecordPatch(kinds []string) {
	m.patchesApplied.Inc()
	for _, k := range kinds {
		m.patchOps.WithLabelValues(k).Inc()
	}
}

// RecordSave records a reconciliation pass.
func (m *Metrics) RecordSave(res *reconcile.Result) {
	result := "success"
	if len(res.Failures()) > 0 {
		result = "partial"
	}
	m.savePasses.WithLabelValues(result).Inc()
	m.saveDuration.Observe(res.Duration.Seconds())
	for _, o := range res.Outcomes {
		status := "success"
		if o.Err != nil {
			status = "error"
		}
		m.entryOutcomes.WithLabelValues(string(o.Step.Action), status).Inc()
	}
}

// SetEntries sets the document size gauges.
func (m *Metrics) SetEntries(files, dirs int) {
	m.documentEntries.WithLabelValues("file").Set(float64(files))
	m.documentEntries.WithLabelValues("directory").Set(float64(dirs))
}

// RecordExternalChange counts a disk edit picked up by the watcher.
func (m *Metrics) RecordExternalChange() {
	m.externalChanges.Inc()
}

// SetFeedClients sets the number of connected feed clients.
func (m *Metrics) SetFeedClients(n int) {
	m.feedClients.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
