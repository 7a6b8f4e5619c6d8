// Package metrics provides Prometheus metrics for runpad.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpad_runs_total",
			Help: "Total number of executions by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runpad_batch_run_duration_seconds",
			Help:    "Wall-clock duration of batch runs as seen by the client",
			Buckets: prometheus.DefBuckets,
		},
	)

	liveSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runpad_interactive_sockets",
			Help: "Interactive sockets currently connecting or streaming",
		},
	)

	remoteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpad_workspace_remote_failures_total",
			Help: "Workspace service calls that failed and degraded to local-only behavior",
		},
		[]string{"op"},
	)

	pendingSaves = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runpad_workspace_pending_saves",
			Help: "Local entries whose content has not reached the workspace service",
		},
	)

	openTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runpad_terminal_tabs",
			Help: "Terminal tabs currently open",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runpad_http_requests_total",
			Help: "Requests served by the workspace service",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runpad_http_request_duration_seconds",
			Help:    "Workspace service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun counts one finished execution.
func RecordRun(mode, outcome string) {
	runsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordBatchDuration observes a batch run's client-side latency.
func RecordBatchDuration(d time.Duration) {
	batchDuration.Observe(d.Seconds())
}

// SocketOpened increments the live socket gauge.
func SocketOpened() {
	liveSockets.Inc()
}

// SocketClosed decrements the live socket gauge.
func SocketClosed() {
	liveSockets.Dec()
}

// RecordRemoteFailure counts a degraded workspace service call.
func RecordRemoteFailure(op string) {
	remoteFailures.WithLabelValues(op).Inc()
}

// SetPendingSaves sets the number of unsynced local entries.
func SetPendingSaves(n int) {
	pendingSaves.Set(float64(n))
}

// SetOpenTabs sets the number of open terminal tabs.
func SetOpenTabs(n int) {
	openTabs.Set(float64(n))
}

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
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

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request metrics under a fixed route label, so path
// parameters never blow up label cardinality.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
