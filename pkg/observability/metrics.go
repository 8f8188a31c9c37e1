package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sales_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sales_http_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"route"},
	)

	// ImportsTotal counts finished import jobs by outcome (imported, error, skipped, failed)
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_imports_total",
			Help: "Import jobs by outcome",
		},
		[]string{"outcome"},
	)

	// ImportDuration tracks how long one import job takes
	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sales_import_duration_seconds",
			Help:    "Import job duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// RowsAggregated counts spreadsheet rows merged into sales aggregates
	RowsAggregated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_rows_aggregated_total",
			Help: "Spreadsheet rows merged into monthly sales aggregates",
		},
	)

	// QueueJobsTotal counts queue transitions (enqueued, acked, retried, dead)
	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_queue_jobs_total",
			Help: "Import queue job transitions",
		},
		[]string{"event"},
	)

	// NotificationsTotal counts notifications by channel and verb
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_notifications_total",
			Help: "Notifications sent",
		},
		[]string{"channel", "verb"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records Prometheus metrics for every request. Routes are
// labelled by their ServeMux pattern to keep cardinality bounded.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// TrackActive wraps a single route so in-flight requests are visible per route.
func TrackActive(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ActiveRequests.WithLabelValues(route).Inc()
		defer ActiveRequests.WithLabelValues(route).Dec()
		next.ServeHTTP(w, r)
	})
}
