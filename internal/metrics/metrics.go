package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsPriced counts priced rows by outcome (priced or failed).
	RowsPriced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_rows_total",
			Help: "Total number of rows run through the pricing pipeline",
		},
		[]string{"outcome"},
	)

	// ChunksProcessed counts stream messages by task type and result.
	ChunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_chunks_processed_total",
			Help: "Total number of row chunks handled by workers",
		},
		[]string{"task_type", "result"},
	)

	// ChunkDuration observes how long pricing and persisting one chunk takes.
	ChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repricer_chunk_duration_seconds",
			Help:    "Duration of pricing and storing a row chunk in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	// RowsExported counts rows handed to the spreadsheet writer.
	RowsExported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repricer_rows_exported_total",
			Help: "Total number of rewritten rows handed to the export writer",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repricer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repricer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome labels for RowsPriced.
const (
	OutcomePriced = "priced"
	OutcomeFailed = "failed"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
