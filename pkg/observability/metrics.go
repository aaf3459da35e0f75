// Package observability holds the Prometheus collectors and the HTTP
// metrics middleware.
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
			Name: "statements_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statements_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ActiveRequests tracks currently active requests
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statements_http_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"route"},
	)

	// StatementsProcessed counts statement tasks by bank and final status
	StatementsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_pipeline_statements_total",
			Help: "Statement processing tasks by bank and status",
		},
		[]string{"bank", "status"},
	)

	// TransactionsUpserted counts rows written (or failed) by the upsert writer
	TransactionsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_pipeline_transactions_total",
			Help: "Transactions handled by the upsert writer",
		},
		[]string{"result"},
	)

	// RulesSkipped counts categorization rules dropped for parse errors
	RulesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_pipeline_rules_skipped_total",
			Help: "Categorization rules skipped because their DSL failed to parse",
		},
	)

	// TaskRetries counts queue task retry attempts
	TaskRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_queue_task_retries_total",
			Help: "Task executions retried after a transient failure",
		},
	)
)

// NewMetricsMiddleware instruments every request with the HTTP collectors.
func NewMetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}

			ActiveRequests.WithLabelValues(route).Inc()
			defer ActiveRequests.WithLabelValues(route).Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
