package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	attemptsStarted     *prometheus.CounterVec
	attemptsDeleted     prometheus.Counter
	attemptsSwept       *prometheus.CounterVec
	deadlineRefreshRows prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the quiz API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quiz_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		attemptsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Total number of attempts started, by mode (normal or preview).",
		}, []string{"mode"})

		attemptsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_deleted_total",
			Help: "Total number of attempts deleted.",
		})

		attemptsSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_swept_total",
			Help: "Total number of due attempts transitioned by the sweeper, by resulting state.",
		}, []string{"result"})

		deadlineRefreshRows = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_deadline_refresh_rows_total",
			Help: "Total number of attempt rows touched by bulk deadline refreshes.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			attemptsStarted,
			attemptsDeleted,
			attemptsSwept,
			deadlineRefreshRows,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// AttemptsStarted exposes the counter for started attempts.
func AttemptsStarted() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsStarted
}

// AttemptsDeleted exposes the counter for deleted attempts.
func AttemptsDeleted() prometheus.Counter {
	RegisterMetrics()
	return attemptsDeleted
}

// AttemptsSwept exposes the counter for sweeper transitions.
func AttemptsSwept() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsSwept
}

// DeadlineRefreshRows exposes the counter for rows touched by deadline refreshes.
func DeadlineRefreshRows() prometheus.Counter {
	RegisterMetrics()
	return deadlineRefreshRows
}
