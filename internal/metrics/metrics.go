package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// OperationLogsTotal counts operation-log entries written, by operation type.
	OperationLogsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_logs_written_total",
			Help: "Total number of operation log entries written",
		},
		[]string{"operation_type"},
	)

	// RollbacksTotal counts rollback attempts by outcome
	// (success, conflict, forbidden, not_found, apply_error, error).
	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operation_rollbacks_total",
			Help: "Total number of rollback attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CleanupDeletedTotal counts log entries removed by retention cleanup.
	CleanupDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "operation_log_cleanup_deleted_total",
			Help: "Total number of operation log entries deleted by retention cleanup",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal,
			OperationLogsTotal, RollbacksTotal, CleanupDeletedTotal)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /v1/equipment/123 -> /v1/equipment/{id}, /v1/logs/45 -> /v1/logs/{id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLogWritten increments the written-entries counter for an operation type.
func RecordLogWritten(operationType string) {
	OperationLogsTotal.WithLabelValues(operationType).Inc()
}

// RecordRollback increments the rollback counter for the given outcome.
func RecordRollback(outcome string) {
	RollbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordCleanup adds the number of entries deleted by one cleanup run.
func RecordCleanup(deleted int64) {
	CleanupDeletedTotal.Add(float64(deleted))
}
