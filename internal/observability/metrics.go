package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicketTransitions counts workflow operations by action and result.
	TicketTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_workflow_transitions_total",
		Help: "Ticket workflow operations by action and outcome",
	}, []string{"action", "outcome"})

	// SerialConflicts counts serial allocations that asked the caller to retry.
	SerialConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_serial_conflicts_total",
		Help: "Serial number allocations that ended in a retryable conflict",
	}, []string{"reason"})

	// HandlerFailures counts handler callbacks that returned an error.
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_handler_failures_total",
		Help: "Ticket handler callbacks that failed after a committed transition",
	}, []string{"ticket_type", "callback"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"path", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ticket_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})

	httpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_http_errors_total",
		Help: "HTTP errors by route, method and error code",
	}, []string{"path", "method", "code"})
)

// Metrics records HTTP request metrics.
type Metrics struct{}

// NewMetrics returns the request metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	httpErrors.WithLabelValues(path, method, code).Inc()
}
