// Package metrics holds the Prometheus collectors of the host tools.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motorshield"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	commandLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "ack_seconds",
			Help:      "Time from sending a command to its ack.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"command"},
	)
	commandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "failures_total",
			Help:      "Commands that were not acknowledged.",
		},
		[]string{"command", "reason"},
	)
)

// Reasons a command can fail, as recorded in the reason label.
const (
	ReasonAckTimeout = "ack_timeout"
	ReasonClosed     = "closed"
	ReasonError      = "error"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, commandLatency, commandFailures)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordCommand records one command exchange. A nil err observes the ack
// latency; otherwise the failure is counted under reason.
func RecordCommand(command string, duration time.Duration, err error, reason string) {
	RegisterMetrics()
	if err == nil {
		commandLatency.WithLabelValues(command).Observe(duration.Seconds())
		return
	}
	commandFailures.WithLabelValues(command, reason).Inc()
}
