package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the HTTP surface and pipeline throughput. All metrics are
// registered with the default Prometheus registry and exposed at /metrics.
type Metrics struct {
	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// PipelineRunCounter counts pipeline runs by outcome.
	// Labels: status (success|error)
	PipelineRunCounter *prometheus.CounterVec

	// EventCounter counts streamed progress events by step.
	// Labels: step
	EventCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_http_requests_total",
				Help: "Total number of HTTP requests by method, path and status code",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),
		PipelineRunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_pipeline_runs_total",
				Help: "Total number of message pipeline runs by outcome",
			},
			[]string{"status"},
		),
		EventCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_progress_events_total",
				Help: "Total number of progress events streamed to clients by step",
			},
			[]string{"step"},
		),
	}
}
