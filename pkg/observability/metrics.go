// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the plauder server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, path, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plauder_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveStreams tracks the number of turn streams currently in flight.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plauder_streams_active",
			Help: "Active turn streams",
		},
	)

	// ProviderRequestsTotal counts requests sent to backend LLM providers.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider stream latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plauder_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ToolExecutionsTotal counts tool executions by server, tool, and outcome.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"server", "tool", "status"},
	)

	// TurnsTotal counts completed conversational turns by outcome.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plauder_turns_total",
			Help: "Conversational turns",
		},
		[]string{"outcome"},
	)

	// TurnIterations records the number of provider rounds a turn took
	// before producing its final answer.
	TurnIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plauder_turn_iterations",
			Help:    "Provider rounds per turn",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		},
	)
)

// Turn outcome label values.
const (
	TurnOutcomeCompleted    = "completed"
	TurnOutcomeNeedsConfirm = "needs_confirmation"
	TurnOutcomeError        = "error"
	TurnOutcomeCancelled    = "cancelled"
	TurnOutcomeLimit        = "turn_limit"
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActiveStreams,
		ProviderRequestsTotal,
		ProviderLatency,
		ToolExecutionsTotal,
		TurnsTotal,
		TurnIterations,
	)
}
