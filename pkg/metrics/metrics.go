// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RunsTotal tracks agent runs by kind and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_runs_total",
			Help: "Total agent runs",
		},
		[]string{"kind", "provider", "status"},
	)

	// RunDuration tracks end-to-end agent run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"kind", "provider"},
	)

	// ToolCallsTotal tracks tool executions by tool and outcome.
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_calls_total",
			Help: "Total tool executions",
		},
		[]string{"tool", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// LLMCostUSD tracks accumulated LLM spend.
	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Accumulated LLM cost in USD",
		},
		[]string{"model"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionsActive tracks stored presentation sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presentation_sessions_active",
			Help: "Number of stored presentation sessions",
		},
	)

	// SessionsPurgedTotal tracks sessions removed by retention GC.
	SessionsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presentation_sessions_purged_total",
			Help: "Sessions purged by the retention sweep",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRun records metrics for a completed agent run.
func RecordRun(kind, provider, status, model string, duration float64, tokensIn, tokensOut int, cost float64) {
	RunsTotal.WithLabelValues(kind, provider, status).Inc()
	RunDuration.WithLabelValues(kind, provider).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
	LLMCostUSD.WithLabelValues(model).Add(cost)
}

// RecordToolCall records one tool execution.
func RecordToolCall(tool string, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
