// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics for the chat service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring streaming
// chat operations. Metrics include:
//   - Request counters (by branch and status)
//   - Latency histograms (time to first fragment, total duration)
//   - Active stream gauges
//   - Sela fetch counters and latency
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "quillfeed"

// Subsystem for streaming metrics
const streamingSubsystem = "streaming"

// StreamingMetrics holds all Prometheus metrics for streaming chat
// operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring streaming
// performance and fetch behavior. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type StreamingMetrics struct {
	// RequestsTotal counts chat requests by branch and status.
	// Labels: branch (simple_stream, enriched_stream), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// TimeToFirstFragmentSeconds measures latency to the first streamed
	// text fragment.
	// Labels: branch
	TimeToFirstFragmentSeconds *prometheus.HistogramVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: branch, status (success, error)
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	// Labels: branch
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by type and branch.
	// Labels: branch, error_code (validation, fetch_error, llm_error, ...)
	ErrorsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts client disconnections mid-stream.
	// Labels: branch
	ClientDisconnectsTotal *prometheus.CounterVec

	// FetchesTotal counts Sela fetch operations by outcome.
	// Labels: transport (rest, node), status (success, error)
	FetchesTotal *prometheus.CounterVec

	// FetchDurationSeconds measures Sela fetch latency.
	// Labels: transport
	FetchDurationSeconds *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance of StreamingMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *StreamingMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Outputs
//
//   - *StreamingMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *StreamingMetrics {
	DefaultMetrics = &StreamingMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by branch and status",
			},
			[]string{"branch", "status"},
		),

		TimeToFirstFragmentSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from request to first streamed fragment in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"branch"},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"branch", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"branch"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "errors_total",
				Help:      "Total streaming errors by type and branch",
			},
			[]string{"branch", "error_code"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: streamingSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"branch"},
		),

		FetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "operations_total",
				Help:      "Total Sela fetch operations by transport and status",
			},
			[]string{"transport", "status"},
		),

		FetchDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Sela fetch latency in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"transport"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeFetchError indicates a Sela fetch failure.
	ErrorCodeFetchError ErrorCode = "fetch_error"

	// ErrorCodeLLMError indicates a completion-source failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Branch Names
// =============================================================================

// Branch labels the two response paths of the chat endpoint.
type Branch string

const (
	// BranchSimple is the plain conversational stream.
	BranchSimple Branch = "simple_stream"

	// BranchEnriched is the fetch-then-summarize stream.
	BranchEnriched Branch = "enriched_stream"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
func (m *StreamingMetrics) RecordRequest(branch Branch, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(branch), status).Inc()
}

// RecordError records a streaming error.
func (m *StreamingMetrics) RecordError(branch Branch, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(branch), string(code)).Inc()
	if code == ErrorCodeClientDisconnect {
		m.ClientDisconnectsTotal.WithLabelValues(string(branch)).Inc()
	}
}

// StreamStarted increments the active streams gauge.
func (m *StreamingMetrics) StreamStarted(branch Branch) {
	m.ActiveStreams.WithLabelValues(string(branch)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *StreamingMetrics) StreamEnded(branch Branch) {
	m.ActiveStreams.WithLabelValues(string(branch)).Dec()
}

// RecordTimeToFirstFragment records first-fragment latency.
func (m *StreamingMetrics) RecordTimeToFirstFragment(branch Branch, seconds float64) {
	m.TimeToFirstFragmentSeconds.WithLabelValues(string(branch)).Observe(seconds)
}

// RecordStreamDuration records total stream duration.
func (m *StreamingMetrics) RecordStreamDuration(branch Branch, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StreamDurationSeconds.WithLabelValues(string(branch), status).Observe(seconds)
}

// RecordFetch records one Sela fetch operation.
func (m *StreamingMetrics) RecordFetch(transport string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.FetchesTotal.WithLabelValues(transport, status).Inc()
	m.FetchDurationSeconds.WithLabelValues(transport).Observe(seconds)
}
