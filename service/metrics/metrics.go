package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Confirmation Metrics
	confirmationWaitDuration *prometheus.HistogramVec
	confirmationPollsTotal   *prometheus.CounterVec

	// Token Operation Metrics
	tokenOperationsTotal   *prometheus.CounterVec
	tokenOperationDuration *prometheus.HistogramVec
	ledgerRecords          prometheus.Gauge

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		confirmationWaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirmation_wait_duration_seconds",
				Help:    "Time spent waiting for a submitted transaction to reach a terminal state",
				Buckets: []float64{1, 2, 4, 8, 15, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		confirmationPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_polls_total",
				Help: "Total number of signature status polls by result",
			},
			[]string{"result"},
		),

		tokenOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_operations_total",
				Help: "Total number of token operations by kind and status",
			},
			[]string{"kind", "status"},
		),
		tokenOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "token_operation_duration_seconds",
				Help:    "End-to-end duration of token operations in seconds",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"kind"},
		),
		ledgerRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_records",
				Help: "Number of operation records held in the in-memory ledger",
			},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE history stream connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Confirmation metric helpers

// RecordConfirmationPoll records one signature status poll.
// result is one of "pending", "confirmed", "failed" or "error".
func (m *Metrics) RecordConfirmationPoll(result string) {
	m.confirmationPollsTotal.WithLabelValues(result).Inc()
}

// RecordConfirmationWait records how long a confirmation wait took and how it ended.
func (m *Metrics) RecordConfirmationWait(outcome string, duration float64) {
	m.confirmationWaitDuration.WithLabelValues(outcome).Observe(duration)
}

// Token operation metric helpers

// RecordTokenOperation records a completed create/mint/transfer.
func (m *Metrics) RecordTokenOperation(kind, status string, duration float64) {
	m.tokenOperationsTotal.WithLabelValues(kind, status).Inc()
	m.tokenOperationDuration.WithLabelValues(kind).Observe(duration)
}

// SetLedgerRecords sets the current ledger size.
func (m *Metrics) SetLedgerRecords(n int) {
	m.ledgerRecords.Set(float64(n))
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
