// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks local API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_api_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total local API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_api_requests_total",
			Help: "Total local API requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendCallDuration tracks calls made to the marketplace backend.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_call_duration_seconds",
			Help:    "Backend call duration by operation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"operation", "outcome"},
	)

	// SessionsCreated tracks chat sessions created from this device.
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_created_total",
			Help: "Chat sessions created by mode",
		},
		[]string{"mode"},
	)

	// MessagesSent tracks user messages sent and their outcome.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "User messages sent",
		},
		[]string{"outcome"},
	)

	// HistoryPageLoads tracks history pages fetched.
	HistoryPageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_page_loads_total",
			Help: "History pages fetched",
		},
		[]string{"kind"},
	)

	// NotificationEvents tracks inbound live channel events.
	NotificationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_total",
			Help: "Live notification events received",
		},
		[]string{"event"},
	)

	// ChannelState reports the live channel state (0 disconnected, 1 connecting, 2 joined).
	ChannelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_channel_state",
			Help: "Live notification channel state",
		},
	)

	// AlertsActive tracks alerts currently on screen.
	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alerts_active",
			Help: "Ephemeral alerts currently queued",
		},
	)

	// SSEConnectionsActive tracks active alert stream subscribers.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for a local API request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendCall records one backend operation.
func RecordBackendCall(operation string, err error, duration float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	BackendCallDuration.WithLabelValues(operation, outcome).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
