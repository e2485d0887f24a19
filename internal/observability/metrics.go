package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	apiRequestsTotal    *prometheus.CounterVec
	apiLatencySeconds   *prometheus.HistogramVec
	apiErrorsTotal      *prometheus.CounterVec
	connectionsActive   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	messagesSentTotal   *prometheus.CounterVec
	statusTransitions   *prometheus.CounterVec
	pushFailuresTotal   *prometheus.CounterVec
	presenceTransitions *prometheus.CounterVec
	callSignalsTotal    *prometheus.CounterVec
	callRecordsTotal    *prometheus.CounterVec
	busEventsTotal      *prometheus.CounterVec
	framesRejectedTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the realtime core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of live websocket connections on this node.",
		})

		connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total number of authenticated websocket connections accepted.",
		})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Messages persisted by the delivery pipeline.",
		}, []string{"type", "scope"})

		statusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "message_status_transitions_total",
			Help: "Messages moved to a new delivery status.",
		}, []string{"status"})

		pushFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_push_failures_total",
			Help: "Pushes to a resolved connection that failed.",
		}, []string{"kind"})

		presenceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_transitions_total",
			Help: "Presence broadcasts emitted.",
		}, []string{"state"})

		callSignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_signals_total",
			Help: "Call signaling events relayed.",
		}, []string{"kind", "outcome"})

		callRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "call_records_total",
			Help: "Call log requests by outcome.",
		}, []string{"status", "duplicate"})

		busEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_bus_events_total",
			Help: "Broadcasts exchanged with other nodes.",
		}, []string{"transport", "direction"})

		framesRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_frames_rejected_total",
			Help: "Inbound websocket frames rejected before dispatch.",
		})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			connectionsActive, connectionsTotal,
			messagesSentTotal, statusTransitions, pushFailuresTotal,
			presenceTransitions, callSignalsTotal, callRecordsTotal,
			busEventsTotal, framesRejectedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ConnectionsActive exposes the live connection gauge.
func ConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return connectionsActive
}

// ConnectionsTotal exposes the accepted connection counter.
func ConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return connectionsTotal
}

// MessagesSent exposes the persisted message counter.
func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

// StatusTransitions exposes the delivery status counter.
func StatusTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return statusTransitions
}

// PushFailures exposes the failed push counter.
func PushFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return pushFailuresTotal
}

// PresenceTransitions exposes the presence broadcast counter.
func PresenceTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return presenceTransitions
}

// CallSignals exposes the call signaling counter.
func CallSignals() *prometheus.CounterVec {
	RegisterMetrics()
	return callSignalsTotal
}

// CallRecords exposes the call log counter.
func CallRecords() *prometheus.CounterVec {
	RegisterMetrics()
	return callRecordsTotal
}

// BusEvents exposes the cross-node event counter.
func BusEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return busEventsTotal
}

// FramesRejected exposes the rejected frame counter.
func FramesRejected() prometheus.Counter {
	RegisterMetrics()
	return framesRejectedTotal
}
