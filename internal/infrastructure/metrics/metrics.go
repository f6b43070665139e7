package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "solargw"

var (
	// Device link
	DevicePollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "device_poll_duration_seconds",
			Help:      "Duration of a full device poll in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	DevicePolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_polls_total",
			Help:      "Total number of device polls by result",
		},
		[]string{"result"}, // "ok", "unreachable"
	)

	DeviceCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_commands_total",
			Help:      "Total number of commands by kind and result",
		},
		[]string{"kind", "result"}, // result: "ok", "rejected", "unreachable", "busy", "invalid"
	)

	DeviceOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_online",
			Help:      "1 while the device is considered online, 0 otherwise",
		},
	)

	DeviceConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_consecutive_failures",
			Help:      "Current run of failed polls",
		},
	)

	// Telemetry
	HistorySamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_samples",
			Help:      "Number of tracking samples currently retained",
		},
	)

	SnapshotsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots fanned out to subscribers",
		},
	)

	HubSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_subscribers",
			Help:      "Current number of live snapshot subscribers",
		},
	)

	HubDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_subscribers_dropped_total",
			Help:      "Subscribers disconnected because their buffer was full",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Bridges
	BridgeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Messages forwarded by outbound bridges",
		},
		[]string{"bridge", "result"}, // result: "ok", "error"
	)
)

// RecordPoll records one device poll.
func RecordPoll(duration time.Duration, err error) {
	DevicePollDuration.Observe(duration.Seconds())
	if err != nil {
		DevicePolls.WithLabelValues("unreachable").Inc()
		return
	}
	DevicePolls.WithLabelValues("ok").Inc()
}

// RecordCommand records the outcome of one command request.
func RecordCommand(kind, result string) {
	DeviceCommands.WithLabelValues(kind, result).Inc()
}

// SetDeviceOnline updates the connectivity gauges.
func SetDeviceOnline(online bool, consecutiveFailures int) {
	if online {
		DeviceOnline.Set(1)
	} else {
		DeviceOnline.Set(0)
	}
	DeviceConsecutiveFailures.Set(float64(consecutiveFailures))
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordBridgeMessage records one message forwarded by a bridge.
func RecordBridgeMessage(bridge string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BridgeMessages.WithLabelValues(bridge, result).Inc()
}

// BreakerStateValue maps a breaker state name to the gauge encoding.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
