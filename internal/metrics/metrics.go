// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fleet"

// Ingestion
var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "messages_received_total",
		Help:      "Telemetry packets accepted by the pipeline",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "persist_failures_total",
		Help:      "Packets rejected because telemetry could not be stored",
	})

	// ChannelDrops counts work items dropped on a full background channel.
	ChannelDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "channel_drops_total",
		Help:      "Background work items dropped because the channel was full",
	}, []string{"channel"})

	LastSeenWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "last_seen_writes_total",
		Help:      "Vehicle last_seen updates by result",
	}, []string{"result"})

	StateWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingestion",
		Name:      "state_write_failures_total",
		Help:      "Live state cache writes that failed",
	})
)

// Alerting
var (
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "created_total",
		Help:      "Alerts raised by rule type and severity",
	}, []string{"type", "severity"})

	AlertsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "resolved_total",
		Help:      "Alerts auto-resolved by rule type",
	}, []string{"type"})

	AlertStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "store_errors_total",
		Help:      "Alert store operations that failed during evaluation",
	})

	EvaluationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "evaluation_failures_total",
		Help:      "Packets whose alert evaluation reported at least one error",
	})
)

// Realtime
var (
	BroadcastsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "broadcasts_total",
		Help:      "Events fanned out to at least one subscriber, by event",
	}, []string{"event"})

	TelemetryThrottled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "telemetry_throttled_total",
		Help:      "Telemetry updates dropped by the per-vehicle throttle",
	})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "delivery_failures_total",
		Help:      "Per-client deliveries that failed or were dropped",
	})

	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "clients_connected",
		Help:      "Currently connected WebSocket clients",
	})

	VehiclesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "presence",
		Name:      "vehicles_online",
		Help:      "Vehicles currently considered online",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
