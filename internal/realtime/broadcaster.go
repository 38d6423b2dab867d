// Package realtime routes vehicle events to subscribed clients.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

const DefaultThrottleWindow = 500 * time.Millisecond

// Transport delivers one event to one client. Delivery is fire-and-forget;
// an error only means the event was not handed to the client.
type Transport interface {
	Deliver(clientID, event string, payload any) error
}

// ThrottlePolicy decides whether a telemetry update with no subscribers
// consumes the vehicle's throttle slot.
type ThrottlePolicy string

const (
	// ThrottleOnDelivery only consumes a slot when at least one client is
	// subscribed to the vehicle.
	ThrottleOnDelivery ThrottlePolicy = "on_delivery"
	// ThrottleOnAttempt consumes a slot on every accepted update.
	ThrottleOnAttempt ThrottlePolicy = "on_attempt"
)

type Options struct {
	ThrottleWindow time.Duration
	Policy         ThrottlePolicy
	Clock          clock.PassiveClock
	Logger         *slog.Logger
}

type Broadcaster struct {
	registry  *Registry
	transport Transport
	window    time.Duration
	policy    ThrottlePolicy
	clock     clock.PassiveClock
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewBroadcaster(registry *Registry, transport Transport, opts Options) *Broadcaster {
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = DefaultThrottleWindow
	}
	if opts.Policy == "" {
		opts.Policy = ThrottleOnDelivery
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broadcaster{
		registry:  registry,
		transport: transport,
		window:    opts.ThrottleWindow,
		policy:    opts.Policy,
		clock:     opts.Clock,
		logger:    opts.Logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// BroadcastStatus sends an online/offline change to every subscriber of the
// vehicle. Status events are never throttled. Its signature matches
// presence.Listener.
func (b *Broadcaster) BroadcastStatus(vehicleID string, status domain.PresenceStatus) {
	b.fanOut(vehicleID, EventVehicleStatus, StatusPayload{
		Event:     EventVehicleStatus,
		VehicleID: vehicleID,
		Status:    status,
	}, b.registry.Subscribers(vehicleID))
}

// BroadcastTelemetry sends a telemetry update unless the vehicle already had
// one within the throttle window. Dropped updates are not queued. It reports
// whether the update reached at least one subscriber.
func (b *Broadcaster) BroadcastTelemetry(p *domain.TelemetryPacket) bool {
	var subscribers []string

	switch b.policy {
	case ThrottleOnAttempt:
		if !b.allow(p.VehicleID) {
			metrics.TelemetryThrottled.Inc()
			return false
		}
		subscribers = b.registry.Subscribers(p.VehicleID)
		if len(subscribers) == 0 {
			return false
		}
	default:
		subscribers = b.registry.Subscribers(p.VehicleID)
		if len(subscribers) == 0 {
			return false
		}
		if !b.allow(p.VehicleID) {
			metrics.TelemetryThrottled.Inc()
			return false
		}
	}

	b.fanOut(p.VehicleID, EventTelemetryUpdate, TelemetryPayload{
		Event:     EventTelemetryUpdate,
		VehicleID: p.VehicleID,
		Data:      p.Data,
		Timestamp: p.Timestamp,
	}, subscribers)
	return true
}

// AlertCreated implements alerting.Notifier.
func (b *Broadcaster) AlertCreated(_ context.Context, a *domain.Alert) {
	created := a.CreatedAt
	b.fanOut(a.VehicleID, EventAlertCreated, AlertPayload{
		Event:     EventAlertCreated,
		VehicleID: a.VehicleID,
		AlertID:   a.ID,
		AlertType: a.Type,
		Severity:  a.Severity,
		Message:   a.Message,
		CreatedAt: &created,
	}, b.registry.Subscribers(a.VehicleID))
}

// AlertResolved implements alerting.Notifier.
func (b *Broadcaster) AlertResolved(_ context.Context, vehicleID, alertType string) {
	b.fanOut(vehicleID, EventAlertResolved, AlertPayload{
		Event:     EventAlertResolved,
		VehicleID: vehicleID,
		AlertType: alertType,
	}, b.registry.Subscribers(vehicleID))
}

func (b *Broadcaster) allow(vehicleID string) bool {
	b.mu.Lock()
	lim, ok := b.limiters[vehicleID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(b.window), 1)
		b.limiters[vehicleID] = lim
	}
	b.mu.Unlock()

	return lim.AllowN(b.clock.Now(), 1)
}

func (b *Broadcaster) fanOut(vehicleID, event string, payload any, subscribers []string) {
	if b.transport == nil || len(subscribers) == 0 {
		return
	}
	for _, clientID := range subscribers {
		if err := b.deliver(clientID, event, payload); err != nil {
			metrics.DeliveryFailures.Inc()
			b.logger.Debug("delivery failed",
				"client_id", clientID, "vehicle_id", vehicleID, "event", event, "err", err)
		}
	}
	metrics.BroadcastsDelivered.WithLabelValues(event).Inc()
}

func (b *Broadcaster) deliver(clientID, event string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panicked: %v", r)
		}
	}()
	return b.transport.Deliver(clientID, event, payload)
}
