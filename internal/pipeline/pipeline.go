// Package pipeline runs every accepted telemetry packet through persistence,
// presence tracking, live broadcast and alert evaluation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

// ErrPersistence is wrapped by Ingest when the packet could not be stored.
var ErrPersistence = errors.New("telemetry persistence failed")

type TelemetryStore interface {
	StoreTelemetry(ctx context.Context, p *domain.TelemetryPacket) error
}

type LastSeenStore interface {
	TouchLastSeen(ctx context.Context, vehicleIDs []string) error
}

type StateCache interface {
	CacheState(ctx context.Context, p *domain.TelemetryPacket) error
}

type Evaluator interface {
	Evaluate(ctx context.Context, p *domain.TelemetryPacket) error
}

type PresenceTracker interface {
	Touch(vehicleID string) bool
}

type TelemetryBroadcaster interface {
	BroadcastTelemetry(p *domain.TelemetryPacket) bool
}

// Deps are the collaborators of a Pipeline. State may be nil.
type Deps struct {
	Telemetry   TelemetryStore
	LastSeen    LastSeenStore
	State       StateCache
	Evaluator   Evaluator
	Presence    PresenceTracker
	Broadcaster TelemetryBroadcaster
}

type Options struct {
	LastSeenChannelSize   int
	StateChannelSize      int
	AlertChannelSize      int
	AlertWorkers          int
	LastSeenBatchSize     int
	LastSeenFlushInterval time.Duration
	Logger                *slog.Logger
}

type Pipeline struct {
	deps       Deps
	dispatcher *Dispatcher
	logger     *slog.Logger

	lastSeen *LastSeenWriter
	state    *StateWriter
	alerts   []*AlertWorker

	wg sync.WaitGroup
}

func New(deps Deps, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stateSize := opts.StateChannelSize
	if deps.State == nil {
		stateSize = 0
	}

	d := NewDispatcher(opts.LastSeenChannelSize, stateSize, opts.AlertChannelSize, opts.AlertWorkers)
	p := &Pipeline{
		deps:       deps,
		dispatcher: d,
		logger:     logger,
		lastSeen: NewLastSeenWriter(
			d.LastSeenChan,
			deps.LastSeen,
			opts.LastSeenBatchSize,
			opts.LastSeenFlushInterval,
			logger.With("worker", "last_seen"),
		),
	}
	if d.StateChan != nil {
		p.state = NewStateWriter(d.StateChan, deps.State, logger.With("worker", "state"))
	}
	for i, ch := range d.AlertChans {
		p.alerts = append(p.alerts, NewAlertWorker(i, ch, deps.Evaluator, logger.With("worker", "alert")))
	}
	return p
}

// Start launches the background workers. They stop when ctx is cancelled or
// after Stop drains the channels.
func (p *Pipeline) Start(ctx context.Context) {
	p.spawn(func() { p.lastSeen.Run(ctx) })
	if p.state != nil {
		p.spawn(func() { p.state.Run(ctx) })
	}
	for _, w := range p.alerts {
		w := w
		p.spawn(func() { w.Run(ctx) })
	}
	p.logger.Info("pipeline started", "alert_workers", len(p.alerts), "state_cache", p.state != nil)
}

func (p *Pipeline) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Stop closes the work channels and waits for the workers to drain them.
func (p *Pipeline) Stop() {
	p.dispatcher.Close()
	p.wg.Wait()
	p.logger.Info("pipeline stopped")
}

// Ingest processes one validated packet for a known vehicle. Only the
// persistence step can fail the call; everything after it is best effort.
func (p *Pipeline) Ingest(ctx context.Context, packet *domain.TelemetryPacket) error {
	metrics.MessagesReceived.Inc()

	if err := p.deps.Telemetry.StoreTelemetry(ctx, packet); err != nil {
		metrics.PersistFailures.Inc()
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	p.dispatcher.DispatchLastSeen(packet.VehicleID)
	p.dispatcher.DispatchState(packet)

	p.deps.Presence.Touch(packet.VehicleID)
	p.broadcast(packet)

	p.dispatcher.DispatchAlert(packet)
	return nil
}

func (p *Pipeline) broadcast(packet *domain.TelemetryPacket) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("telemetry broadcast panicked", "vehicle_id", packet.VehicleID, "panic", r)
		}
	}()
	p.deps.Broadcaster.BroadcastTelemetry(packet)
}
