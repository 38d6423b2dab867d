package pipeline

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

// Dispatcher hands background work to the workers without ever blocking the
// ingest path. A full channel drops the item and counts it.
type Dispatcher struct {
	mu     sync.RWMutex
	closed bool

	LastSeenChan chan string
	StateChan    chan *domain.TelemetryPacket // nil when live state caching is off
	AlertChans   []chan *domain.TelemetryPacket
}

// NewDispatcher builds the channels. A stateSize of zero disables the state
// channel; alertShards is clamped to at least one.
func NewDispatcher(lastSeenSize, stateSize, alertSize, alertShards int) *Dispatcher {
	if alertShards < 1 {
		alertShards = 1
	}
	d := &Dispatcher{
		LastSeenChan: make(chan string, lastSeenSize),
		AlertChans:   make([]chan *domain.TelemetryPacket, alertShards),
	}
	if stateSize > 0 {
		d.StateChan = make(chan *domain.TelemetryPacket, stateSize)
	}
	for i := range d.AlertChans {
		d.AlertChans[i] = make(chan *domain.TelemetryPacket, alertSize)
	}
	return d
}

// Shard returns the alert channel index owning the vehicle. All packets of
// one vehicle land on the same shard so its rules run in arrival order.
func (d *Dispatcher) Shard(vehicleID string) int {
	return int(xxhash.Sum64String(vehicleID) % uint64(len(d.AlertChans)))
}

func (d *Dispatcher) DispatchLastSeen(vehicleID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.LastSeenChan <- vehicleID:
	default:
		metrics.ChannelDrops.WithLabelValues("last_seen").Inc()
	}
}

func (d *Dispatcher) DispatchState(p *domain.TelemetryPacket) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed || d.StateChan == nil {
		return
	}

	select {
	case d.StateChan <- p:
	default:
		metrics.ChannelDrops.WithLabelValues("state").Inc()
	}
}

func (d *Dispatcher) DispatchAlert(p *domain.TelemetryPacket) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.AlertChans[d.Shard(p.VehicleID)] <- p:
	default:
		metrics.ChannelDrops.WithLabelValues("alert").Inc()
	}
}

// Close closes every channel so the workers drain and exit. Dispatching
// after Close is a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	close(d.LastSeenChan)
	if d.StateChan != nil {
		close(d.StateChan)
	}
	for _, ch := range d.AlertChans {
		close(ch)
	}
}
