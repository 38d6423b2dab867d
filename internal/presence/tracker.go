// Package presence derives vehicle online/offline status from packet arrival.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

const (
	DefaultOfflineThreshold = 10 * time.Second
	DefaultSweepInterval    = 5 * time.Second
)

// Listener is called on every status transition, while the tracker lock is
// held. It must not call back into the tracker.
type Listener func(vehicleID string, status domain.PresenceStatus)

type Options struct {
	OfflineThreshold time.Duration
	SweepInterval    time.Duration
	Clock            clock.WithTicker
	Logger           *slog.Logger
}

type entry struct {
	lastSeen time.Time
	status   domain.PresenceStatus
}

type Tracker struct {
	mu       sync.Mutex
	vehicles map[string]*entry
	online   int

	threshold time.Duration
	clock     clock.WithTicker
	listener  Listener
	logger    *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a tracker and starts its sweep loop. Call Stop to end it.
func New(opts Options, listener Listener) *Tracker {
	if opts.OfflineThreshold <= 0 {
		opts.OfflineThreshold = DefaultOfflineThreshold
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Tracker{
		vehicles:  make(map[string]*entry),
		threshold: opts.OfflineThreshold,
		clock:     opts.Clock,
		listener:  listener,
		logger:    opts.Logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	ticker := t.clock.NewTicker(opts.SweepInterval)
	go t.run(ticker)
	return t
}

func (t *Tracker) run(ticker clock.Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			t.Sweep()
		case <-t.stop:
			return
		}
	}
}

// Stop ends the sweep loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// Touch records a packet for vehicleID. It returns true when the vehicle
// transitioned to online (first packet, or first packet after going offline).
func (t *Tracker) Touch(vehicleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.vehicles[vehicleID]
	if !ok {
		e = &entry{}
		t.vehicles[vehicleID] = e
	}
	e.lastSeen = t.clock.Now()
	if e.status == domain.StatusOnline {
		return false
	}

	e.status = domain.StatusOnline
	t.online++
	metrics.VehiclesOnline.Set(float64(t.online))
	t.notify(vehicleID, domain.StatusOnline)
	return true
}

// Sweep marks every online vehicle silent for longer than the threshold as
// offline and returns their ids. Each transition is reported once.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var offline []string
	for id, e := range t.vehicles {
		if e.status != domain.StatusOnline || now.Sub(e.lastSeen) <= t.threshold {
			continue
		}
		e.status = domain.StatusOffline
		t.online--
		offline = append(offline, id)
		t.logger.Info("vehicle offline (inactivity)", "vehicle_id", id, "last_seen", e.lastSeen)
		t.notify(id, domain.StatusOffline)
	}
	metrics.VehiclesOnline.Set(float64(t.online))
	return offline
}

func (t *Tracker) notify(vehicleID string, status domain.PresenceStatus) {
	if t.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("presence listener panicked",
				"vehicle_id", vehicleID, "status", status, "panic", r)
		}
	}()
	t.listener(vehicleID, status)
}

func (t *Tracker) Status(vehicleID string) (domain.VehicleStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.vehicles[vehicleID]
	if !ok {
		return domain.VehicleStatus{}, false
	}
	return domain.VehicleStatus{VehicleID: vehicleID, LastSeen: e.lastSeen, Status: e.status}, true
}

// Snapshot returns every tracked vehicle ordered by id.
func (t *Tracker) Snapshot() []domain.VehicleStatus {
	t.mu.Lock()
	out := make([]domain.VehicleStatus, 0, len(t.vehicles))
	for id, e := range t.vehicles {
		out = append(out, domain.VehicleStatus{VehicleID: id, LastSeen: e.lastSeen, Status: e.status})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

func (t *Tracker) Counts() (online, offline int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online, len(t.vehicles) - t.online
}
