package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"fleet-monitor/realtime/internal/alerting"
	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/logging"
	"fleet-monitor/realtime/internal/presence"
	"fleet-monitor/realtime/internal/realtime"
	"fleet-monitor/realtime/internal/rules"
	"fleet-monitor/realtime/internal/store"
)

type fakeDB struct {
	mu        sync.Mutex
	stored    []*domain.TelemetryPacket
	touched   [][]string
	storeErr  error
	touchErrs int
}

func (f *fakeDB) StoreTelemetry(_ context.Context, p *domain.TelemetryPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, p)
	return nil
}

func (f *fakeDB) TouchLastSeen(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErrs > 0 {
		f.touchErrs--
		return errors.New("db unavailable")
	}
	f.touched = append(f.touched, ids)
	return nil
}

func (f *fakeDB) touchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.touched {
		out = append(out, b...)
	}
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	states map[string]*domain.TelemetryPacket
}

func (f *fakeCache) CacheState(_ context.Context, p *domain.TelemetryPacket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[p.VehicleID] = p
	return nil
}

type orderedEvaluator struct {
	mu   sync.Mutex
	seen map[string][]int64
}

func (e *orderedEvaluator) Evaluate(_ context.Context, p *domain.TelemetryPacket) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen[p.VehicleID] = append(e.seen[p.VehicleID], p.Timestamp)
	return nil
}

type panickingEvaluator struct{}

func (panickingEvaluator) Evaluate(context.Context, *domain.TelemetryPacket) error { panic("rules exploded") }

type recordingPresence struct {
	mu      sync.Mutex
	touched []string
}

func (r *recordingPresence) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, id)
	return false
}

type panickingBroadcaster struct{}

func (panickingBroadcaster) BroadcastTelemetry(*domain.TelemetryPacket) bool { panic("ws exploded") }

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastTelemetry(*domain.TelemetryPacket) bool { return false }

func testOptions() Options {
	return Options{
		LastSeenChannelSize:   100,
		StateChannelSize:      100,
		AlertChannelSize:      100,
		AlertWorkers:          4,
		LastSeenBatchSize:     10,
		LastSeenFlushInterval: 20 * time.Millisecond,
		Logger:                logging.Discard(),
	}
}

func pkt(id string, ts int64, m domain.Metrics) *domain.TelemetryPacket {
	return &domain.TelemetryPacket{VehicleID: id, Timestamp: ts, Data: m}
}

func TestIngestPersistenceFailureStopsProcessing(t *testing.T) {
	db := &fakeDB{storeErr: errors.New("connection refused")}
	pres := &recordingPresence{}
	eval := &orderedEvaluator{seen: map[string][]int64{}}

	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   eval,
		Presence:    pres,
		Broadcaster: nopBroadcaster{},
	}, testOptions())
	p.Start(context.Background())

	err := p.Ingest(context.Background(), pkt("EV-1", 1, domain.Metrics{"soc": 5}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "connection refused")

	p.Stop()
	assert.Empty(t, pres.touched)
	assert.Empty(t, eval.seen)
	assert.Empty(t, db.touchedIDs())
}

func TestIngestRunsAllStages(t *testing.T) {
	db := &fakeDB{}
	cache := &fakeCache{states: map[string]*domain.TelemetryPacket{}}
	pres := &recordingPresence{}
	eval := &orderedEvaluator{seen: map[string][]int64{}}

	opts := testOptions()
	opts.LastSeenFlushInterval = time.Hour
	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		State:       cache,
		Evaluator:   eval,
		Presence:    pres,
		Broadcaster: nopBroadcaster{},
	}, opts)
	p.Start(context.Background())

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, p.Ingest(context.Background(), pkt("EV-1", i, domain.Metrics{"speed": 40})))
	}
	p.Stop()

	assert.Len(t, db.stored, 3)
	assert.Equal(t, []string{"EV-1", "EV-1", "EV-1"}, pres.touched)
	assert.Equal(t, []int64{1, 2, 3}, eval.seen["EV-1"])
	assert.Equal(t, []string{"EV-1"}, db.touchedIDs(), "ids collapse within a batch")
	require.Contains(t, cache.states, "EV-1")
	assert.Equal(t, int64(3), cache.states["EV-1"].Timestamp)
}

func TestIngestPreservesPerVehicleOrderAcrossShards(t *testing.T) {
	db := &fakeDB{}
	eval := &orderedEvaluator{seen: map[string][]int64{}}

	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   eval,
		Presence:    &recordingPresence{},
		Broadcaster: nopBroadcaster{},
	}, testOptions())
	p.Start(context.Background())

	var wg sync.WaitGroup
	for v := 0; v < 8; v++ {
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("EV-%d", v)
			for ts := int64(1); ts <= 10; ts++ {
				_ = p.Ingest(context.Background(), pkt(id, ts, nil))
			}
		}()
	}
	wg.Wait()
	p.Stop()

	require.Len(t, eval.seen, 8)
	for id, seen := range eval.seen {
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seen, id)
	}
}

func TestIngestSurvivesBroadcastAndEvaluatorPanics(t *testing.T) {
	db := &fakeDB{}
	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   panickingEvaluator{},
		Presence:    &recordingPresence{},
		Broadcaster: panickingBroadcaster{},
	}, testOptions())
	p.Start(context.Background())

	require.NotPanics(t, func() {
		assert.NoError(t, p.Ingest(context.Background(), pkt("EV-1", 1, nil)))
		assert.NoError(t, p.Ingest(context.Background(), pkt("EV-1", 2, nil)))
	})
	p.Stop()
	assert.Len(t, db.stored, 2)
}

func TestIngestAfterStopStillPersists(t *testing.T) {
	db := &fakeDB{}
	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   &orderedEvaluator{seen: map[string][]int64{}},
		Presence:    &recordingPresence{},
		Broadcaster: nopBroadcaster{},
	}, testOptions())
	p.Start(context.Background())
	p.Stop()

	assert.NoError(t, p.Ingest(context.Background(), pkt("EV-1", 1, nil)))
	assert.Len(t, db.stored, 1)
}

// End to end with the real tracker, broadcaster and evaluator.
func TestIngestEndToEnd(t *testing.T) {
	ctx := context.Background()
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tr := &recordingTransport{}
	reg := realtime.NewRegistry()
	reg.AddClient("dash")
	reg.Subscribe("dash", realtime.TopicAll)

	bc := realtime.NewBroadcaster(reg, tr, realtime.Options{
		ThrottleWindow: 500 * time.Millisecond,
		Clock:          clk,
		Logger:         logging.Discard(),
	})
	tracker := presence.New(presence.Options{
		OfflineThreshold: 10 * time.Second,
		SweepInterval:    5 * time.Second,
		Clock:            clk,
		Logger:           logging.Discard(),
	}, bc.BroadcastStatus)
	defer tracker.Stop()

	alerts := store.NewMemoryAlertStore()
	eval := alerting.NewEvaluator(rules.Defaults(), alerts, bc, logging.Discard())
	db := &fakeDB{}

	p := New(Deps{
		Telemetry:   db,
		LastSeen:    db,
		Evaluator:   eval,
		Presence:    tracker,
		Broadcaster: bc,
	}, testOptions())
	p.Start(ctx)

	require.NoError(t, p.Ingest(ctx, pkt("EV-1", 1, domain.Metrics{"motor_temp": 105})))
	require.NoError(t, p.Ingest(ctx, pkt("EV-1", 2, domain.Metrics{"motor_temp": 106})))
	p.Stop()

	assert.Equal(t, []string{
		realtime.EventVehicleStatus,
		realtime.EventTelemetryUpdate,
	}, tr.events()[:2], "status precedes the first telemetry update")
	assert.Equal(t, 1, tr.count(realtime.EventTelemetryUpdate), "second packet inside the throttle window")
	assert.Equal(t, 2, tr.count(realtime.EventAlertCreated))

	active, err := alerts.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	st, ok := tracker.Status("EV-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusOnline, st.Status)
}

type recordingTransport struct {
	mu  sync.Mutex
	got []string
}

func (r *recordingTransport) Deliver(_ string, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, event)
	return nil
}

func (r *recordingTransport) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func (r *recordingTransport) count(event string) int {
	n := 0
	for _, e := range r.events() {
		if e == event {
			n++
		}
	}
	return n
}
