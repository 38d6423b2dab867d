package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/realtime/internal/domain"
)

func newTestStore(now *time.Time) *MemoryAlertStore {
	s := NewMemoryAlertStore()
	s.now = func() time.Time { return *now }
	return s
}

func TestMemoryAlertStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	a, err := s.FindUnresolved(ctx, "EV-1", "HIGH_MOTOR_TEMP")
	require.NoError(t, err)
	assert.Nil(t, a)

	created, err := s.CreateAlert(ctx, "EV-1", "HIGH_MOTOR_TEMP", domain.SeverityWarning, "Motor temperature high: 95°C")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(1), created.ID)
	assert.True(t, created.Active())

	dup, err := s.CreateAlert(ctx, "EV-1", "HIGH_MOTOR_TEMP", domain.SeverityWarning, "again")
	require.NoError(t, err)
	assert.Nil(t, dup, "second unresolved alert for the same pair")

	found, err := s.FindUnresolved(ctx, "EV-1", "HIGH_MOTOR_TEMP")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	resolved, err := s.ResolveIfPresent(ctx, "EV-1", "HIGH_MOTOR_TEMP")
	require.NoError(t, err)
	assert.True(t, resolved)

	resolved, err = s.ResolveIfPresent(ctx, "EV-1", "HIGH_MOTOR_TEMP")
	require.NoError(t, err)
	assert.False(t, resolved)

	got, err := s.GetAlert(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.False(t, got.Active())

	again, err := s.CreateAlert(ctx, "EV-1", "HIGH_MOTOR_TEMP", domain.SeverityWarning, "back")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, int64(2), again.ID)
}

func TestMemoryAlertStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	created, err := s.CreateAlert(ctx, "EV-1", "LOW_SOC", domain.SeverityWarning, "low")
	require.NoError(t, err)
	created.Message = "mutated"

	got, err := s.GetAlert(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "low", got.Message)
}

func TestMemoryAlertStoreAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	_, err := s.AcknowledgeAlert(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := s.CreateAlert(ctx, "EV-1", "LOW_SOC", domain.SeverityWarning, "low")
	require.NoError(t, err)

	acked, err := s.AcknowledgeAlert(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, acked.AcknowledgedAt)
	assert.True(t, acked.Active(), "acknowledging does not resolve")
}

func TestMemoryAlertStoreListActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	_, _ = s.CreateAlert(ctx, "EV-1", "LOW_SOC", domain.SeverityWarning, "a")
	_, _ = s.CreateAlert(ctx, "EV-2", "LOW_SOC", domain.SeverityWarning, "b")
	_, _ = s.CreateAlert(ctx, "EV-3", "HIGH_SPEED", domain.SeverityWarning, "c")
	_, _ = s.ResolveIfPresent(ctx, "EV-2", "LOW_SOC")

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "EV-3", active[0].VehicleID)
	assert.Equal(t, "EV-1", active[1].VehicleID)
}

func TestMemoryAlertStoreStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(&now)

	_, _ = s.CreateAlert(ctx, "EV-1", "HIGH_MOTOR_TEMP", domain.SeverityWarning, "a")

	now = now.Add(3 * time.Minute)
	_, _ = s.CreateAlert(ctx, "EV-1", "CRITICAL_MOTOR_TEMP", domain.SeverityCritical, "b")
	_, _ = s.CreateAlert(ctx, "EV-2", "LOW_SOC", domain.SeverityWarning, "c")
	_, _ = s.ResolveIfPresent(ctx, "EV-2", "LOW_SOC")

	now = now.Add(30 * time.Second)
	stats, err := s.AlertStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(2), stats.LastMinute)
	assert.Equal(t, int64(3), stats.Last5Minutes)
	assert.Equal(t, int64(3), stats.Today)
	assert.Equal(t, []domain.AlertCount{
		{Key: "CRITICAL", Count: 1},
		{Key: "WARNING", Count: 1},
	}, stats.BySeverity)
	assert.Equal(t, []domain.AlertCount{
		{Key: "CRITICAL_MOTOR_TEMP", Count: 1},
		{Key: "HIGH_MOTOR_TEMP", Count: 1},
		{Key: "LOW_SOC", Count: 1},
	}, stats.ByType)
}

func TestMemoryAlertStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlertStore()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := s.CreateAlert(ctx, "EV-1", "HIGH_SPEED", domain.SeverityWarning, "fast")
			if err == nil && a != nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}
