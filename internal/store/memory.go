package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleet-monitor/realtime/internal/domain"
)

type alertKey struct {
	vehicleID string
	alertType string
}

// MemoryAlertStore keeps alerts in process memory. It backs tests and
// single-node runs without Postgres.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	nextID int64
	alerts map[int64]*domain.Alert
	active map[alertKey]int64
	now    func() time.Time
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{
		alerts: make(map[int64]*domain.Alert),
		active: make(map[alertKey]int64),
		now:    time.Now,
	}
}

func (s *MemoryAlertStore) FindUnresolved(_ context.Context, vehicleID, alertType string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[alertKey{vehicleID, alertType}]
	if !ok {
		return nil, nil
	}
	a := *s.alerts[id]
	return &a, nil
}

func (s *MemoryAlertStore) CreateAlert(
	_ context.Context,
	vehicleID string,
	alertType string,
	severity domain.AlertSeverity,
	message string,
) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey{vehicleID, alertType}
	if _, exists := s.active[key]; exists {
		return nil, nil
	}

	s.nextID++
	a := &domain.Alert{
		ID:        s.nextID,
		VehicleID: vehicleID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	s.alerts[a.ID] = a
	s.active[key] = a.ID

	out := *a
	return &out, nil
}

func (s *MemoryAlertStore) ResolveIfPresent(_ context.Context, vehicleID, alertType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertKey{vehicleID, alertType}
	id, ok := s.active[key]
	if !ok {
		return false, nil
	}
	now := s.now().UTC()
	s.alerts[id].ResolvedAt = &now
	delete(s.active, key)
	return true, nil
}

// ListActive returns unresolved alerts, newest first.
func (s *MemoryAlertStore) ListActive(_ context.Context) ([]domain.Alert, error) {
	s.mu.RLock()
	out := make([]domain.Alert, 0, len(s.active))
	for _, id := range s.active {
		out = append(out, *s.alerts[id])
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryAlertStore) GetAlert(_ context.Context, id int64) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *MemoryAlertStore) AcknowledgeAlert(_ context.Context, id int64) (*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now().UTC()
	a.AcknowledgedAt = &now
	out := *a
	return &out, nil
}

func (s *MemoryAlertStore) AlertStats(_ context.Context) (*domain.AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	stats := &domain.AlertStats{}
	bySeverity := map[string]int64{}
	byType := map[string]int64{}
	for _, a := range s.alerts {
		if a.Active() {
			stats.Active++
			bySeverity[string(a.Severity)]++
		}
		age := now.Sub(a.CreatedAt)
		if age <= time.Minute {
			stats.LastMinute++
		}
		if age <= 5*time.Minute {
			stats.Last5Minutes++
			byType[a.Type]++
		}
		if !a.CreatedAt.Before(today) {
			stats.Today++
		}
	}
	stats.BySeverity = sortedCounts(bySeverity)
	stats.ByType = sortedCounts(byType)
	return stats, nil
}

func sortedCounts(m map[string]int64) []domain.AlertCount {
	out := make([]domain.AlertCount, 0, len(m))
	for k, v := range m {
		out = append(out, domain.AlertCount{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
