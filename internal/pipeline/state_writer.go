package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

const (
	stateBatchSize     = 100
	stateFlushInterval = 50 * time.Millisecond
)

// StateWriter mirrors accepted packets into the live state cache.
type StateWriter struct {
	ch     <-chan *domain.TelemetryPacket
	cache  StateCache
	logger *slog.Logger
}

func NewStateWriter(ch <-chan *domain.TelemetryPacket, cache StateCache, logger *slog.Logger) *StateWriter {
	return &StateWriter{ch: ch, cache: cache, logger: logger}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.TelemetryPacket, 0, stateBatchSize)
	ticker := time.NewTicker(stateFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-w.ch:
			if !ok {
				w.flushBatch(context.WithoutCancel(ctx), batch)
				return
			}
			batch = append(batch, p)
			if len(batch) >= stateBatchSize {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			return
		}
	}
}

// flushBatch keeps only the newest packet per vehicle; older ones would be
// overwritten anyway.
func (w *StateWriter) flushBatch(ctx context.Context, batch []*domain.TelemetryPacket) {
	latest := make(map[string]*domain.TelemetryPacket, len(batch))
	for _, p := range batch {
		latest[p.VehicleID] = p
	}
	for _, p := range latest {
		if err := w.cache.CacheState(ctx, p); err != nil {
			metrics.StateWriteFailures.Inc()
			w.logger.Warn("state cache update failed", "vehicle_id", p.VehicleID, "err", err)
		}
	}
}
