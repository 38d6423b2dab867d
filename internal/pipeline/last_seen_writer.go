package pipeline

import (
	"context"
	"log/slog"
	"time"

	"fleet-monitor/realtime/internal/metrics"
)

const (
	retryDelay   = 500 * time.Millisecond
	finalFlushTO = 5 * time.Second
)

// LastSeenWriter batches vehicle ids and stamps vehicles.last_seen once per
// flush. Duplicate ids within a batch collapse into one update.
type LastSeenWriter struct {
	ch        <-chan string
	db        LastSeenStore
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

func NewLastSeenWriter(
	ch <-chan string,
	db LastSeenStore,
	batchSize int,
	interval time.Duration,
	logger *slog.Logger,
) *LastSeenWriter {
	return &LastSeenWriter{
		ch:        ch,
		db:        db,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
	}
}

func (w *LastSeenWriter) Run(ctx context.Context) {
	batch := make(map[string]struct{}, w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) > 0 {
			w.flush(ctx, batch)
			clear(batch)
		}
	}

	for {
		select {
		case id, ok := <-w.ch:
			if !ok {
				w.finalFlush(ctx, flush)
				return
			}
			batch[id] = struct{}{}
			if len(batch) >= w.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)

		case <-ctx.Done():
			w.finalFlush(ctx, flush)
			return
		}
	}
}

// finalFlush runs the last flush on a context that survives shutdown.
func (w *LastSeenWriter) finalFlush(ctx context.Context, flush func(context.Context)) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTO)
	defer cancel()
	flush(c)
}

func (w *LastSeenWriter) flush(ctx context.Context, batch map[string]struct{}) {
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	err := w.db.TouchLastSeen(ctx, ids)
	if err != nil {
		w.logger.Warn("last_seen write failed, retrying", "batch", len(ids), "err", err)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
		}
		err = w.db.TouchLastSeen(ctx, ids)
		if err != nil {
			w.logger.Error("last_seen write permanently failed", "batch", len(ids), "err", err)
			metrics.LastSeenWrites.WithLabelValues("failed").Add(float64(len(ids)))
			return
		}
	}
	metrics.LastSeenWrites.WithLabelValues("ok").Add(float64(len(ids)))
}
