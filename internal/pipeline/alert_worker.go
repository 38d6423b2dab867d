package pipeline

import (
	"context"
	"log/slog"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
)

// AlertWorker evaluates the packets of one shard sequentially.
type AlertWorker struct {
	shard     int
	ch        <-chan *domain.TelemetryPacket
	evaluator Evaluator
	logger    *slog.Logger
}

func NewAlertWorker(shard int, ch <-chan *domain.TelemetryPacket, evaluator Evaluator, logger *slog.Logger) *AlertWorker {
	return &AlertWorker{
		shard:     shard,
		ch:        ch,
		evaluator: evaluator,
		logger:    logger.With("shard", shard),
	}
}

func (w *AlertWorker) Run(ctx context.Context) {
	// In-flight evaluations finish even while shutting down.
	evalCtx := context.WithoutCancel(ctx)
	for {
		select {
		case p, ok := <-w.ch:
			if !ok {
				return
			}
			w.evaluate(evalCtx, p)

		case <-ctx.Done():
			return
		}
	}
}

func (w *AlertWorker) evaluate(ctx context.Context, p *domain.TelemetryPacket) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EvaluationFailures.Inc()
			w.logger.Error("alert evaluation panicked", "vehicle_id", p.VehicleID, "panic", r)
		}
	}()

	if err := w.evaluator.Evaluate(ctx, p); err != nil {
		metrics.EvaluationFailures.Inc()
		w.logger.Error("alert evaluation failed", "vehicle_id", p.VehicleID, "err", err)
	}
}
