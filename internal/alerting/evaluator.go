// Package alerting applies the rule set to telemetry, keeping at most one
// unresolved alert per vehicle and rule type.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fleet-monitor/realtime/internal/domain"
	"fleet-monitor/realtime/internal/metrics"
	"fleet-monitor/realtime/internal/rules"
)

// AlertStore persists alerts keyed by (vehicle, rule type).
type AlertStore interface {
	// FindUnresolved returns nil, nil when no unresolved alert exists.
	FindUnresolved(ctx context.Context, vehicleID, alertType string) (*domain.Alert, error)
	// CreateAlert returns nil, nil when an unresolved alert for the pair
	// already exists.
	CreateAlert(ctx context.Context, vehicleID, alertType string, severity domain.AlertSeverity, message string) (*domain.Alert, error)
	// ResolveIfPresent reports whether an unresolved alert was closed.
	ResolveIfPresent(ctx context.Context, vehicleID, alertType string) (bool, error)
}

// Notifier is told about alert lifecycle changes. Implementations must not
// block for long; failures stay inside the notifier.
type Notifier interface {
	AlertCreated(ctx context.Context, alert *domain.Alert)
	AlertResolved(ctx context.Context, vehicleID, alertType string)
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (n Notifiers) AlertCreated(ctx context.Context, alert *domain.Alert) {
	for _, notifier := range n {
		notifier.AlertCreated(ctx, alert)
	}
}

func (n Notifiers) AlertResolved(ctx context.Context, vehicleID, alertType string) {
	for _, notifier := range n {
		notifier.AlertResolved(ctx, vehicleID, alertType)
	}
}

type Evaluator struct {
	rules    rules.Set
	store    AlertStore
	notifier Notifier
	logger   *slog.Logger
}

func NewEvaluator(set rules.Set, store AlertStore, notifier Notifier, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		rules:    set,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Evaluate runs every rule against the packet in order. A failing rule does
// not stop the others; all failures are joined into the returned error.
func (e *Evaluator) Evaluate(ctx context.Context, p *domain.TelemetryPacket) error {
	var errs []error
	for _, rule := range e.rules {
		if err := e.evaluateRule(ctx, p, rule); err != nil {
			metrics.AlertStoreErrors.Inc()
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.Type, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Evaluator) evaluateRule(ctx context.Context, p *domain.TelemetryPacket, rule rules.Rule) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !rule.Matches(p.Data) {
		resolved, err := e.store.ResolveIfPresent(ctx, p.VehicleID, rule.Type)
		if err != nil {
			return fmt.Errorf("resolve: %w", err)
		}
		if resolved {
			metrics.AlertsResolved.WithLabelValues(rule.Type).Inc()
			e.logger.Info("alert resolved", "vehicle_id", p.VehicleID, "rule", rule.Type)
			e.notifyResolved(ctx, p.VehicleID, rule.Type)
		}
		return nil
	}

	existing, err := e.store.FindUnresolved(ctx, p.VehicleID, rule.Type)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if existing != nil {
		return nil
	}

	alert, err := e.store.CreateAlert(ctx, p.VehicleID, rule.Type, rule.Severity, rule.Message(p.Data))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if alert == nil {
		// Lost a race against a concurrent create; the other one stands.
		return nil
	}

	metrics.AlertsCreated.WithLabelValues(rule.Type, string(rule.Severity)).Inc()
	e.logger.Warn("alert generated",
		"vehicle_id", p.VehicleID, "rule", rule.Type, "severity", rule.Severity, "message", alert.Message)
	e.notifyCreated(ctx, alert)
	return nil
}

func (e *Evaluator) notifyCreated(ctx context.Context, alert *domain.Alert) {
	if e.notifier == nil {
		return
	}
	defer e.recoverNotifier(alert.VehicleID, alert.Type)
	e.notifier.AlertCreated(ctx, alert)
}

func (e *Evaluator) notifyResolved(ctx context.Context, vehicleID, alertType string) {
	if e.notifier == nil {
		return
	}
	defer e.recoverNotifier(vehicleID, alertType)
	e.notifier.AlertResolved(ctx, vehicleID, alertType)
}

func (e *Evaluator) recoverNotifier(vehicleID, alertType string) {
	if r := recover(); r != nil {
		e.logger.Error("alert notifier panicked", "vehicle_id", vehicleID, "rule", alertType, "panic", r)
	}
}
