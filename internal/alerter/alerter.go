package alerter

import (
	"context"
	"fmt"
	"io"

	"NetSentinel/internal/metrics"
	"NetSentinel/internal/model"

	"go.uber.org/zap"
)

// Alerter surfaces the events of a cycle on the operator console and hands
// them to every configured sink.
type Alerter struct {
	console io.Writer
	sinks   []model.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(logger *zap.Logger, m *metrics.Metrics, console io.Writer, sinks ...model.Sink) *Alerter {
	return &Alerter{
		console: console,
		sinks:   sinks,
		metrics: m,
		logger:  logger,
	}
}

// Dispatch emits the events. A failing sink is reported and counted but never
// stops the other sinks, and no error is returned to the monitoring loop.
func (a *Alerter) Dispatch(ctx context.Context, events []model.AlertEvent) {
	if len(events) == 0 {
		return
	}

	for _, ev := range events {
		if _, err := fmt.Fprintf(a.console, "[ALERT] %s - %s\n", ev.Title, ev.Detail); err != nil {
			a.logger.Warn("Failed to write alert to console", zap.Error(err))
		}
		a.metrics.Alerts.WithLabelValues(ev.Rule, string(ev.Severity)).Inc()
	}

	for _, sink := range a.sinks {
		if err := sink.Write(ctx, events); err != nil {
			a.metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
			a.logger.Error("Failed to deliver alerts",
				zap.String("sink", sink.Name()),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		}
	}

	a.logger.Debug("Alerts dispatched", zap.Int("events", len(events)), zap.Int("sinks", len(a.sinks)))
}

// Close closes every sink.
func (a *Alerter) Close() {
	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			a.logger.Warn("Failed to close sink", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}
