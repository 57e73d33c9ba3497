package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/engine/analyzer"
	"NetSentinel/internal/metrics"
	"NetSentinel/internal/model"

	"go.uber.org/zap"
)

// Phase is the lifecycle stage of the monitor.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseWarmingUp Phase = "warming_up"
	PhaseLive      Phase = "live"
	PhaseStopped   Phase = "stopped"
)

// Dispatcher receives the events of every cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []model.AlertEvent)
}

// Status is a point-in-time view of the monitor, safe to hand to other goroutines.
type Status struct {
	Phase               Phase     `json:"phase"`
	BaselineConnections int       `json:"baseline_connections"`
	Cycles              uint64    `json:"cycles"`
	AlertsEmitted       uint64    `json:"alerts_emitted"`
	LastCycleAt         time.Time `json:"last_cycle_at,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
}

// Manager drives the sample, analyze, dispatch, sleep cycle. The analyzer
// state is only ever touched from the goroutine calling BuildBaseline,
// RunOnce or Run.
type Manager struct {
	sampler         model.Sampler
	analyzer        *analyzer.Analyzer
	dispatcher      Dispatcher
	metrics         *metrics.Metrics
	logger          *zap.Logger
	interval        time.Duration
	baselineSamples int

	state analyzer.State

	mu        sync.RWMutex
	status    Status
	observers []func(Phase)
}

// NewManager creates a new Manager.
func NewManager(cfg *config.Config, sampler model.Sampler, dispatcher Dispatcher, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		sampler: sampler,
		analyzer: analyzer.New(analyzer.Thresholds{
			BytesPerSec:     cfg.Thresholds.BytesPerSec,
			ManyConnections: cfg.Thresholds.ManyConnections,
		}),
		dispatcher:      dispatcher,
		metrics:         m,
		logger:          logger,
		interval:        cfg.SampleInterval(),
		baselineSamples: cfg.General.BaselineSamples,
		status:          Status{Phase: PhaseIdle},
	}
}

// OnPhaseChange registers fn to be called on every phase transition.
// It must be called before the monitor starts.
func (m *Manager) OnPhaseChange(fn func(Phase)) {
	m.observers = append(m.observers, fn)
}

// BuildBaseline runs the blocking warm-up and returns the number of
// connections recorded as known.
func (m *Manager) BuildBaseline(ctx context.Context) (int, error) {
	m.setPhase(PhaseWarmingUp)
	m.logger.Info("Building baseline",
		zap.Int("samples", m.baselineSamples),
		zap.Duration("interval", m.interval),
	)

	baseline, seed, err := analyzer.BuildBaseline(ctx, m.sampler, m.baselineSamples, m.interval)
	if err != nil {
		return 0, fmt.Errorf("failed to build baseline: %w", err)
	}
	m.state = analyzer.State{Previous: seed, Baseline: baseline}

	m.metrics.BaselineConns.Set(float64(baseline.Len()))
	m.mu.Lock()
	m.status.BaselineConnections = baseline.Len()
	m.mu.Unlock()
	m.setPhase(PhaseLive)

	m.logger.Info("Baseline ready", zap.Int("connections", baseline.Len()))
	return baseline.Len(), nil
}

// Baseline returns the connection set learned during warm-up.
func (m *Manager) Baseline() model.ConnectionSet {
	return m.state.Baseline
}

// SkipBaseline starts from an empty baseline and no previous sample.
func (m *Manager) SkipBaseline() {
	m.UseBaseline(make(model.ConnectionSet))
	m.logger.Info("Baseline skipped")
}

// UseBaseline installs a previously learned baseline. There is no previous
// sample, so the first cycle cannot raise throughput alerts.
func (m *Manager) UseBaseline(baseline model.ConnectionSet) {
	m.state = analyzer.State{Baseline: baseline}
	m.metrics.BaselineConns.Set(float64(baseline.Len()))
	m.mu.Lock()
	m.status.BaselineConnections = baseline.Len()
	m.mu.Unlock()
	m.setPhase(PhaseLive)
}

// RunOnce performs exactly one cycle.
func (m *Manager) RunOnce(ctx context.Context) error {
	return m.cycle(ctx)
}

// Run loops until ctx is cancelled. Cancellation is only observed between
// cycles; a cycle in progress always completes. Sampling failures are logged
// and the loop carries on.
func (m *Manager) Run(ctx context.Context) error {
	defer m.setPhase(PhaseStopped)
	m.logger.Info("Starting continuous monitoring", zap.Duration("interval", m.interval))

	for {
		if err := m.cycle(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Cycle skipped", zap.Error(err))
		}

		t := time.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			m.logger.Info("Monitoring stopped", zap.Uint64("cycles", m.Status().Cycles))
			return nil
		case <-t.C:
		}
	}
}

// Status returns a copy of the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) cycle(ctx context.Context) error {
	start := time.Now()
	cur, err := m.sampler.Sample(ctx)
	m.metrics.SampleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.SampleErrors.Inc()
		m.mu.Lock()
		m.status.LastError = err.Error()
		m.mu.Unlock()
		return fmt.Errorf("failed to sample network state: %w", err)
	}

	events, next := m.analyzer.Analyze(m.state, cur)
	m.state = next
	m.dispatcher.Dispatch(ctx, events)

	now := time.Now()
	m.metrics.Cycles.Inc()
	m.metrics.LastCycle.Set(float64(now.Unix()))
	m.mu.Lock()
	m.status.Cycles++
	m.status.AlertsEmitted += uint64(len(events))
	m.status.LastCycleAt = now
	m.status.LastError = ""
	m.mu.Unlock()

	m.logger.Debug("Cycle completed",
		zap.Int("connections", cur.Connections.Len()),
		zap.Int("interfaces", len(cur.IOCounters)),
		zap.Int("events", len(events)),
	)
	return nil
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.status.Phase = p
	m.mu.Unlock()
	for _, fn := range m.observers {
		fn(p)
	}
}
