package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/metrics"
	"NetSentinel/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSampler produces samples one second apart; fn decides the connections
// of call i and may fail it.
type fakeSampler struct {
	mu    sync.Mutex
	calls int
	fn    func(i int) (model.ConnectionSet, error)
}

func (s *fakeSampler) Sample(context.Context) (*model.Sample, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	conns, err := s.fn(i)
	if err != nil {
		return nil, err
	}
	return &model.Sample{
		Timestamp:    float64(i),
		IOCounters:   map[string]model.IOCounters{"eth0": {}},
		Connections:  conns,
		ProcessNames: map[int32]string{},
	}, nil
}

type recordingDispatcher struct {
	batches [][]model.AlertEvent
	after   func(n int)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []model.AlertEvent) {
	d.batches = append(d.batches, events)
	if d.after != nil {
		d.after(len(d.batches))
	}
}

var (
	known  = model.ConnectionKey{LocalIP: "10.0.0.1", LocalPort: 50000, RemoteIP: "1.1.1.1", RemotePort: 443, Status: "ESTABLISHED", PID: 10}
	intrud = model.ConnectionKey{LocalIP: "10.0.0.1", LocalPort: 50001, RemoteIP: "6.6.6.6", RemotePort: 4444, Status: "ESTABLISHED", PID: 66}
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.General.Interval = config.Duration(time.Millisecond)
	cfg.General.BaselineSamples = 2
	return cfg
}

func newTestManager(sampler model.Sampler, d Dispatcher) (*Manager, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewManager(testConfig(), sampler, d, m, zap.NewNop()), m
}

func TestManager_BaselineThenCycle(t *testing.T) {
	sampler := &fakeSampler{fn: func(i int) (model.ConnectionSet, error) {
		if i < 2 {
			return model.NewConnectionSet(known), nil
		}
		return model.NewConnectionSet(known, intrud), nil
	}}
	d := &recordingDispatcher{}
	mgr, m := newTestManager(sampler, d)

	var phases []Phase
	mgr.OnPhaseChange(func(p Phase) { phases = append(phases, p) })

	n, err := mgr.BuildBaseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BaselineConns))
	assert.Equal(t, []Phase{PhaseWarmingUp, PhaseLive}, phases)

	require.NoError(t, mgr.RunOnce(context.Background()))
	require.Len(t, d.batches, 1)
	require.Len(t, d.batches[0], 1, "seeded previous sample allows diffing on the first cycle")
	assert.Equal(t, int32(66), d.batches[0][0].Fields["pid"])

	st := mgr.Status()
	assert.Equal(t, PhaseLive, st.Phase)
	assert.Equal(t, 1, st.BaselineConnections)
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, uint64(1), st.AlertsEmitted)
	assert.False(t, st.LastCycleAt.IsZero())
}

func TestManager_SkipBaseline(t *testing.T) {
	sampler := &fakeSampler{fn: func(int) (model.ConnectionSet, error) {
		return model.NewConnectionSet(known), nil
	}}
	d := &recordingDispatcher{}
	mgr, _ := newTestManager(sampler, d)
	mgr.SkipBaseline()

	// first cycle has no previous sample, the second sees known in previous
	require.NoError(t, mgr.RunOnce(context.Background()))
	require.NoError(t, mgr.RunOnce(context.Background()))
	require.Len(t, d.batches, 2)
	assert.Empty(t, d.batches[0])
	assert.Empty(t, d.batches[1])
	assert.Equal(t, 0, mgr.Status().BaselineConnections)
}

func TestManager_UseBaseline(t *testing.T) {
	sampler := &fakeSampler{fn: func(i int) (model.ConnectionSet, error) {
		if i == 0 {
			return model.NewConnectionSet(), nil
		}
		return model.NewConnectionSet(known, intrud), nil
	}}
	d := &recordingDispatcher{}
	mgr, m := newTestManager(sampler, d)

	var phases []Phase
	mgr.OnPhaseChange(func(p Phase) { phases = append(phases, p) })
	mgr.UseBaseline(model.NewConnectionSet(known))

	require.NoError(t, mgr.RunOnce(context.Background()))
	require.NoError(t, mgr.RunOnce(context.Background()))
	require.Len(t, d.batches, 2)
	assert.Empty(t, d.batches[0])
	require.Len(t, d.batches[1], 1)
	assert.Equal(t, model.RuleNewConnection, d.batches[1][0].Rule)

	assert.Equal(t, []Phase{PhaseLive}, phases)
	assert.Equal(t, 1, mgr.Status().BaselineConnections)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BaselineConns))
	assert.True(t, mgr.Baseline().Contains(known))
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler := &fakeSampler{fn: func(i int) (model.ConnectionSet, error) {
		if i == 1 {
			return nil, errors.New("netlink: permission denied")
		}
		return model.NewConnectionSet(known), nil
	}}
	d := &recordingDispatcher{after: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	mgr, m := newTestManager(sampler, d)
	mgr.SkipBaseline()

	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	st := mgr.Status()
	assert.Equal(t, PhaseStopped, st.Phase)
	assert.Equal(t, uint64(3), st.Cycles, "the failed sample is skipped, not fatal")
	assert.Equal(t, 4, sampler.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SampleErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Cycles))
}

func TestManager_BaselineFailure(t *testing.T) {
	sampler := &fakeSampler{fn: func(int) (model.ConnectionSet, error) {
		return nil, errors.New("boom")
	}}
	mgr, _ := newTestManager(sampler, &recordingDispatcher{})

	_, err := mgr.BuildBaseline(context.Background())
	assert.ErrorContains(t, err, "failed to build baseline")
	assert.Equal(t, PhaseWarmingUp, mgr.Status().Phase)
}
