package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Cycles.Inc()
	m.Cycles.Inc()
	if got := testutil.ToFloat64(m.Cycles); got != 2 {
		t.Fatalf("expected cycles counter 2, got %f", got)
	}

	m.Alerts.WithLabelValues("throughput", "high").Add(3)
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("throughput", "high")); got != 3 {
		t.Fatalf("expected alerts counter 3, got %f", got)
	}

	m.BaselineConns.Set(17)
	if got := testutil.ToFloat64(m.BaselineConns); got != 17 {
		t.Fatalf("expected baseline gauge 17, got %f", got)
	}

	m.SampleDuration.Observe(0.02)
	if samples := testutil.CollectAndCount(m.SampleDuration); samples != 1 {
		t.Fatalf("expected duration histogram to be collected once, got %d", samples)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected registered metrics, got %d (%v)", n, err)
	}
}
