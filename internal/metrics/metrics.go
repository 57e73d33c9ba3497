package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the monitor.
type Metrics struct {
	Cycles         prometheus.Counter
	SampleErrors   prometheus.Counter
	Alerts         *prometheus.CounterVec
	SinkFailures   *prometheus.CounterVec
	SampleDuration prometheus.Histogram
	BaselineConns  prometheus.Gauge
	LastCycle      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsentinel_cycles_total",
			Help: "Analysis cycles completed.",
		}),
		SampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netsentinel_sample_errors_total",
			Help: "Cycles skipped because the host could not be sampled.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netsentinel_alerts_total",
			Help: "Alert events emitted, by rule and severity.",
		}, []string{"rule", "severity"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netsentinel_sink_failures_total",
			Help: "Failed writes to an alert sink.",
		}, []string{"sink"}),
		SampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "netsentinel_sample_duration_seconds",
			Help:    "Time spent sampling the host's network state.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		BaselineConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netsentinel_baseline_connections",
			Help: "Connections recorded in the baseline.",
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netsentinel_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.",
		}),
	}

	reg.MustRegister(m.Cycles, m.SampleErrors, m.Alerts, m.SinkFailures, m.SampleDuration, m.BaselineConns, m.LastCycle)
	return m
}
