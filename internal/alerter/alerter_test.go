package alerter

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"NetSentinel/internal/metrics"
	"NetSentinel/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingSink struct {
	name    string
	err     error
	batches [][]model.AlertEvent
	closed  bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Write(_ context.Context, events []model.AlertEvent) error {
	s.batches = append(s.batches, events)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func events() []model.AlertEvent {
	return []model.AlertEvent{
		{Rule: model.RuleFanOut, Title: "Process with many connections", Detail: "pid=42 name=nginx connections=60", Severity: model.SeverityHigh},
		{Rule: model.RuleNewConnection, Title: "New outbound connection", Detail: "curl -> 1.2.3.4:80 (ESTABLISHED)", Severity: model.SeverityMedium},
	}
}

func TestDispatch_ConsoleAndSinks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var console bytes.Buffer
	good := &recordingSink{name: "file"}
	a := NewAlerter(zap.NewNop(), m, &console, good)

	a.Dispatch(context.Background(), events())

	assert.Equal(t,
		"[ALERT] Process with many connections - pid=42 name=nginx connections=60\n"+
			"[ALERT] New outbound connection - curl -> 1.2.3.4:80 (ESTABLISHED)\n",
		console.String())
	assert.Len(t, good.batches, 1)
	assert.Len(t, good.batches[0], 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues(model.RuleFanOut, "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Alerts.WithLabelValues(model.RuleNewConnection, "medium")))
}

func TestDispatch_FailingSinkDoesNotStopOthers(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	broken := &recordingSink{name: "nats", err: errors.New("connection refused")}
	good := &recordingSink{name: "file"}
	a := NewAlerter(zap.NewNop(), m, &bytes.Buffer{}, broken, good)

	a.Dispatch(context.Background(), events())
	a.Dispatch(context.Background(), events())

	assert.Len(t, good.batches, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("nats")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("file")))
}

func TestDispatch_NoEvents(t *testing.T) {
	sink := &recordingSink{name: "file"}
	var console bytes.Buffer
	a := NewAlerter(zap.NewNop(), metrics.New(prometheus.NewRegistry()), &console, sink)

	a.Dispatch(context.Background(), nil)
	assert.Empty(t, sink.batches)
	assert.Empty(t, console.String())
}

func TestClose(t *testing.T) {
	s1, s2 := &recordingSink{name: "a"}, &recordingSink{name: "b"}
	NewAlerter(zap.NewNop(), metrics.New(prometheus.NewRegistry()), &bytes.Buffer{}, s1, s2).Close()
	assert.True(t, s1.closed)
	assert.True(t, s2.closed)
}
