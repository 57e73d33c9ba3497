package analyzer

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"

	"NetSentinel/internal/model"

	"github.com/google/uuid"
)

// minElapsed floors the time between two samples, in seconds.
const minElapsed = 1.0

// Thresholds are the limits the analysis rules compare against.
type Thresholds struct {
	BytesPerSec     int64
	ManyConnections int
}

// State is everything the analyzer carries from one cycle to the next.
// It is owned by whichever goroutine drives the cycles.
type State struct {
	Previous *model.Sample
	Baseline model.ConnectionSet
}

// Analyzer applies the throughput, new-connection and fan-out rules to
// successive samples.
type Analyzer struct {
	thresholds Thresholds
	now        func() time.Time
	newID      func() string
}

// New creates an Analyzer with the given thresholds.
func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{
		thresholds: thresholds,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Analyze compares cur against state.Previous and state.Baseline and returns
// the resulting events and the state for the next cycle, whose Previous is
// always cur. Without a previous sample there is nothing to compare and no
// events are produced.
func (a *Analyzer) Analyze(state State, cur *model.Sample) ([]model.AlertEvent, State) {
	next := State{Previous: cur, Baseline: state.Baseline}
	prev := state.Previous
	if prev == nil {
		return nil, next
	}

	detectedAt := float64(a.now().UnixNano()) / float64(time.Second)
	dt := max(minElapsed, cur.Timestamp-prev.Timestamp)

	var events []model.AlertEvent
	events = append(events, a.throughput(prev, cur, dt, detectedAt)...)
	events = append(events, a.newConnections(prev, cur, state.Baseline, detectedAt)...)
	events = append(events, a.fanOut(cur, detectedAt)...)
	return events, next
}

func (a *Analyzer) throughput(prev, cur *model.Sample, dt, detectedAt float64) []model.AlertEvent {
	rates := DiffIO(prev.IOCounters, cur.IOCounters, dt)
	limit := float64(a.thresholds.BytesPerSec)

	var events []model.AlertEvent
	for _, nic := range sortedKeys(rates) {
		r := rates[nic]
		if r.SentPerSec <= limit && r.RecvPerSec <= limit {
			continue
		}
		sent, recv := int64(r.SentPerSec), int64(r.RecvPerSec)
		events = append(events, model.AlertEvent{
			ID:         a.newID(),
			Rule:       model.RuleThroughput,
			Title:      "High throughput on interface",
			Detail:     fmt.Sprintf("%s: sent=%d B/s recv=%d B/s threshold=%d", nic, sent, recv, a.thresholds.BytesPerSec),
			Severity:   model.SeverityHigh,
			DetectedAt: detectedAt,
			Fields: map[string]any{
				"interface":          nic,
				"bytes_sent_per_sec": sent,
				"bytes_recv_per_sec": recv,
			},
		})
	}
	return events
}

func (a *Analyzer) newConnections(prev, cur *model.Sample, baseline model.ConnectionSet, detectedAt float64) []model.AlertEvent {
	var fresh []model.ConnectionKey
	for c := range cur.Connections {
		if c.RemoteIP == "" {
			continue
		}
		if baseline.Contains(c) || prev.Connections.Contains(c) {
			continue
		}
		fresh = append(fresh, c)
	}
	slices.SortFunc(fresh, compareKeys)

	events := make([]model.AlertEvent, 0, len(fresh))
	for _, c := range fresh {
		proc, _ := cur.ProcessName(c.PID)
		who := proc
		if who == "" {
			who = strconv.Itoa(int(c.PID))
		}
		remote := fmt.Sprintf("%s:%d", c.RemoteIP, c.RemotePort)
		events = append(events, model.AlertEvent{
			ID:         a.newID(),
			Rule:       model.RuleNewConnection,
			Title:      "New outbound connection",
			Detail:     fmt.Sprintf("%s -> %s (%s)", who, remote, c.Status),
			Severity:   model.SeverityMedium,
			DetectedAt: detectedAt,
			Fields: map[string]any{
				"local":   fmt.Sprintf("%s:%d", c.LocalIP, c.LocalPort),
				"remote":  remote,
				"status":  c.Status,
				"pid":     c.PID,
				"process": proc,
			},
		})
	}
	return events
}

func (a *Analyzer) fanOut(cur *model.Sample, detectedAt float64) []model.AlertEvent {
	counts := make(map[int32]int)
	for c := range cur.Connections {
		if c.PID != 0 {
			counts[c.PID]++
		}
	}

	var events []model.AlertEvent
	for _, pid := range sortedKeys(counts) {
		n := counts[pid]
		if n < a.thresholds.ManyConnections {
			continue
		}
		proc, _ := cur.ProcessName(pid)
		events = append(events, model.AlertEvent{
			ID:         a.newID(),
			Rule:       model.RuleFanOut,
			Title:      "Process with many connections",
			Detail:     fmt.Sprintf("pid=%d name=%s connections=%d", pid, proc, n),
			Severity:   model.SeverityHigh,
			DetectedAt: detectedAt,
			Fields: map[string]any{
				"pid":        pid,
				"process":    proc,
				"conn_count": n,
			},
		})
	}
	return events
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func compareKeys(x, y model.ConnectionKey) int {
	return cmp.Or(
		cmp.Compare(x.PID, y.PID),
		cmp.Compare(x.RemoteIP, y.RemoteIP),
		cmp.Compare(x.RemotePort, y.RemotePort),
		cmp.Compare(x.LocalIP, y.LocalIP),
		cmp.Compare(x.LocalPort, y.LocalPort),
		cmp.Compare(x.Status, y.Status),
	)
}
