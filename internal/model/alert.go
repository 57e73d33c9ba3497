package model

import "context"

// Severity grades an alert.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rule names, used as the "rule" field of every event and as a metrics label.
const (
	RuleThroughput    = "throughput"
	RuleNewConnection = "new_connection"
	RuleFanOut        = "fan_out"
)

// AlertEvent is a single anomaly detected during an analysis cycle.
type AlertEvent struct {
	ID         string
	Rule       string
	Title      string
	Detail     string
	Severity   Severity
	DetectedAt float64
	// Fields carries the rule-specific attributes (interface, pid, remote, ...).
	Fields map[string]any
}

// Record flattens the event into one self-describing map, as persisted by sinks.
func (e AlertEvent) Record() map[string]any {
	rec := make(map[string]any, len(e.Fields)+6)
	for k, v := range e.Fields {
		rec[k] = v
	}
	rec["id"] = e.ID
	rec["rule"] = e.Rule
	rec["title"] = e.Title
	rec["detail"] = e.Detail
	rec["severity"] = string(e.Severity)
	rec["detected_at"] = e.DetectedAt
	return rec
}

// Sink receives the alert events of a cycle. Implementations own any persistence.
type Sink interface {
	Name() string
	Write(ctx context.Context, events []AlertEvent) error
	Close() error
}
