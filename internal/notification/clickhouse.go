package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"
	"NetSentinel/internal/query"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const createAlertsTableStatement = `
CREATE TABLE IF NOT EXISTS net_alerts (
    DetectedAt  DateTime64(3),
    ID          String,
    Host        String,
    Rule        LowCardinality(String),
    Severity    LowCardinality(String),
    Title       String,
    Detail      String,
    Fields      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(DetectedAt)
ORDER BY (Rule, DetectedAt);
`

// alertRow mirrors one row of the net_alerts table.
type alertRow struct {
	DetectedAt time.Time `ch:"DetectedAt"`
	ID         string    `ch:"ID"`
	Host       string    `ch:"Host"`
	Rule       string    `ch:"Rule"`
	Severity   string    `ch:"Severity"`
	Title      string    `ch:"Title"`
	Detail     string    `ch:"Detail"`
	Fields     string    `ch:"Fields"`
}

var dialClickHouse = query.Connect

// ClickHouseSink stores the alerts of every cycle in a single batch.
type ClickHouseSink struct {
	conn   driver.Conn
	host   string
	logger *zap.Logger
}

// NewClickHouseSink connects to ClickHouse and ensures the alerts table exists.
func NewClickHouseSink(cfg config.ClickHouseConfig, host string, logger *zap.Logger) (*ClickHouseSink, error) {
	conn, err := dialClickHouse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createAlertsTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create net_alerts table: %w", err)
	}
	logger.Info("Connected to ClickHouse and ensured net_alerts table exists")

	return &ClickHouseSink{conn: conn, host: host, logger: logger}, nil
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

// Write appends the events to one batch and sends it.
func (s *ClickHouseSink) Write(ctx context.Context, events []model.AlertEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO net_alerts")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, ev := range events {
		row, err := toRow(ev, s.host)
		if err != nil {
			return err
		}
		if err := batch.AppendStruct(&row); err != nil {
			return fmt.Errorf("failed to append alert to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("Wrote alerts to ClickHouse", zap.Int("count", len(events)))
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func toRow(ev model.AlertEvent, host string) (alertRow, error) {
	fields, err := json.Marshal(ev.Fields)
	if err != nil {
		return alertRow{}, fmt.Errorf("failed to encode fields of alert %s: %w", ev.ID, err)
	}
	secs := int64(ev.DetectedAt)
	nanos := int64((ev.DetectedAt - float64(secs)) * float64(time.Second))
	return alertRow{
		DetectedAt: time.Unix(secs, nanos).UTC(),
		ID:         ev.ID,
		Host:       host,
		Rule:       ev.Rule,
		Severity:   string(ev.Severity),
		Title:      ev.Title,
		Detail:     ev.Detail,
		Fields:     string(fields),
	}, nil
}
