package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// AlertFilter narrows a query on stored alerts. Zero values match everything.
type AlertFilter struct {
	Rule     string
	Severity string
	Since    time.Time
	Limit    int
}

// Querier reads stored alert events.
type Querier interface {
	RecentAlerts(ctx context.Context, f AlertFilter) ([]model.AlertEvent, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

const defaultLimit = 100

// buildAlertsQuery returns the statement and its positional arguments.
func buildAlertsQuery(f AlertFilter) (string, []interface{}) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT DetectedAt, ID, Rule, Severity, Title, Detail, Fields
		FROM net_alerts
	`)

	var whereClauses []string
	args := []interface{}{}

	if f.Rule != "" {
		whereClauses = append(whereClauses, "Rule = ?")
		args = append(args, f.Rule)
	}
	if f.Severity != "" {
		whereClauses = append(whereClauses, "Severity = ?")
		args = append(args, f.Severity)
	}
	if !f.Since.IsZero() {
		whereClauses = append(whereClauses, "DetectedAt >= ?")
		args = append(args, f.Since)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(whereClauses, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	queryBuilder.WriteString(" ORDER BY DetectedAt DESC LIMIT ?")
	args = append(args, limit)

	return queryBuilder.String(), args
}

// RecentAlerts returns the newest stored alerts matching f.
func (q *clickhouseQuerier) RecentAlerts(ctx context.Context, f AlertFilter) ([]model.AlertEvent, error) {
	stmt, args := buildAlertsQuery(f)
	rows, err := q.conn.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []model.AlertEvent
	for rows.Next() {
		var (
			detectedAt                                time.Time
			id, rule, severity, title, detail, fields string
		)
		if err := rows.Scan(&detectedAt, &id, &rule, &severity, &title, &detail, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		ev := model.AlertEvent{
			ID:         id,
			Rule:       rule,
			Title:      title,
			Detail:     detail,
			Severity:   model.Severity(severity),
			DetectedAt: float64(detectedAt.UnixNano()) / float64(time.Second),
		}
		if fields != "" {
			if err := json.Unmarshal([]byte(fields), &ev.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields of alert %s: %w", id, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
