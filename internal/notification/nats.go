package notification

import (
	"context"
	"fmt"
	"time"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const flushTimeout = 2 * time.Second

// NATSSink publishes every alert event to a NATS subject as a protobuf Struct.
type NATSSink struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATSSink connects to the NATS server.
func NewNATSSink(cfg config.NATSConfig, logger *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("net-sentinel"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS server", zap.String("url", cfg.URL), zap.String("subject", cfg.Subject))
	return &NATSSink{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Write publishes each event and flushes the connection.
func (s *NATSSink) Write(_ context.Context, events []model.AlertEvent) error {
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		if err := s.nc.Publish(s.subject, data); err != nil {
			return fmt.Errorf("failed to publish alert %s: %w", ev.ID, err)
		}
	}
	return s.nc.FlushTimeout(flushTimeout)
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	s.logger.Info("NATS connection drained and closed")
	return err
}

// EncodeEvent serializes an event to the wire format used on the alert subject.
func EncodeEvent(ev model.AlertEvent) ([]byte, error) {
	st, err := structpb.NewStruct(ev.Record())
	if err != nil {
		return nil, fmt.Errorf("failed to convert alert %s: %w", ev.ID, err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert %s: %w", ev.ID, err)
	}
	return data, nil
}

// DecodeEvent is the inverse of EncodeEvent. Numeric rule fields come back as float64.
func DecodeEvent(data []byte) (model.AlertEvent, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return model.AlertEvent{}, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	rec := st.AsMap()
	ev := model.AlertEvent{Fields: make(map[string]any)}
	for k, v := range rec {
		switch k {
		case "id":
			ev.ID, _ = v.(string)
		case "rule":
			ev.Rule, _ = v.(string)
		case "title":
			ev.Title, _ = v.(string)
		case "detail":
			ev.Detail, _ = v.(string)
		case "severity":
			sev, _ := v.(string)
			ev.Severity = model.Severity(sev)
		case "detected_at":
			ev.DetectedAt, _ = v.(float64)
		default:
			ev.Fields[k] = v
		}
	}
	return ev, nil
}
