package notification

import (
	"fmt"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AlertHandler processes one alert received from the bus.
type AlertHandler func(ev model.AlertEvent)

// Subscriber consumes the alerts published by NATSSink.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *zap.Logger
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig, logger *zap.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("net-sentinel-tail"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS server", zap.String("url", cfg.URL))
	return &Subscriber{nc: nc, subject: cfg.Subject, logger: logger}, nil
}

// Start subscribes to the alert subject and hands every decoded event to handler.
func (s *Subscriber) Start(handler AlertHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		ev, err := DecodeEvent(msg.Data)
		if err != nil {
			s.logger.Warn("Dropping undecodable alert", zap.Error(err))
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub
	s.logger.Info("Subscribed, waiting for alerts", zap.String("subject", s.subject))
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("Unsubscribe failed", zap.Error(err))
		}
	}
	if s.nc != nil {
		s.nc.Close()
		s.logger.Info("NATS connection closed")
	}
}
