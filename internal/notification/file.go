package notification

import (
	"context"
	"fmt"
	"os"
	"slices"

	"NetSentinel/internal/config"
	"NetSentinel/internal/model"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink appends every event as one JSON object per line to a rotating file.
type FileSink struct {
	path    string
	rotator *lumberjack.Logger
	core    zapcore.Core
}

// NewFileSink opens the alert log. The file is created up-front so that an
// unwritable destination is reported before monitoring starts.
func NewFileSink(path string, cfg config.FileSinkConfig) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close alert log %s: %w", path, err)
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// Only the message key is kept from zap's own metadata; it carries the title.
	encoderConfig := zapcore.EncoderConfig{
		MessageKey: "title",
		LineEnding: zapcore.DefaultLineEnding,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zapcore.InfoLevel)

	return &FileSink{path: path, rotator: rotator, core: core}, nil
}

func (s *FileSink) Name() string { return "file" }

// Write appends the events and flushes them.
func (s *FileSink) Write(_ context.Context, events []model.AlertEvent) error {
	for _, ev := range events {
		if err := s.core.Write(zapcore.Entry{Level: zapcore.InfoLevel, Message: ev.Title}, eventFields(ev)); err != nil {
			return fmt.Errorf("failed to append to %s: %w", s.path, err)
		}
	}
	return s.core.Sync()
}

func (s *FileSink) Close() error {
	return s.rotator.Close()
}

func eventFields(ev model.AlertEvent) []zap.Field {
	fields := []zap.Field{
		zap.String("detail", ev.Detail),
		zap.String("severity", string(ev.Severity)),
		zap.Float64("detected_at", ev.DetectedAt),
		zap.String("rule", ev.Rule),
		zap.String("id", ev.ID),
	}
	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, ev.Fields[k]))
	}
	return fields
}
