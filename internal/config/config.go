package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from either a Go duration string
// ("5s", "1m30s") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// GeneralConfig holds the sampling cadence and the alert log destination.
type GeneralConfig struct {
	Interval Duration `yaml:"interval"`
	// IntervalSeconds overrides Interval when set.
	IntervalSeconds float64 `yaml:"interval_seconds"`
	BaselineSamples int     `yaml:"baseline_samples"`
	LogFile         string  `yaml:"log_file"`
	// SnapshotDir receives a copy of every learned baseline. Empty disables.
	SnapshotDir string `yaml:"snapshot_dir"`
}

// ThresholdsConfig holds the alerting thresholds.
type ThresholdsConfig struct {
	BytesPerSec     int64 `yaml:"bytes_per_sec_threshold"`
	ManyConnections int   `yaml:"many_connections_threshold"`
}

// LoggingConfig controls the application logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// FileSinkConfig controls rotation of the JSONL alert log.
type FileSinkConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// NATSConfig holds the NATS connection details for alert publishing.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SMTPConfig holds the configuration for the email digest sink.
type SMTPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"` // comma-separated
}

// SinksConfig groups every optional alert destination.
type SinksConfig struct {
	File       FileSinkConfig   `yaml:"file"`
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SMTP       SMTPConfig       `yaml:"smtp"`
}

// APIConfig holds the listen addresses of the status servers. Empty disables.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sinks      SinksConfig      `yaml:"sinks"`
	API        APIConfig        `yaml:"api"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			Interval:        Duration(5 * time.Second),
			BaselineSamples: 3,
			LogFile:         "net_sentinel_events.jsonl",
		},
		Thresholds: ThresholdsConfig{
			BytesPerSec:     5_000_000,
			ManyConnections: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Sinks: SinksConfig{
			File: FileSinkConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "netsentinel.alerts",
			},
			ClickHouse: ClickHouseConfig{
				Host:     "127.0.0.1",
				Port:     9000,
				Database: "default",
				Username: "default",
			},
			SMTP: SMTPConfig{
				Port: 587,
			},
		},
	}
}

// SampleInterval returns the effective time between cycles.
func (c *Config) SampleInterval() time.Duration {
	if c.General.IntervalSeconds > 0 {
		return time.Duration(c.General.IntervalSeconds * float64(time.Second))
	}
	return time.Duration(c.General.Interval)
}

// Validate reports every setting the monitor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SampleInterval() <= 0 {
		errs = append(errs, errors.New("general.interval must be positive"))
	}
	if c.General.BaselineSamples < 1 {
		errs = append(errs, errors.New("general.baseline_samples must be at least 1"))
	}
	if c.General.LogFile == "" {
		errs = append(errs, errors.New("general.log_file must not be empty"))
	}
	if c.Thresholds.BytesPerSec <= 0 {
		errs = append(errs, errors.New("thresholds.bytes_per_sec_threshold must be positive"))
	}
	if c.Thresholds.ManyConnections <= 0 {
		errs = append(errs, errors.New("thresholds.many_connections_threshold must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML file and merges it over the defaults. Keys absent
// from the file keep their default value; nested groups merge field by field.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault never fails: a missing or malformed file yields the defaults,
// and individual invalid settings are replaced by their default value.
func LoadOrDefault(filePath string, logger *zap.Logger) *Config {
	cfg := Default()
	if filePath != "" {
		loaded, err := LoadConfig(filePath)
		if err != nil {
			logger.Warn("Falling back to default configuration", zap.String("path", filePath), zap.Error(err))
		} else {
			cfg = loaded
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Warn("Invalid settings replaced by defaults", zap.Error(err))
		cfg.repair()
	}
	return cfg
}

// repair resets every invalid setting to its default.
func (c *Config) repair() {
	def := Default()
	if c.SampleInterval() <= 0 {
		c.General.Interval = def.General.Interval
		c.General.IntervalSeconds = 0
	}
	if c.General.BaselineSamples < 1 {
		c.General.BaselineSamples = def.General.BaselineSamples
	}
	if c.General.LogFile == "" {
		c.General.LogFile = def.General.LogFile
	}
	if c.Thresholds.BytesPerSec <= 0 {
		c.Thresholds.BytesPerSec = def.Thresholds.BytesPerSec
	}
	if c.Thresholds.ManyConnections <= 0 {
		c.Thresholds.ManyConnections = def.Thresholds.ManyConnections
	}
}
