package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gloveterm/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Transport string        `yaml:"transport"` // "ble" or "serial"
	Device    DeviceConfig  `yaml:"device"`
	Serial    SerialConfig  `yaml:"serial"`
	Console   ConsoleConfig `yaml:"console"`
	Logger    LoggerConfig  `yaml:"logger"`
	Tracer    TracerConfig  `yaml:"tracer"`
}

// DeviceConfig identifies the target service and characteristics and tunes
// connection timing.
type DeviceConfig struct {
	ServiceUUID    string `yaml:"service_uuid"`
	NotifyCharUUID string `yaml:"notify_char_uuid"`
	WriteCharUUID  string `yaml:"write_char_uuid"`
	SettleDelay    string `yaml:"settle_delay"` // e.g. "500ms"
	ScanTimeout    string `yaml:"scan_timeout"` // e.g. "10s"; empty = until stopped
}

// SerialConfig holds the serial transport settings.
type SerialConfig struct {
	Port     string `yaml:"port"` // empty = pick via scan
	BaudRate int    `yaml:"baud_rate"`
}

// ConsoleConfig tunes the terminal UI and the stream pipeline.
type ConsoleConfig struct {
	SinkCapacity   int      `yaml:"sink_capacity"`
	PendingLimit   int      `yaml:"pending_limit"`
	SuppressedTags []string `yaml:"suppressed_tags"`
	HistorySize    int      `yaml:"history_size"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// SettleDelayDuration parses the settle delay, falling back to the given
// default on empty or malformed values.
func (d DeviceConfig) SettleDelayDuration(fallback time.Duration) time.Duration {
	if d.SettleDelay == "" {
		return fallback
	}
	v, err := time.ParseDuration(d.SettleDelay)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// ScanTimeoutDuration parses the scan timeout. Zero means scan until
// explicitly stopped.
func (d DeviceConfig) ScanTimeoutDuration() time.Duration {
	if d.ScanTimeout == "" {
		return 0
	}
	v, err := time.ParseDuration(d.ScanTimeout)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Transport: "ble",
		Device: DeviceConfig{
			ServiceUUID:    domain.NUSServiceUUID,
			NotifyCharUUID: domain.NUSNotifyUUID,
			WriteCharUUID:  domain.NUSWriteUUID,
			SettleDelay:    "500ms",
			ScanTimeout:    "10s",
		},
		Serial: SerialConfig{
			BaudRate: 115200,
		},
		Console: ConsoleConfig{
			SinkCapacity:   1000,
			PendingLimit:   4096,
			SuppressedTags: []string{"FUSION", "MOTION", "FLEX"},
			HistorySize:    100,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over defaults and applies env overrides.
// A missing file is not an error; defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps GLOVETERM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GLOVETERM_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("GLOVETERM_SERVICE_UUID"); v != "" {
		cfg.Device.ServiceUUID = v
	}
	if v := os.Getenv("GLOVETERM_SETTLE_DELAY"); v != "" {
		cfg.Device.SettleDelay = v
	}
	if v := os.Getenv("GLOVETERM_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("GLOVETERM_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Serial.BaudRate = n
		}
	}
	if v := os.Getenv("GLOVETERM_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GLOVETERM_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("GLOVETERM_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("GLOVETERM_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks the configuration for structural errors.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Transport) {
	case "ble", "serial":
	default:
		return fmt.Errorf("config: unsupported transport %q", cfg.Transport)
	}
	if cfg.Device.ServiceUUID == "" {
		return fmt.Errorf("config: device.service_uuid must not be empty")
	}
	if cfg.Device.NotifyCharUUID == "" || cfg.Device.WriteCharUUID == "" {
		return fmt.Errorf("config: device notify/write characteristic UUIDs must not be empty")
	}
	if cfg.Device.SettleDelay != "" {
		if _, err := time.ParseDuration(cfg.Device.SettleDelay); err != nil {
			return fmt.Errorf("config: device.settle_delay: %w", err)
		}
	}
	if cfg.Device.ScanTimeout != "" {
		if _, err := time.ParseDuration(cfg.Device.ScanTimeout); err != nil {
			return fmt.Errorf("config: device.scan_timeout: %w", err)
		}
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("config: serial.baud_rate must be positive")
	}
	if cfg.Console.SinkCapacity < 0 || cfg.Console.PendingLimit < 0 {
		return fmt.Errorf("config: console capacities must not be negative")
	}
	return nil
}
