package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	PingerFping  = "fping"
	PingerNative = "native"
)

const (
	DefaultFpingPath             = "/usr/bin/fping"
	DefaultPinger                = PingerFping
	DefaultCollectionIntervalSec = 15
	DefaultProbeTimeoutSec       = 5
	DefaultPacketCount           = 5
	DefaultPacketTimeoutMs       = 500
	DefaultMetricsListen         = ":8000"
	DefaultAPIListen             = ":8080"
	DefaultTargetsPath           = "/var/lib/fping-exporter/targets.json"
	DefaultLogLevel              = "info"
)

// Config holds all exporter settings.
type Config struct {
	FpingPath             string   `yaml:"fping_path"`
	Pinger                string   `yaml:"pinger"`
	CollectionIntervalSec int      `yaml:"collection_interval_sec"`
	ProbeTimeoutSec       int      `yaml:"probe_timeout_sec"`
	PacketCount           int      `yaml:"packet_count"`
	PacketTimeoutMs       int      `yaml:"packet_timeout_ms"`
	MetricsListen         string   `yaml:"metrics_listen"`
	APIListen             string   `yaml:"api_listen"`
	TargetsPath           string   `yaml:"targets_path"`
	WatchTargets          *bool    `yaml:"watch_targets"`
	STUNServers           []string `yaml:"stun_servers"`
	LogLevel              string   `yaml:"log_level"`
}

// Default returns a config with every field at its default value.
func Default() Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Pinger != PingerFping && cfg.Pinger != PingerNative {
		return fmt.Errorf("pinger must be %q or %q", PingerFping, PingerNative)
	}
	if cfg.Pinger == PingerFping && cfg.FpingPath == "" {
		return fmt.Errorf("fping_path is required")
	}
	if cfg.CollectionIntervalSec <= 0 {
		return fmt.Errorf("collection_interval_sec must be positive")
	}
	if cfg.ProbeTimeoutSec <= 0 {
		return fmt.Errorf("probe_timeout_sec must be positive")
	}
	if cfg.PacketCount <= 0 {
		return fmt.Errorf("packet_count must be positive")
	}
	if cfg.PacketTimeoutMs <= 0 {
		return fmt.Errorf("packet_timeout_ms must be positive")
	}
	if cfg.MetricsListen == "" {
		return fmt.Errorf("metrics_listen is required")
	}
	if cfg.APIListen == "" {
		return fmt.Errorf("api_listen is required")
	}
	if cfg.TargetsPath == "" {
		return fmt.Errorf("targets_path is required")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.FpingPath == "" {
		cfg.FpingPath = DefaultFpingPath
	}
	if cfg.Pinger == "" {
		cfg.Pinger = DefaultPinger
	}
	if cfg.CollectionIntervalSec == 0 {
		cfg.CollectionIntervalSec = DefaultCollectionIntervalSec
	}
	if cfg.ProbeTimeoutSec == 0 {
		cfg.ProbeTimeoutSec = DefaultProbeTimeoutSec
	}
	if cfg.PacketCount == 0 {
		cfg.PacketCount = DefaultPacketCount
	}
	if cfg.PacketTimeoutMs == 0 {
		cfg.PacketTimeoutMs = DefaultPacketTimeoutMs
	}
	if cfg.MetricsListen == "" {
		cfg.MetricsListen = DefaultMetricsListen
	}
	if cfg.APIListen == "" {
		cfg.APIListen = DefaultAPIListen
	}
	if cfg.TargetsPath == "" {
		cfg.TargetsPath = DefaultTargetsPath
	}
	if cfg.WatchTargets == nil {
		watch := true
		cfg.WatchTargets = &watch
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// CollectionInterval returns the collection period as a duration.
func (c Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSec) * time.Second
}

// ProbeTimeout returns the per-invocation probe bound as a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}

// WatchEnabled reports whether the targets file should be watched for
// out-of-band edits.
func (c Config) WatchEnabled() bool {
	return c.WatchTargets != nil && *c.WatchTargets
}
