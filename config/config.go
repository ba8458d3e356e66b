// Package config loads the monitor configuration from a YAML file and applies
// defaults so a minimal file (callsign only) produces a working setup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete monitor configuration.
type Config struct {
	Station  StationConfig  `yaml:"station"`
	RBN      RBNConfig      `yaml:"rbn"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Caches   CacheConfig    `yaml:"caches"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StationConfig identifies the operator.
type StationConfig struct {
	Callsign   string `yaml:"callsign"`    // Login callsign, also used for award progress
	SKCCNumber string `yaml:"skcc_number"` // Operator's own SKCC number (e.g. "14947T")
}

// Endpoint is one feed server to try during connect.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the endpoint in host:port form for dialing.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// RBNConfig contains feed connection settings.
type RBNConfig struct {
	Servers        []Endpoint    `yaml:"servers"`
	Commands       []string      `yaml:"commands"`        // Feed-configuration commands sent after login
	DialTimeout    time.Duration `yaml:"dial_timeout"`    // Per-endpoint dial timeout
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Read deadline inside the stream loop
	HandshakeWait  time.Duration `yaml:"handshake_wait"`  // How long to wait for each handshake response
	BackoffStep    time.Duration `yaml:"backoff_step"`    // Delay grows by this per consecutive failure
	BackoffCap     time.Duration `yaml:"backoff_cap"`     // Upper bound on the retry delay
	MaxRetries     int           `yaml:"max_retries"`     // Consecutive failures before giving up
	StopJoinWindow time.Duration `yaml:"stop_join_window"` // How long Stop waits for the loop to exit
}

// DedupConfig contains duplicate-suppression settings.
type DedupConfig struct {
	Cooldown      time.Duration `yaml:"cooldown"`       // Minimum gap between emits for the same call
	PruneHorizon  time.Duration `yaml:"prune_horizon"`  // Entries older than this are removed
	PruneInterval time.Duration `yaml:"prune_interval"` // How often the pipeline prunes the gate
	BustedCheck   bool          `yaml:"busted_check"`   // Drop distance-1 calls near a recent emit
	BustedFreqKHz float64       `yaml:"busted_freq_khz"` // Frequency proximity for the busted check
}

// CacheConfig contains the scorer's TTLs.
type CacheConfig struct {
	WorkedTTL   time.Duration `yaml:"worked_ttl"`
	ProgressTTL time.Duration `yaml:"progress_ttl"`
}

// PipelineConfig contains queue and ring sizing.
type PipelineConfig struct {
	QueueSize int `yaml:"queue_size"` // Bounded raw-line queue; oldest dropped on overflow
	RingSize  int `yaml:"ring_size"`  // Recent scored events retained for consumers
}

// StorageConfig points at the on-disk stores.
type StorageConfig struct {
	LogbookPath    string `yaml:"logbook_path"`    // sqlite contact log
	RosterPath     string `yaml:"roster_path"`     // pebble membership store directory
	RosterSnapshot string `yaml:"roster_snapshot"` // optional JSON snapshot imported at startup
}

// LoggingConfig controls the daily log file sink.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// DefaultConfig returns the configuration used when a field is absent from
// the file. Defaults mirror the live RBN service and the observed program
// behavior (180 s duplicate cooldown, 60 s / 300 s cache TTLs).
func DefaultConfig() *Config {
	return &Config{
		RBN: RBNConfig{
			Servers: []Endpoint{
				{Host: "telnet.reversebeacon.net", Port: 7000},
				{Host: "rbn.telegraphy.de", Port: 7000},
			},
			Commands:       []string{"set/raw", "set/nodupes"},
			DialTimeout:    10 * time.Second,
			ReadTimeout:    30 * time.Second,
			HandshakeWait:  2 * time.Second,
			BackoffStep:    5 * time.Second,
			BackoffCap:     30 * time.Second,
			MaxRetries:     10,
			StopJoinWindow: 2 * time.Second,
		},
		Dedup: DedupConfig{
			Cooldown:      180 * time.Second,
			PruneHorizon:  5 * time.Minute,
			PruneInterval: time.Minute,
			BustedCheck:   true,
			BustedFreqKHz: 0.5,
		},
		Caches: CacheConfig{
			WorkedTTL:   60 * time.Second,
			ProgressTTL: 300 * time.Second,
		},
		Pipeline: PipelineConfig{
			QueueSize: 256,
			RingSize:  200,
		},
		Storage: StorageConfig{
			LogbookPath: "data/logbook.db",
			RosterPath:  "data/roster",
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Dir:           "logs",
			RetentionDays: 7,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work; zero values that have a
// safe default are repaired instead.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Station.Callsign) == "" {
		return fmt.Errorf("config: station.callsign is required")
	}
	if len(c.RBN.Servers) == 0 {
		return fmt.Errorf("config: rbn.servers must list at least one endpoint")
	}
	for i, ep := range c.RBN.Servers {
		if strings.TrimSpace(ep.Host) == "" || ep.Port <= 0 || ep.Port > 65535 {
			return fmt.Errorf("config: rbn.servers[%d] invalid endpoint %s:%d", i, ep.Host, ep.Port)
		}
	}
	if c.RBN.MaxRetries <= 0 {
		c.RBN.MaxRetries = 10
	}
	if c.RBN.BackoffStep <= 0 {
		c.RBN.BackoffStep = 5 * time.Second
	}
	if c.RBN.BackoffCap < c.RBN.BackoffStep {
		c.RBN.BackoffCap = 30 * time.Second
	}
	if c.RBN.StopJoinWindow <= 0 {
		c.RBN.StopJoinWindow = 2 * time.Second
	}
	if c.Dedup.Cooldown <= 0 {
		c.Dedup.Cooldown = 180 * time.Second
	}
	if c.Dedup.PruneHorizon < c.Dedup.Cooldown {
		c.Dedup.PruneHorizon = 5 * time.Minute
	}
	if c.Caches.WorkedTTL <= 0 {
		c.Caches.WorkedTTL = 60 * time.Second
	}
	if c.Caches.ProgressTTL <= 0 {
		c.Caches.ProgressTTL = 300 * time.Second
	}
	if c.Pipeline.QueueSize <= 0 {
		c.Pipeline.QueueSize = 256
	}
	if c.Pipeline.RingSize <= 0 {
		c.Pipeline.RingSize = 200
	}
	return nil
}
