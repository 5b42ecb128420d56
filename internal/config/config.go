package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/Devdesai111/RevUp-sub000/internal/jobs"
	"github.com/Devdesai111/RevUp-sub000/internal/logging"
	"github.com/Devdesai111/RevUp-sub000/internal/recalc"
	"github.com/Devdesai111/RevUp-sub000/internal/store"
)

// Store drivers.
const (
	StoreSQLite   = store.DriverSQLite
	StoreSQLite3  = store.DriverSQLite3
	StorePostgres = "postgres"
)

// Backends for kv and queue.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the main configuration
type Config struct {
	Version string          `yaml:"version"`
	Store   *StoreConfig    `yaml:"store"`
	KV      *KVConfig       `yaml:"kv"`
	Queue   *QueueConfig    `yaml:"queue"`
	Workers *WorkersConfig  `yaml:"workers"`
	Recalc  *RecalcConfig   `yaml:"recalc"`
	Sweep   *SweepConfig    `yaml:"sweep"`
	API     *APIConfig      `yaml:"api"`
	Logging *logging.Config `yaml:"logging"`
}

// StoreConfig selects the metric and evidence store
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// KVConfig selects the lock and cache backend
type KVConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// QueueConfig selects the job queue
type QueueConfig struct {
	Driver      string `yaml:"driver"`
	Key         string `yaml:"key"`
	MaxAttempts int    `yaml:"max_attempts"`
	Buffer      int    `yaml:"buffer"`
}

// WorkersConfig sizes the worker pool
type WorkersConfig struct {
	Count int `yaml:"count"`
}

// RecalcConfig tunes recomputation
type RecalcConfig struct {
	LockTTL            Duration `yaml:"lock_ttl"`
	DriftAlertCooldown Duration `yaml:"drift_alert_cooldown"`
	MilestoneDedupeTTL Duration `yaml:"milestone_dedupe_ttl"`
	Milestones         []int    `yaml:"milestones"`
}

// SweepConfig holds missed-day sweep settings
type SweepConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Schedule     string `yaml:"schedule"`
	Timezone     string `yaml:"timezone"`
	LookbackDays int    `yaml:"lookback_days"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Addr           string   `yaml:"addr"`
	JWTSecret      string   `yaml:"jwt_secret"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	engine := recalc.DefaultConfig()
	sweep := jobs.DefaultSweepConfig()

	return &Config{
		Version: "1.0",
		Store: &StoreConfig{
			Driver: StoreSQLite,
			Path:   filepath.Join(homeDir, ".revup", "data", "revup.db"),
		},
		KV: &KVConfig{
			Driver: BackendMemory,
		},
		Queue: &QueueConfig{
			Driver:      BackendMemory,
			Key:         "revup:recalc",
			MaxAttempts: jobs.DefaultMaxAttempts,
			Buffer:      1024,
		},
		Workers: &WorkersConfig{
			Count: 4,
		},
		Recalc: &RecalcConfig{
			LockTTL:            Duration(engine.LockTTL),
			DriftAlertCooldown: Duration(engine.DriftAlertCooldown),
			MilestoneDedupeTTL: Duration(engine.MilestoneDedupeTTL),
			Milestones:         engine.Milestones,
		},
		Sweep: &SweepConfig{
			Enabled:      sweep.Enabled,
			Schedule:     sweep.Schedule,
			Timezone:     sweep.Timezone,
			LookbackDays: sweep.LookbackDays,
		},
		API: &APIConfig{
			Addr:           "127.0.0.1:8080",
			JWTSecret:      "${REVUP_JWT_SECRET}",
			RequestTimeout: Duration(30 * time.Second),
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			config.API.JWTSecret = os.ExpandEnv(config.API.JWTSecret)
			config.expand()
			return config, nil // Return defaults if no config file
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.expand()
	return config, nil
}

func (c *Config) expand() {
	if c.Store != nil {
		c.Store.Path = expandPath(c.Store.Path)
	}
	if c.Logging != nil && c.Logging.Output != "" {
		c.Logging.Output = expandPath(c.Logging.Output)
	}
}

// Save saves configuration to a file
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".revup", "config.yaml")
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	switch c.Store.Driver {
	case StoreSQLite, StoreSQLite3:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Store.Driver)
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite, sqlite3 or postgres", c.Store.Driver)
	}

	if c.KV == nil {
		return fmt.Errorf("kv configuration is required")
	}
	if err := validateBackend("kv", c.KV.Driver); err != nil {
		return err
	}
	if c.KV.Driver == BackendRedis && c.KV.URL == "" {
		return fmt.Errorf("kv.url is required for driver redis")
	}

	if c.Queue == nil {
		return fmt.Errorf("queue configuration is required")
	}
	if err := validateBackend("queue", c.Queue.Driver); err != nil {
		return err
	}
	if c.Queue.Driver == BackendRedis && c.KV.Driver != BackendRedis {
		return fmt.Errorf("queue.driver redis requires kv.driver redis")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}

	if c.Workers == nil || c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1")
	}

	if c.Recalc == nil {
		return fmt.Errorf("recalc configuration is required")
	}
	if c.Recalc.LockTTL <= 0 {
		return fmt.Errorf("recalc.lock_ttl must be positive")
	}
	if c.Recalc.DriftAlertCooldown < 0 || c.Recalc.MilestoneDedupeTTL < 0 {
		return fmt.Errorf("recalc durations must not be negative")
	}
	for _, m := range c.Recalc.Milestones {
		if m < 1 {
			return fmt.Errorf("invalid recalc milestone %d", m)
		}
	}

	if c.Sweep != nil && c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid sweep.schedule %q: %w", c.Sweep.Schedule, err)
		}
		if c.Sweep.LookbackDays < 1 {
			return fmt.Errorf("sweep.lookback_days must be at least 1")
		}
	}

	return nil
}

func validateBackend(section, driver string) error {
	switch driver {
	case BackendMemory, BackendRedis:
		return nil
	}
	return fmt.Errorf("invalid %s.driver %q: must be memory or redis", section, driver)
}

// EngineConfig converts the recalc section.
func (c *Config) EngineConfig() *recalc.Config {
	cfg := recalc.DefaultConfig()
	if c.Recalc == nil {
		return cfg
	}
	cfg.LockTTL = c.Recalc.LockTTL.Std()
	cfg.DriftAlertCooldown = c.Recalc.DriftAlertCooldown.Std()
	cfg.MilestoneDedupeTTL = c.Recalc.MilestoneDedupeTTL.Std()
	if c.Recalc.Milestones != nil {
		cfg.Milestones = c.Recalc.Milestones
	}
	return cfg
}

// SweeperConfig converts the sweep section.
func (c *Config) SweeperConfig() *jobs.SweepConfig {
	if c.Sweep == nil {
		return jobs.DefaultSweepConfig()
	}
	return &jobs.SweepConfig{
		Enabled:      c.Sweep.Enabled,
		Schedule:     c.Sweep.Schedule,
		Timezone:     c.Sweep.Timezone,
		LookbackDays: c.Sweep.LookbackDays,
	}
}
