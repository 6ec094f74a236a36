package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Runner      RunnerConfig    `toml:"runner"`
	Sequencer   SequencerConfig `toml:"sequencer"`
	Recovery    RecoveryConfig  `toml:"recovery"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// RunnerConfig configures the job-execution platform client
type RunnerConfig struct {
	BaseURL        string `toml:"base_url"`         // Runner API base URL
	APIKey         string `toml:"api_key"`          // Runner API key
	StorageBaseURL string `toml:"storage_base_url"` // Runner durable object storage base URL (archival recovery tier)
	Timeout        string `toml:"timeout"`          // HTTP timeout, e.g. "30s"
	RateLimit      int    `toml:"rate_limit"`       // Requests per second to the runner API
}

// SequencerConfig configures launch behavior and the job lifetime bound
type SequencerConfig struct {
	MaxLaunchAttempts int     `toml:"max_launch_attempts"` // Bounded launch retries before a source is marked failed
	InitialBackoff    string  `toml:"initial_backoff"`     // e.g. "2s"
	BackoffMultiplier float64 `toml:"backoff_multiplier"`  // Exponential backoff multiplier
	MaxBackoff        string  `toml:"max_backoff"`         // e.g. "60s"
	MaxJobLifetime    string  `toml:"max_job_lifetime"`    // Running sources older than this are swept to failed, e.g. "2h"
}

// RecoveryConfig configures the result recovery chain
type RecoveryConfig struct {
	TierTimeout string `toml:"tier_timeout"` // Per-tier timeout, e.g. "45s"
}

// SchedulerConfig configures the background stale-running sweep
type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	SweepSchedule string `toml:"sweep_schedule"` // Cron expression for the stale-running sweep
}

// NewDefaultConfig returns the default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/disperse",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Runner: RunnerConfig{
			BaseURL:   "https://api.runner.example.com",
			Timeout:   "30s",
			RateLimit: 5,
		},
		Sequencer: SequencerConfig{
			MaxLaunchAttempts: 3,
			InitialBackoff:    "2s",
			BackoffMultiplier: 2.0,
			MaxBackoff:        "60s",
			MaxJobLifetime:    "2h",
		},
		Recovery: RecoveryConfig{
			TierTimeout: "45s",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepSchedule: "*/10 * * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override everything.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DISPERSE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("DISPERSE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DISPERSE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("DISPERSE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("DISPERSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("DISPERSE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if baseURL := os.Getenv("DISPERSE_RUNNER_BASE_URL"); baseURL != "" {
		config.Runner.BaseURL = baseURL
	}
	if apiKey := os.Getenv("DISPERSE_RUNNER_API_KEY"); apiKey != "" {
		config.Runner.APIKey = apiKey
	}
	if storageURL := os.Getenv("DISPERSE_RUNNER_STORAGE_BASE_URL"); storageURL != "" {
		config.Runner.StorageBaseURL = storageURL
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ParseDuration parses a duration string, falling back to the default when
// the value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
