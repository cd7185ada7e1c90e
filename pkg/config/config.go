// Package config loads server configuration from the environment.
//
// Sources in order of precedence: process environment (flat names such as
// API_KEY and DATA_DIR, matching the deployment contract), then built-in
// defaults. A .env file, when present, is folded into the environment by the
// CLI before Load runs.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	APIKey string `mapstructure:"api_key" validate:"required"`

	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"gt=0,lte=65535"`

	DataDir string `mapstructure:"data_dir" validate:"required"`

	DefaultMaxRepoSize uint64 `mapstructure:"default_max_repo_size" validate:"gt=0"`
	MaxUploadSize      uint64 `mapstructure:"max_upload_size" validate:"gt=0"`

	SnapshotIntervalSecs      uint64 `mapstructure:"snapshot_interval_secs" validate:"gt=0"`
	TTLSweepIntervalSecs      uint64 `mapstructure:"ttl_sweep_interval_secs" validate:"gt=0"`
	EvictionSweepIntervalSecs uint64 `mapstructure:"eviction_sweep_interval_secs" validate:"gt=0"`

	CommandTimeoutSecs    uint64 `mapstructure:"command_timeout_secs" validate:"gt=0"`
	CommandMaxOutputBytes int    `mapstructure:"command_max_output_bytes" validate:"gt=0"`
	MaxConcurrentCommands int64  `mapstructure:"max_concurrent_commands" validate:"gt=0"`

	CacheMaxBytes uint64 `mapstructure:"cache_max_bytes"`

	LogLevel           string `mapstructure:"log_level"`
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`
}

// envBindings maps mapstructure keys to their environment variable names.
var envBindings = map[string]string{
	"api_key":                      "API_KEY",
	"host":                         "HOST",
	"port":                         "PORT",
	"data_dir":                     "DATA_DIR",
	"default_max_repo_size":        "DEFAULT_MAX_REPO_SIZE",
	"max_upload_size":              "MAX_UPLOAD_SIZE",
	"snapshot_interval_secs":       "SNAPSHOT_INTERVAL_SECS",
	"ttl_sweep_interval_secs":      "TTL_SWEEP_INTERVAL_SECS",
	"eviction_sweep_interval_secs": "EVICTION_SWEEP_INTERVAL_SECS",
	"command_timeout_secs":         "COMMAND_TIMEOUT_SECS",
	"command_max_output_bytes":     "COMMAND_MAX_OUTPUT_BYTES",
	"max_concurrent_commands":      "MAX_CONCURRENT_COMMANDS",
	"cache_max_bytes":              "CACHE_MAX_BYTES",
	"log_level":                    "LOG_LEVEL",
	"cors_allowed_origins":         "CORS_ALLOWED_ORIGINS",
}

// Load reads configuration from the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("data_dir", "/data")
	v.SetDefault("default_max_repo_size", uint64(1<<30)) // 1 GiB
	v.SetDefault("max_upload_size", uint64(100<<20))     // 100 MiB
	v.SetDefault("snapshot_interval_secs", uint64(300))
	v.SetDefault("ttl_sweep_interval_secs", uint64(60))
	v.SetDefault("eviction_sweep_interval_secs", uint64(300))
	v.SetDefault("command_timeout_secs", uint64(30))
	v.SetDefault("command_max_output_bytes", 10<<20) // 10 MiB
	v.SetDefault("max_concurrent_commands", int64(10))
	v.SetDefault("cache_max_bytes", uint64(256<<20)) // 256 MiB
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_allowed_origins", "*")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ReposDir returns the directory holding all repository trees.
func (c *Config) ReposDir() string {
	return filepath.Join(c.DataDir, "repos")
}

// MetadataDir returns the directory holding snapshot and WAL state.
func (c *Config) MetadataDir() string {
	return filepath.Join(c.DataDir, "metadata")
}

// SnapshotPath returns the snapshot file location.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.MetadataDir(), "snapshot.bin")
}

// WALDir returns the WAL directory.
func (c *Config) WALDir() string {
	return filepath.Join(c.MetadataDir(), "wal")
}

// ListenAddr returns the host:port to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CommandTimeout returns the default sandbox timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSecs) * time.Second
}

// SnapshotInterval returns the snapshot cadence as a duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSecs) * time.Second
}

// TTLSweepInterval returns the reaper cadence as a duration.
func (c *Config) TTLSweepInterval() time.Duration {
	return time.Duration(c.TTLSweepIntervalSecs) * time.Second
}

// EvictionSweepInterval returns the quota monitor cadence as a duration.
func (c *Config) EvictionSweepInterval() time.Duration {
	return time.Duration(c.EvictionSweepIntervalSecs) * time.Second
}
