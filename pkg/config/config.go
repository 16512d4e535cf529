package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete omnifs configuration.
//
// This structure captures all configurable aspects of omnifs including:
//   - Logging configuration
//   - Metrics collection
//   - Stream bridge settings
//   - Storage definitions, each bound to a protocol scheme
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (OMNIFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Storage Configuration Pattern:
// Each storage type defines its own option set. Options are kept as a raw
// map in the config file and decoded by the matching factory in
// factories.go, so only the options of the selected type are ever read.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Stream contains the stream bridge settings
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`

	// Storages defines the storages exposed as protocol schemes
	Storages []StorageConfig `mapstructure:"storages" yaml:"storages" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MetricsConfig controls the metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the /metrics endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// StreamConfig contains bridge-wide settings.
type StreamConfig struct {
	// TempDir holds the local copies of handles opened for writing.
	// Empty selects the OS temporary directory.
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// StorageConfig defines one storage and the protocol it is served under.
type StorageConfig struct {
	// Name identifies the storage in logs and metrics
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Type selects the adapter implementation
	// Valid values: local, s3, gcs, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=local s3 gcs badger"`

	// Protocol is the URL scheme the storage is registered under
	// (e.g. "s3" serves "s3://bucket-path"). Defaults to Name.
	Protocol string `mapstructure:"protocol" yaml:"protocol"`

	// Options contains the type-specific adapter options
	Options map[string]any `mapstructure:"options" yaml:"options"`

	// Stream contains the per-protocol bridge options
	// (ignore_visibility_errors, uid, gid, write_buffer_size, ...)
	Stream map[string]any `mapstructure:"stream" yaml:"stream,omitempty"`

	// RateLimit caps the requests sent to the backend
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures request throttling for one storage.
// A zero RequestsPerSecond disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second,omitempty"`

	// Burst defaults to RequestsPerSecond
	Burst uint `mapstructure:"burst" yaml:"burst,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OMNIFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use OMNIFS_ prefix and underscores
	// Example: OMNIFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OMNIFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind the scalar keys so they can be set from the environment alone,
	// without a config file mentioning them.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"metrics.enabled", "metrics.port", "stream.temp_dir",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/omnifs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "omnifs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "omnifs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
