package config

import (
	"path/filepath"
	"strings"
)

// DefaultMetricsPort is the port of the metrics endpoint when none is set.
const DefaultMetricsPort = 9090

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Adapter-specific defaults are handled by the adapter constructors
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	// Add a default local storage if none configured
	if len(cfg.Storages) == 0 {
		cfg.Storages = []StorageConfig{defaultStorage()}
	}

	applyStorageDefaults(cfg.Storages)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// applyStorageDefaults sets per-storage defaults.
func applyStorageDefaults(storages []StorageConfig) {
	for i := range storages {
		s := &storages[i]

		s.Type = strings.ToLower(s.Type)

		// The protocol defaults to the storage name
		if s.Protocol == "" {
			s.Protocol = s.Name
		}

		if s.Options == nil {
			s.Options = make(map[string]any)
		}
		if s.Type == "badger" {
			if _, ok := s.Options["path"]; !ok {
				s.Options["path"] = filepath.Join(getConfigDir(), "badger", s.Name)
			}
		}
	}
}

func defaultStorage() StorageConfig {
	return StorageConfig{
		Name:     "file",
		Type:     "local",
		Protocol: "file",
		Options: map[string]any{
			"root": "/tmp/omnifs-data",
		},
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is used by the init command to generate a sample configuration file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storages: []StorageConfig{
			defaultStorage(),
			{
				Name: "s3",
				Type: "s3",
				Options: map[string]any{
					"region": "us-east-1",
					"bucket": "omnifs",
				},
				Stream: map[string]any{
					"ignore_visibility_errors": true,
					"write_buffer_size":        8 << 20,
				},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
