package config

import (
	"github.com/marmos91/omnifs/pkg/metrics"
	"github.com/marmos91/omnifs/pkg/registry"
)

// MetricsResult contains the metrics components created from configuration.
type MetricsResult struct {
	// Storage observes adapter operations (nil if disabled, which is a no-op)
	Storage *metrics.StorageMetrics
}

// InitializeMetrics creates and initializes the metrics components based on
// configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the storage metrics handed to BuildRegistry
//
// If metrics are disabled Storage is nil.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Storage: metrics.NewStorageMetrics(),
	}
}

// NewMetricsServer creates the HTTP server reporting on the protocols of reg.
// It returns nil when metrics are disabled.
func NewMetricsServer(cfg *Config, reg *registry.Registry) *metrics.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewServer(metrics.ServerConfig{
		Port:     cfg.Metrics.Port,
		Registry: reg,
	})
}
