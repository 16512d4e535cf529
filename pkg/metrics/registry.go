// Package metrics provides Prometheus metrics collection for omnifs storages.
//
// All metrics are optional - if not initialized, constructors return nil and
// callers fall back to no-op behavior. This allows omnifs to run with or
// without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Wrap an adapter so every operation is observed
//	m := metrics.NewStorageMetrics()
//	adapter = metrics.Instrument("s3", adapter, m)
//
//	// Multipart parts are reported by the object-store adapters themselves
//	s3.New(ctx, s3.Config{Client: client, Bucket: "b", Metrics: m.ForStorage("s3")})
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all omnifs metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
//
// If not called, GetRegistry() will return nil and NewStorageMetrics will
// return nil.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector())
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
//
// Metrics are enabled if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
