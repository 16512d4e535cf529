package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/metrics"
	"github.com/marmos91/omnifs/pkg/registry"
)

// BuildRegistry creates a registry with one protocol per configured storage.
//
// Each storage is created with CreateAdapter and registered under its
// protocol together with its stream options. If any storage fails, the
// storages created so far are closed and the error is returned.
//
// The returned closer releases every adapter that owns resources (badger
// databases). Call it once the registry is no longer used.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, closer, err := config.BuildRegistry(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatalf("Failed to build registry: %v", err)
//	}
//	defer closer.Close()
func BuildRegistry(ctx context.Context, cfg *Config, m *metrics.StorageMetrics) (*registry.Registry, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration is nil")
	}

	logger.Debug("Initializing registry from configuration")

	reg := registry.New()
	closers := multiCloser{}

	for i := range cfg.Storages {
		s := &cfg.Storages[i]

		adapter, closer, err := CreateAdapter(ctx, s, m)
		if err != nil {
			_ = closers.Close()
			return nil, nil, err
		}
		closers = append(closers, closer)

		if err := reg.Register(s.Protocol, adapter, s.Stream); err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("storage %q: %w", s.Name, err)
		}
		logger.Debug("Storage %s (%s) served as %s://", s.Name, s.Type, s.Protocol)
	}

	logger.Info("Registered %d protocol(s): %v", len(cfg.Storages), reg.Protocols())
	return reg, closers, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
