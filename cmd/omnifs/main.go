package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/config"
	"github.com/marmos91/omnifs/pkg/metrics"
	"github.com/marmos91/omnifs/pkg/registry"
	"github.com/marmos91/omnifs/pkg/stream"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "omnifs: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "omnifs",
		Usage: "Read and write files on local disks, S3, GCS and Badger through one URL namespace",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file (default: $XDG_CONFIG_HOME/omnifs/config.yaml)",
				EnvVars: []string{"OMNIFS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (DEBUG, INFO, WARN, ERROR)",
			},
		},
		Commands: []*cli.Command{
			lsCommand(),
			catCommand(),
			putCommand(),
			cpCommand(),
			mvCommand(),
			rmCommand(),
			mkdirCommand(),
			statCommand(),
			protocolsCommand(),
			initCommand(),
			metricsCommand(),
		},
	}
}

// env is everything a command needs once configuration is loaded.
type env struct {
	cfg      *config.Config
	registry *registry.Registry
	bridge   *stream.Bridge
	metrics  *config.MetricsResult
	closer   io.Closer
	out      io.Writer
}

// setup loads configuration and builds the registry and the stream bridge.
// Callers must Close the returned env.
func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	// Command output goes to stdout, keep logs out of it.
	output := cfg.Logging.Output
	if output == "stdout" {
		output = "stderr"
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, output); err != nil {
		return nil, err
	}

	m := config.InitializeMetrics(cfg)

	reg, closer, err := config.BuildRegistry(c.Context, cfg, m.Storage)
	if err != nil {
		return nil, err
	}

	bridge, err := stream.New(stream.Config{Registry: reg, TempDir: cfg.Stream.TempDir})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		registry: reg,
		bridge:   bridge,
		metrics:  m,
		closer:   closer,
		out:      c.App.Writer,
	}, nil
}

func (e *env) Close() error {
	return e.closer.Close()
}

// withEnv wraps a command action with setup and teardown.
func withEnv(fn func(ctx context.Context, c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.Close(); err != nil {
				logger.Warn("Failed to close storages: %v", err)
			}
		}()
		return fn(c.Context, c, e)
	}
}

// metricsServer returns the configured metrics server, or nil when metrics
// are disabled.
func (e *env) metricsServer() *metrics.Server {
	return config.NewMetricsServer(e.cfg, e.registry)
}
