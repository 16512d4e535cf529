package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/omnifs/internal/logger"
	"github.com/marmos91/omnifs/pkg/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the port the metrics server listens on when none is configured.
const DefaultPort = 9090

// DefaultProbeTimeout bounds the backend round trip of each /healthz probe.
const DefaultProbeTimeout = 5 * time.Second

// Server exposes the omnifs observability endpoints over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics (503 when collection is disabled)
//   - GET /healthz: one line per registered protocol, 503 if any backend fails
//   - GET /: index listing the served protocols
type Server struct {
	server       *http.Server
	port         int
	protocols    *registry.Registry
	probeTimeout time.Duration
	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Zero selects DefaultPort.
	Port int

	// Registry holds the protocols reported by the index page and probed by
	// /healthz. Nil serves metrics only.
	Registry *registry.Registry

	// ProbeTimeout bounds each backend probe. Zero selects DefaultProbeTimeout.
	ProbeTimeout time.Duration
}

// NewServer creates a metrics server in a stopped state. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}

	s := &Server{
		port:         config.Port,
		protocols:    config.Registry,
		probeTimeout: config.ProbeTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	if reg := GetRegistry(); IsEnabled() && reg != nil {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintln(w, "Metrics collection is disabled")
	})
}

func (s *Server) served() []string {
	if s.protocols == nil {
		return nil
	}
	return s.protocols.Protocols()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var items strings.Builder
	for _, scheme := range s.served() {
		// Schemes are restricted to [a-zA-Z0-9+.-], nothing to escape
		fmt.Fprintf(&items, "        <li><code>%s://</code></li>\n", scheme)
	}
	if items.Len() == 0 {
		items.WriteString("        <li>none</li>\n")
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>omnifs</title></head>
<body>
    <h1>omnifs</h1>
    <p><a href="/metrics">/metrics</a> Prometheus scrape target (<code>http://&lt;host&gt;:%d/metrics</code>)</p>
    <p><a href="/healthz">/healthz</a> backend reachability per protocol</p>
    <h2>Protocols</h2>
    <ul>
%s    </ul>
</body>
</html>
`, s.port, items.String())
}

// handleHealth lists the root of every registered protocol, stopping after
// the first entry. A backend that cannot be listed fails the check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var (
		body    strings.Builder
		healthy = true
	)

	for _, scheme := range s.served() {
		err := s.probe(r.Context(), scheme)
		if err != nil {
			healthy = false
			logger.Warn("Health probe for %s:// failed: %v", scheme, err)
			fmt.Fprintf(&body, "%s error: %v\n", scheme, err)
			continue
		}
		fmt.Fprintf(&body, "%s ok\n", scheme)
	}

	w.Header().Set("Content-Type", "text/plain")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = fmt.Fprint(w, body.String())
}

func (s *Server) probe(ctx context.Context, scheme string) error {
	entry, err := s.protocols.Get(scheme)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	for _, err := range entry.Adapter.List(ctx, "", false).All() {
		return err
	}
	return nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// The caller's context is already done, shut down on a fresh one
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return shutdownErr
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.port
}
