// ABOUTME: HTTP server wiring for the attendant workspace API
// ABOUTME: Route registration, TCP or tsnet listeners, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/tsnet"

	"github.com/luminahq/livedesk/internal/assign"
	"github.com/luminahq/livedesk/internal/config"
	"github.com/luminahq/livedesk/internal/feed"
	"github.com/luminahq/livedesk/internal/lifecycle"
	"github.com/luminahq/livedesk/internal/metrics"
	"github.com/luminahq/livedesk/internal/pending"
	"github.com/luminahq/livedesk/internal/registry"
	"github.com/luminahq/livedesk/internal/store"
)

const defaultShutdownTimeout = 5 * time.Second

// Deps carries the services the server exposes.
type Deps struct {
	Store     store.Store
	Registry  *registry.Registry
	Engine    *assign.Engine
	Lifecycle *lifecycle.Manager
	Pending   *pending.View
	Bridge    *feed.Bridge
	Metrics   *metrics.Metrics
}

// Server exposes the conversation routing core over HTTP: the attendant
// workspace API, the SSE change stream, health probes, and optionally the
// Prometheus endpoint.
type Server struct {
	config *config.Config
	deps   Deps
	logger *slog.Logger

	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New creates a server with all routes registered.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
		s.logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
	}

	s.registerAPIRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// registerAPIRoutes attaches the workspace API.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Visitors
	mux.HandleFunc("POST /api/visitors", s.instrument("visitors", s.handleRegisterVisitor))

	// Attendants
	mux.HandleFunc("GET /api/attendants", s.instrument("attendants", s.handleListAttendants))
	mux.HandleFunc("POST /api/attendants", s.instrument("attendants", s.handleCreateAttendant))
	mux.HandleFunc("GET /api/attendants/eligible", s.instrument("eligible", s.handleEligible))
	mux.HandleFunc("GET /api/attendants/{id}", s.instrument("attendant", s.handleGetAttendant))
	mux.HandleFunc("PUT /api/attendants/{id}/status", s.instrument("status", s.handleSetStatus))
	mux.HandleFunc("GET /api/attendants/{id}/pending", s.instrument("pending", s.handlePendingView))

	// Rooms
	mux.HandleFunc("POST /api/rooms", s.instrument("rooms", s.handleStartRoom))
	mux.HandleFunc("GET /api/rooms/{id}", s.instrument("room", s.handleGetRoom))
	mux.HandleFunc("POST /api/rooms/{id}/close", s.instrument("close", s.handleCloseRoom))
	mux.HandleFunc("POST /api/rooms/{id}/resolve", s.instrument("resolve", s.handleResolveRoom))
	mux.HandleFunc("POST /api/rooms/{id}/reopen", s.instrument("reopen", s.handleReopenRoom))
	mux.HandleFunc("POST /api/rooms/{id}/reassign", s.instrument("reassign", s.handleReassignRoom))
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.instrument("messages", s.handlePostMessage))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.instrument("messages", s.handleGetMessages))

	// Change stream
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns the server's HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates a TCP or tsnet listener based on configuration.
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupTailscaleListener creates a tsnet server and listens on the tailnet.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node",
		"hostname", tsCfg.Hostname,
		"state_dir", stateDir,
		"ephemeral", tsCfg.Ephemeral)
	if _, err := s.tsnetServer.Up(ctx); err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using a default under
// the user's home if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "livedesk", "tailscale"), nil
}

// gracefulShutdown performs shutdown with a fresh context. The original
// context is already canceled by the time this runs.
func (s *Server) gracefulShutdown() error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown gracefully stops the server and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if s.tsnetServer != nil {
		if err := s.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReady reports readiness: the store must answer a trivial query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Store.ListAttendants(r.Context()); err != nil {
		s.logger.Error("readiness probe failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ready"}`))
}

// instrument wraps a handler with request metrics.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		s.deps.Metrics.ObserveRequest(route, statusClass(sw.status), time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
