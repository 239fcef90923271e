package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/passthrough/pkg/config"
	"mercator-hq/passthrough/pkg/passthrough"
	"mercator-hq/passthrough/pkg/proxy/middleware"
	"mercator-hq/passthrough/pkg/security/auth"
	tlsreload "mercator-hq/passthrough/pkg/security/tls"
	"mercator-hq/passthrough/pkg/telemetry/health"
	"mercator-hq/passthrough/pkg/telemetry/metrics"
	"mercator-hq/passthrough/pkg/telemetry/tracing"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg       *config.Config
	loader    *passthrough.Loader
	collector *metrics.Collector
	checker   *health.Checker
	guard     *auth.Guard
	certs     *tlsreload.Reloader
	version   health.VersionInfo
	logger    *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithCollector exposes the collector on the metrics path and reports
// route reloads to it.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithChecker sets the readiness checker. A checker with no checks is used
// otherwise.
func WithChecker(c *health.Checker) Option {
	return func(s *Server) { s.checker = c }
}

// WithGuard protects the management API with API-key authentication.
func WithGuard(g *auth.Guard) Option {
	return func(s *Server) { s.guard = g }
}

// WithCertificates serves TLS using the reloader's certificate.
func WithCertificates(r *tlsreload.Reloader) Option {
	return func(s *Server) { s.certs = r }
}

// WithVersion sets the build information reported on the version path.
func WithVersion(info health.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for cfg serving the routes kept by loader.
func New(cfg *config.Config, loader *passthrough.Loader, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		loader:  loader,
		version: health.NewVersionInfo("dev", "", ""),
		logger:  slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.checker == nil {
		s.checker = health.New(cfg.Telemetry.Health.CheckTimeout)
	}
	return s
}

// Handler returns the full handler: ops endpoints, the management API and
// the pass-through route table as the catch-all.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	health.Register(mux, s.checker, s.cfg.Telemetry.Health, s.version)

	if s.collector != nil && s.cfg.Telemetry.Metrics.Enabled {
		path := s.cfg.Telemetry.Metrics.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, s.collector.Handler())
	}

	var mgmt http.Handler = &managementAPI{
		loader:    s.loader,
		collector: s.collector,
		logger:    s.logger.With("api", "management"),
	}
	mgmt = middleware.Timeout(s.cfg.Proxy.ManagementTimeout)(mgmt)
	if s.guard != nil {
		mgmt = s.guard.Handle(mgmt)
	}
	mux.Handle(ManagementPath, mgmt)
	mux.Handle(ManagementPath+"/", mgmt)

	mux.Handle("/", s.loader.Table())

	var h http.Handler = mux
	h = middleware.CORS(&s.cfg.Proxy.CORS)(h)
	h = middleware.Logging(s.logger)(h)
	h = tracing.Middleware(h)
	h = middleware.Recovery(s.logger)(h)
	h = middleware.RequestID(h)
	return h
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// the configured shutdown timeout. In-flight streams are allowed to finish
// until then.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.Proxy.ReadTimeout,
		WriteTimeout:   s.cfg.Proxy.WriteTimeout,
		IdleTimeout:    s.cfg.Proxy.IdleTimeout,
		MaxHeaderBytes: s.cfg.Proxy.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	if s.certs != nil {
		tlsCfg, err := tlsreload.ServerConfig(s.cfg.Security.TLS, s.certs)
		if err != nil {
			ln.Close()
			return fmt.Errorf("configure TLS: %w", err)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening",
			"address", ln.Addr().String(),
			"tls", s.certs != nil,
			"routes", s.loader.Table().Len(),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.Proxy.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	s.logger.Info("shutting down gateway", "timeout", timeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	s.logger.Info("gateway stopped")
	return nil
}

// Addr returns the listening address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
