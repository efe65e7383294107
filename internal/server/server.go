// Package server orchestrates TubeGate's main MCP server and admin server.
// The main server carries the MCP endpoint, protected-resource metadata, and
// client registration; the admin server exposes health checks, readiness
// probes, and Prometheus metrics.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tubegate/tubegate/internal/auth"
	"github.com/tubegate/tubegate/internal/cache"
	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/cors"
	"github.com/tubegate/tubegate/internal/dispatch"
	"github.com/tubegate/tubegate/internal/events"
	"github.com/tubegate/tubegate/internal/oauth"
	"github.com/tubegate/tubegate/internal/observability"
	"github.com/tubegate/tubegate/internal/ratelimit"
	"github.com/tubegate/tubegate/internal/redis"
	"github.com/tubegate/tubegate/internal/registry"
	"github.com/tubegate/tubegate/internal/sanitize"
	"github.com/tubegate/tubegate/internal/seclog"
	"github.com/tubegate/tubegate/internal/signing"
	"github.com/tubegate/tubegate/internal/tools"
	"github.com/tubegate/tubegate/internal/youtube"
)

// Server is the main TubeGate server.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	version string

	mainServer  *http.Server
	http3Server *http3.Server // nil when HTTP/3 is disabled.
	adminServer *http.Server

	health  *observability.HealthChecker
	metrics *observability.Metrics

	policy   *cors.Policy
	signer   *signing.Signer // nil when signing is disabled
	limiter  *ratelimit.Limiter
	store    *cache.Cache
	seclog   *seclog.Logger
	emitter  *events.Emitter // nil when the webhook exporter is disabled
	oauth    *oauth.Manager
	registry *registry.Registry // nil when registration is disabled
	auth     *auth.Validator

	states stateStore // pending OAuth authorization states

	tracingShutdown func(context.Context) error
	certs           *certHolder // non-nil when TLS is enabled; supports hot-reload.
}

// New wires every component and builds both HTTP servers.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	metrics := observability.NewMetrics(reg)
	health := observability.NewHealthChecker()

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		version: version,
		health:  health,
		metrics: metrics,
		policy:  cors.NewPolicy(cfg.CORS),
		auth:    auth.NewValidator(cfg.Auth),
	}

	var err error
	if cfg.Signing.Enabled {
		if s.signer, err = signing.New(cfg.Signing); err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
	}

	if s.limiter, err = ratelimit.New(cfg.RateLimit, metrics); err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	s.emitter = events.NewEmitter(cfg.Events, logger, metrics)

	var seclogOpts []seclog.Option
	if s.emitter != nil {
		seclogOpts = append(seclogOpts, seclog.WithSink(s.emitter.Emit))
	}
	if s.seclog, err = seclog.New(cfg.SecLog, logger, metrics, seclogOpts...); err != nil {
		return nil, fmt.Errorf("create security log: %w", err)
	}

	redis.InitLogger(logger)

	store, err := buildCacheStore(cfg)
	if err != nil {
		return nil, err
	}
	if s.store, err = cache.New(cfg.Cache, store, logger, metrics); err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	if s.oauth, err = oauth.New(cfg.OAuth, logger, metrics); err != nil {
		return nil, fmt.Errorf("create oauth manager: %w", err)
	}

	api, err := youtube.New(ctx, cfg.YouTube, s.oauth, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("create youtube client: %w", err)
	}

	if cfg.Registry.Enabled {
		if s.registry, err = registry.Open(cfg.Registry, logger); err != nil {
			return nil, fmt.Errorf("open client registry: %w", err)
		}
		health.SetStorePinger(s.registry)
	}

	dispatcher := dispatch.New(dispatch.Deps{
		Sanitizer: sanitize.New(cfg.Sanitize.MaxInputLength, cfg.Sanitize.Strict),
		CORS:      s.policy,
		Signer:    s.signer,
		Limiter:   s.limiter,
		Cache:     s.store,
		SecLog:    s.seclog,
		Metrics:   metrics,
		Logger:    logger,
	})

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: "tubegate", Version: version}, nil)
	tools.Register(mcpServer, tools.Deps{
		Dispatch: dispatcher,
		API:      api,
		Limiter:  s.limiter,
		Cache:    s.store,
		SecLog:   s.seclog,
		Metrics:  metrics,
		Logger:   logger,
	})

	s.mainServer, s.http3Server = buildMainServer(cfg, s.routes(mcpServer), logger)
	s.adminServer = buildAdminServer(cfg, health, reg)

	return s, nil
}

// buildCacheStore selects the persistent cache tier for the configured
// backend. Returns nil for the memory-only backend.
func buildCacheStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite:
		store, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, nil
	case config.CacheBackendRedis:
		store, err := cache.NewRedisStore(cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// routes assembles the main handler: the MCP endpoint behind the governance
// middleware, plus metadata and registration endpoints.
func (s *Server) routes(mcpServer *mcp.Server) http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer }, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.withAuth(s.withGovernance(mcpHandler)))
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)

	mux.HandleFunc("GET /oauth/authorize", s.handleOAuthAuthorize)
	mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)

	if s.registry != nil {
		mux.HandleFunc("POST /register", s.handleRegister)
		mux.HandleFunc("GET /register/{client_id}", s.handleRegistrationGet)
		mux.HandleFunc("PUT /register/{client_id}", s.handleRegistrationUpdate)
		mux.HandleFunc("DELETE /register/{client_id}", s.handleRegistrationDelete)
		mux.HandleFunc("POST /register/{client_id}/rotate-secret", s.handleRegistrationRotate)
	}

	return s.withCORS(mux)
}

func buildMainServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) (*http.Server, *http3.Server) {
	readTimeout, _ := config.ParseDuration(cfg.Server.ReadTimeout, 30*time.Second)
	writeTimeout, _ := config.ParseDuration(cfg.Server.WriteTimeout, 120*time.Second)
	idleTimeout, _ := config.ParseDuration(cfg.Server.IdleTimeout, 120*time.Second)

	h2s := &http2.Server{}
	mainHandler := h2c.NewHandler(handler, h2s)

	var h3srv *http3.Server
	if cfg.Server.TLS.HTTP3Enabled {
		h3srv = &http3.Server{
			Addr:           cfg.Server.Address,
			Handler:        handler,
			MaxHeaderBytes: 1 << 20,
			IdleTimeout:    idleTimeout,
			QUICConfig: &quic.Config{
				MaxIdleTimeout: idleTimeout,
				Allow0RTT:      false, // 0-RTT would reopen the replay window.
			},
		}

		tcpHandler := mainHandler
		mainHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ProtoMajor < 3 {
				if setErr := h3srv.SetQUICHeaders(w.Header()); setErr != nil {
					logger.Debug("failed to set Alt-Svc header", "error", setErr)
				}
			}
			tcpHandler.ServeHTTP(w, r)
		})
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mainHandler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return srv, h3srv
}

func buildAdminServer(cfg *config.Config, health *observability.HealthChecker, reg *prometheus.Registry) *http.Server {
	adminReadTimeout, _ := config.ParseDuration(cfg.Admin.ReadTimeout, 5*time.Second)
	adminWriteTimeout, _ := config.ParseDuration(cfg.Admin.WriteTimeout, 10*time.Second)
	adminIdleTimeout, _ := config.ParseDuration(cfg.Admin.IdleTimeout, 30*time.Second)

	adminMux := http.NewServeMux()
	adminMux.Handle("/startz", health.StartzHandler())
	adminMux.Handle("/healthz", health.HealthzHandler())
	adminMux.Handle("/readyz", health.ReadyzHandler())
	adminMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           adminMux,
		ReadTimeout:       adminReadTimeout,
		WriteTimeout:      adminWriteTimeout,
		IdleTimeout:       adminIdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// certHolder provides atomic TLS certificate hot-reload via GetCertificate.
type certHolder struct {
	cert atomic.Pointer[tls.Certificate]
}

func newCertHolder(certFile, keyFile string) (*certHolder, error) {
	ch := &certHolder{}
	if err := ch.Reload(certFile, keyFile); err != nil {
		return nil, err
	}
	return ch, nil
}

// Reload loads a new certificate from disk and atomically swaps it.
func (ch *certHolder) Reload(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("load TLS certificate: %w", err)
	}
	ch.cert.Store(&cert)
	return nil
}

// GetCertificate implements the tls.Config.GetCertificate callback.
func (ch *certHolder) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	return ch.cert.Load(), nil
}

func tlsMinVersion(cfg *config.Config) uint16 {
	if cfg.Server.TLS.MinVersion == config.TLSVersion13 {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// Run starts both servers and blocks until the context is canceled, then
// performs a graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	tracingShutdown, err := observability.InitTracing(ctx, s.cfg.Tracing, s.version)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
		tracingShutdown = func(_ context.Context) error { return nil }
	}
	s.tracingShutdown = tracingShutdown

	s.limiter.Start()

	errCh := make(chan error, 3)

	// readyCh is closed after the main listener has bound, so readiness is
	// never reported before the server can accept connections.
	readyCh := make(chan struct{})

	go s.startAdminServer(errCh)
	go s.startMainServerWithReady(errCh, readyCh)

	if s.http3Server != nil {
		go s.startHTTP3Server(errCh)
	}

	s.health.SetStarted()

	select {
	case <-readyCh:
		s.health.SetReady()
		s.logger.Info("tubegate is ready", "version", s.version)
	case srvErr := <-errCh:
		return srvErr
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining...")
	case srvErr := <-errCh:
		return srvErr
	}

	return s.shutdown()
}

func (s *Server) startAdminServer(errCh chan<- error) {
	s.logger.Info("admin server starting", "address", s.cfg.Admin.Address)
	if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("admin server: %w", err)
	}
}

func (s *Server) startMainServerWithReady(errCh chan<- error, readyCh chan struct{}) {
	s.logger.Info("mcp server starting",
		"address", s.cfg.Server.Address,
		"tls", s.cfg.Server.TLS.Enabled,
		"http3", s.cfg.Server.TLS.HTTP3Enabled)

	// Separate Listen from Serve so readiness can be signaled after bind.
	ln, listenErr := net.Listen("tcp", s.cfg.Server.Address)
	if listenErr != nil {
		errCh <- fmt.Errorf("mcp server listen: %w", listenErr)
		return
	}
	close(readyCh)

	var err error
	if s.cfg.Server.TLS.Enabled {
		ch, certErr := newCertHolder(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		if certErr != nil {
			errCh <- certErr
			return
		}
		s.certs = ch

		tlsCfg := &tls.Config{
			MinVersion:     tlsMinVersion(s.cfg),
			GetCertificate: ch.GetCertificate,
		}
		s.mainServer.TLSConfig = tlsCfg

		// The HTTP/3 listener enforces the same MinVersion and certs.
		if s.http3Server != nil {
			s.http3Server.TLSConfig = tlsCfg
		}

		tlsLn := tls.NewListener(ln, tlsCfg)
		err = s.mainServer.Serve(tlsLn)
	} else {
		err = s.mainServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("mcp server: %w", err)
	}
}

func (s *Server) startHTTP3Server(errCh chan<- error) {
	s.logger.Info("HTTP/3 (QUIC) server starting", "address", s.cfg.Server.Address)
	err := s.http3Server.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
	if err != nil && err != http.ErrServerClosed {
		errCh <- fmt.Errorf("HTTP/3 server: %w", err)
	}
}

// Reload applies a changed configuration without restarting: signing secret
// rotation and TLS certificates take effect immediately. Other sections need
// a restart and keep their current values.
func (s *Server) Reload(newCfg *config.Config) error {
	if s.signer != nil && newCfg.Signing.Secret.Value() != s.cfg.Signing.Secret.Value() {
		s.signer.Rotate(newCfg.Signing.Secret.Value())
		s.seclog.Record(seclog.EventSecretRotation, "", "signing secret rotated via config reload", nil)
		s.logger.Info("signing secret rotated")
	}

	if s.certs != nil && newCfg.Server.TLS.CertFile != "" && newCfg.Server.TLS.KeyFile != "" {
		if err := s.certs.Reload(newCfg.Server.TLS.CertFile, newCfg.Server.TLS.KeyFile); err != nil {
			s.logger.Error("TLS certificate reload failed, keeping old certificate", "error", err)
		} else {
			s.logger.Info("TLS certificates reloaded")
		}
	}

	s.cfg = newCfg
	return nil
}

func (s *Server) shutdown() error {
	s.health.SetNotReady()

	drainTimeout, _ := config.ParseDuration(s.cfg.Server.DrainTimeout, 30*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if s.http3Server != nil {
		if err := s.http3Server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP/3 server shutdown error", "error", err)
		}
	}

	if err := s.mainServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("main server shutdown error", "error", err)
	}

	if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("admin server shutdown error", "error", err)
	}

	s.limiter.Stop()

	if err := s.store.Close(); err != nil {
		s.logger.Error("cache close error", "error", err)
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			s.logger.Error("registry close error", "error", err)
		}
	}
	if err := s.seclog.Close(); err != nil {
		s.logger.Error("security log close error", "error", err)
	}
	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil {
			s.logger.Error("event exporter close error", "error", err)
		}
	}

	if s.tracingShutdown != nil {
		if err := s.tracingShutdown(shutdownCtx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
