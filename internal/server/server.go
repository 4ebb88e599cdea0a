package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apihttp "github.com/GriffinCanCode/scopectx/internal/api/http"
	"github.com/GriffinCanCode/scopectx/internal/api/middleware"
	"github.com/GriffinCanCode/scopectx/internal/boundary"
	"github.com/GriffinCanCode/scopectx/internal/domain/identity"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	scopegrpc "github.com/GriffinCanCode/scopectx/internal/grpc"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/config"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/health"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/jobs"
	"github.com/GriffinCanCode/scopectx/internal/outbound"
	"github.com/GriffinCanCode/scopectx/internal/transport"
	"github.com/GriffinCanCode/scopectx/internal/ws"
)

// HealthRefreshJob is the scheduled job that keeps health gauges current.
const HealthRefreshJob = "health-refresh"

// Server wraps the HTTP and gRPC servers and their dependencies.
type Server struct {
	config     *config.Config
	identity   identity.Identity
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	registry   *identity.Registry
	aggregator *health.Aggregator
	outbound   *outbound.Client
	router     *gin.Engine
	grpc       *grpc.Server
	scheduler  *jobs.Scheduler
	closers    []func() error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the logger built from config.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRegistry replaces the registry loaded from REGISTRY_PATH.
func WithRegistry(r *identity.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithMetrics replaces the process-wide metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ident, err := cfg.ProcessIdentity()
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg, identity: ident}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Fields: map[string]string{
				"studio_id":   ident.StudioID,
				"environment": ident.Environment,
			},
		})
		if err != nil {
			return nil, err
		}
	}
	logger := s.logger

	logger.Info("Initializing scopectx server",
		zap.String("node_id", ident.NodeID),
		zap.String("port", cfg.Server.Port),
		zap.Bool("grpc", cfg.GRPC.Enabled),
	)

	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics()
	}
	metrics := s.metrics

	if s.registry == nil {
		s.registry, err = loadRegistry(cfg.Registry.Path)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("Node registry loaded", zap.Int("nodes", s.registry.Len()), zap.String("path", cfg.Registry.Path))

	ids := cfg.IDGenerator()
	httpMapper := transport.NewHTTPMapper(transport.HTTPConfig{
		MaxValueLength:    cfg.Propagation.MaxHeaderValueLength,
		BaggagePrefix:     cfg.Propagation.BaggageHeaderPrefix,
		MaxBaggageEntries: cfg.Propagation.MaxBaggageEntries,
		Sampled:           cfg.Propagation.Sampled,
		IDs:               ids,
	})
	msgMapper := transport.NewMessagingMapper(transport.MessagingConfig{
		MaxValueLength: cfg.Propagation.MaxHeaderValueLength,
		BaggagePrefix:  cfg.Propagation.MessagingBaggagePrefix,
		IDs:            ids,
	})
	jobMapper := transport.NewJobMapper(transport.JobConfig{
		MaxValueLength: cfg.Propagation.MaxHeaderValueLength,
		IDs:            ids,
	})

	runner := boundary.NewRunner(ident,
		boundary.WithLogger(logger),
		boundary.WithMetrics(metrics),
		boundary.WithIDSource(ids),
	)
	factory := operation.NewChildFactory(s.registry)

	s.outbound = outbound.New(s.registry, httpMapper, outbound.Settings{
		Timeout:           cfg.Outbound.Timeout,
		RetryMax:          cfg.Outbound.RetryMax,
		RequestsPerSecond: cfg.Outbound.RequestsPerSecond,
		Burst:             cfg.Outbound.Burst,
		BreakerFailures:   cfg.Outbound.BreakerFailures,
		BreakerTimeout:    cfg.Outbound.BreakerTimeout,
	}, outbound.WithMetrics(metrics), outbound.WithLogger(logger))

	if err := s.buildHealth(); err != nil {
		return nil, err
	}

	s.router = s.buildRouter(runner, httpMapper, msgMapper, factory)

	if cfg.GRPC.Enabled {
		ic := scopegrpc.NewInterceptors(runner, httpMapper, factory, metrics)
		s.grpc = grpc.NewServer(ic.ServerOptions()...)
		healthpb.RegisterHealthServer(s.grpc, scopegrpc.NewHealthServer(s.aggregator))
	}

	s.scheduler = jobs.NewScheduler(jobs.NewRunner(runner, jobMapper, metrics))
	if interval := cfg.Health.RefreshInterval; interval > 0 {
		err := s.scheduler.Add(jobs.Schedule{
			Job:      transport.ScheduledJob{Name: HealthRefreshJob},
			Interval: interval,
			Handler:  s.refreshHealth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule health refresh: %w", err)
		}
	}

	logger.Info("Server initialized successfully",
		zap.Int("probes", s.aggregator.Len()),
		zap.Int("schedules", s.scheduler.Len()),
	)
	return s, nil
}

func loadRegistry(path string) (*identity.Registry, error) {
	if path == "" {
		return identity.NewRegistry()
	}
	reg, err := identity.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load node registry: %w", err)
	}
	return reg, nil
}

// buildHealth wires one probe per registry node with a health endpoint and
// one optional probe per outbound breaker.
func (s *Server) buildHealth() error {
	probes, closeProbes, err := health.ProbesFromRegistry(s.registry, nil)
	if err != nil {
		return fmt.Errorf("failed to build health probes: %w", err)
	}
	s.closers = append(s.closers, closeProbes)

	for _, b := range s.outbound.Breakers() {
		probes = append(probes, health.Optional(health.NewBreakerProbe(b)))
	}

	s.aggregator = health.NewAggregator(probes,
		health.WithProbeTimeout(s.config.Health.ProbeTimeout),
		health.WithObserver(s.metrics),
	)
	return nil
}

func (s *Server) buildRouter(runner *boundary.Runner, httpMapper *transport.HTTPMapper, msgMapper *transport.MessagingMapper, factory *operation.ChildFactory) *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Server.AllowedOrigins
	router.Use(middleware.CORS(cors))

	// Websocket connections are long-lived; each message opens its own
	// scope, so the upgrade route sits outside the request scope.
	wsHandler := ws.NewHandler(runner, msgMapper, factory, s.metrics)
	wsHandler.AllowOrigins(cfg.Server.AllowedOrigins)
	router.GET("/ws", wsHandler.HandleConnection)

	api := router.Group("/", middleware.Scope(runner, httpMapper))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(limits))
	}

	deps := apihttp.Deps{
		Identity:   s.identity,
		Logger:     s.logger,
		Metrics:    s.metrics,
		Aggregator: s.aggregator,
		Registry:   s.registry,
		Outbound:   s.outbound,
	}
	apihttp.NewHandlers(deps).Register(api)
	apihttp.NewMetricsAggregator(deps).Register(api)
	return router
}

func (s *Server) refreshHealth(ctx context.Context, t *operation.Tracker) error {
	report, err := s.aggregator.Report(ctx)
	if err != nil {
		return err
	}
	_ = t.AddMetadata("status", report.Status.String())
	_ = t.AddMetadata("probes", len(report.Results))
	if report.Status == health.Unhealthy {
		s.logger.For(ctx).Warn("Node is unhealthy", zap.Any("results", report.Results))
	}
	return nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Aggregator returns the health aggregator.
func (s *Server) Aggregator() *health.Aggregator {
	return s.aggregator
}

// Run serves HTTP and gRPC and runs the scheduler until ctx is cancelled
// or a listener fails, then shuts everything down within the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.config
	httpAddr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", httpAddr, err)
	}

	var grpcLis net.Listener
	if s.grpc != nil {
		grpcAddr := net.JoinHostPort(cfg.Server.Host, cfg.GRPC.Port)
		grpcLis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
	}

	return s.serve(ctx, httpLis, grpcLis)
}

func (s *Server) serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	s.logger.Info("Starting HTTP server", zap.String("addr", httpLis.Addr().String()))
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcLis != nil {
		s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	schedCtx, stopSchedules := context.WithCancel(ctx)
	schedDone := make(chan error, 1)
	go func() { schedDone <- s.scheduler.Run(schedCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
	case runErr = <-errCh:
		s.logger.Error("Server failed", zap.Error(runErr))
	}

	stopSchedules()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}
	if s.grpc != nil {
		s.stopGRPC(shutdownCtx)
	}
	select {
	case err := <-schedDone:
		errs = append(errs, err)
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("scheduler did not stop: %w", shutdownCtx.Err()))
	}

	s.logger.Info("Server stopped")
	return errors.Join(errs...)
}

// stopGRPC drains in-flight RPCs, forcing a stop when ctx expires first.
func (s *Server) stopGRPC(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

// Close releases probe connections and flushes the logger.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = s.logger.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close server: %w", err)
	}
	return nil
}
