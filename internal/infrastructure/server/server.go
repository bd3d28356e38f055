package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/neighbourhoods/forum-applet/internal/api/http"
	"github.com/neighbourhoods/forum-applet/internal/api/middleware"
	"github.com/neighbourhoods/forum-applet/internal/bootstrap"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/config"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/logging"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/monitoring"
	"github.com/neighbourhoods/forum-applet/internal/infrastructure/tracing"
)

// Server wraps the harness HTTP server and the session it drives
type Server struct {
	router  *gin.Engine
	session *bootstrap.Session
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer bootstraps the applet session against the conductor and
// builds the router that drives it
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}

	adminURL, err := cfg.Conductor.AdminURL()
	if err != nil {
		return nil, err
	}
	logger.Info("Initializing applet harness",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("agent", cfg.Conductor.Agent),
		zap.String("admin_url", adminURL),
		zap.String("installed_app_id", cfg.Applet.InstalledAppID),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("harness", logger)

	session, err := bootstrap.Start(ctx, cfg, logger, metrics)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("bootstrap applet: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(session, cfg, logger, metrics, tracer)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		session: session,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// NewRouter wires the middleware stack and the harness routes. metrics
// and tracer may be nil.
func NewRouter(ctrl httpapi.Controller, cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) *gin.Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if tracer != nil {
		router.Use(tracing.HTTPMiddleware(tracer))
	}
	if metrics != nil {
		router.Use(monitoring.Middleware(metrics))
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowOrigins
	}
	router.Use(middleware.CORS(cors))

	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("global_rps", cfg.RateLimit.GlobalRequestsPerSecond),
		)
		if cfg.RateLimit.GlobalRequestsPerSecond > 0 {
			global := middleware.DefaultRateLimitConfig()
			global.RequestsPerSecond = cfg.RateLimit.GlobalRequestsPerSecond
			global.Burst = cfg.RateLimit.GlobalBurst
			router.Use(middleware.GlobalRateLimit(global))
		}
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := httpapi.NewHandlers(ctrl, tracer, logger, cfg.Server.ActionTimeout)

	router.GET("/health", handlers.Health)
	router.GET("/status", handlers.Status)
	router.GET("/applet", handlers.Applet)

	nh := router.Group("/neighbourhood")
	nh.POST("/create", handlers.CreateNeighbourhood)
	nh.POST("/join", handlers.JoinNeighbourhood)
	nh.POST("/configuration/retry", handlers.RetryConfiguration)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return router
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Session returns the bootstrapped applet session
func (s *Server) Session() *bootstrap.Session {
	return s.session
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Server.Addr(),
		Handler: s.router,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close tears down the session and flushes telemetry
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	err := s.session.Close()
	if err != nil {
		s.logger.Error("Failed to close conductor connections", zap.Error(err))
	}
	s.tracer.Close()
	_ = s.logger.Sync()

	return err
}
