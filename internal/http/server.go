// Package http provides the JSON API that drives annotation sessions.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/logging"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
	"github.com/fyrsmithlabs/clustereval/internal/session"
)

// Server provides HTTP endpoints for clustereval.
type Server struct {
	echo        *echo.Echo
	campaign    *campaign.Campaign
	store       progress.Store
	sessions    *Registry
	logger      *zap.Logger
	config      *Config
	sessionOpts []session.Option
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second allowed per client on
	// the API group. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Option configures a Server.
type Option func(*Server)

// WithSessionOptions passes options to every session the server creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// NewServer creates a new HTTP server.
func NewServer(c *campaign.Campaign, store progress.Store, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if c == nil {
		return nil, errors.New("campaign cannot be nil")
	}
	if store == nil {
		return nil, errors.New("progress store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		campaign: c,
		store:    store,
		sessions: NewRegistry(),
		logger:   logger,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// requestContext copies the request id into the request context so that
// downstream logs carry it.
func requestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if logging.ValidID(rid) {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))
			}
			return next(c)
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.config.RateLimit > 0 {
		v1.Use(newClientLimiter(s.config.RateLimit, s.config.RateBurst, s.logger).Middleware())
	}

	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.withSession(s.handleGetSession))
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.POST("/sessions/:id/submit", s.withSession(s.handleSubmit))
	v1.POST("/sessions/:id/overwrite", s.withSession(s.handleOverwrite))
	v1.POST("/sessions/:id/discard", s.withSession(s.handleDiscard))
	v1.POST("/sessions/:id/retry", s.withSession(s.handleRetry))
	v1.POST("/sessions/:id/batch", s.withSession(s.handleSelectBatch))
	v1.POST("/sessions/:id/next", s.withSession(s.handleNext))
	v1.POST("/sessions/:id/previous", s.withSession(s.handlePrevious))

	v1.GET("/evaluations", s.handleExport)
	v1.GET("/summary.csv", s.handleSummary)
	v1.GET("/progress", s.handleProgress)
}

// Echo exposes the router so callers can mount extra routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server", zap.Int("open_sessions", s.sessions.Len()))
	return s.echo.Shutdown(ctx)
}
