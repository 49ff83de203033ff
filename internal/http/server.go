// Package http provides the HTTP API for ragchat.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/ragchat/internal/chat"
	"github.com/fyrsmithlabs/ragchat/internal/fileindex"
	"github.com/fyrsmithlabs/ragchat/internal/logging"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, req chat.AskRequest) (*chat.Answer, error)
}

// Prober reports on the answer provider for /health.
type Prober interface {
	Name() string
	Configured() bool
	Probe(ctx context.Context) error
}

// CacheStats reports on the response cache for /health.
type CacheStats interface {
	Len() int
	TTL() time.Duration
}

// Indexer is the file index behind POST /index/refresh.
type Indexer interface {
	Invalidate()
	Files(ctx context.Context) ([]fileindex.File, error)
	LastScan() time.Time
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// AskRatePerMinute and AskBurst bound POST /ask per client IP.
	AskRatePerMinute int
	AskBurst         int

	ProbeTimeout time.Duration
	BodyLimit    string
}

// Deps are the services the server routes to. Chat, Provider, Cache and
// Logger are required.
type Deps struct {
	Chat     Asker
	Provider Prober
	Cache    CacheStats
	Index    Indexer
	Gatherer prometheus.Gatherer
	Metrics  *HTTPMetrics
	Logger   *logging.Logger
}

// Server provides HTTP endpoints for ragchat.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
	now    func() time.Time
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg *Config) (*Server, error) {
	if deps.Chat == nil {
		return nil, fmt.Errorf("chat service cannot be nil")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.AskRatePerMinute <= 0 {
		cfg.AskRatePerMinute = 10
	}
	if cfg.AskBurst <= 0 {
		cfg.AskBurst = 2
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "16K"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: deps.Logger,
		config: cfg,
		now:    time.Now,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: chat.NewRequestID}))
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
	e.Use(s.requestLogger)
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	s.echo.POST("/ask", s.handleAsk, s.askLimiter())
	if s.deps.Index != nil {
		s.echo.POST("/index/refresh", s.handleRefresh)
	}
}

// askLimiter throttles POST /ask per client IP.
func (s *Server) askLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(s.config.AskRatePerMinute) / 60),
		Burst:     s.config.AskBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return s.fail(c, http.StatusForbidden, apiError{Code: "FORBIDDEN", Message: "Unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Warn(c.Request().Context(), "ask rate limit exceeded", zap.String("client", identifier))
			return s.fail(c, http.StatusTooManyRequests, apiError{
				Code:       "RATE_LIMIT_EXCEEDED",
				Message:    "Too many requests. Please try again later.",
				RetryAfter: 60,
			})
		},
	})
}

// requestLogger puts the request ID on the request context and logs every
// request once its status is known.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), requestID(c))
		c.SetRequest(req.WithContext(ctx))

		if err := next(c); err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
