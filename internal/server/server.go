package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/pipeline"
	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/server/middleware"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid races.
var ginModeOnce sync.Once

// Config holds configuration for the HTTP server.
type Config struct {
	Port           int
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// MaxRequestBodySize is the maximum allowed request body size in bytes.
	// Set to 0 to disable the limit.
	MaxRequestBodySize int64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:               8080,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxRequestBodySize: 10 << 20,
	}
}

// Server is the HTTP front-end of the proxy.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   *pipeline.Pipeline
	routes     *router.RouteTable
	logger     observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	config     *Config
	mu         sync.RWMutex
	running    bool
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger for the server and its middleware.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorded by the request middleware.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer sets the tracer used for server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// New creates a server that runs requests through p. routes is only used
// to answer GET /routes.
func New(config *Config, p *pipeline.Pipeline, routes *router.RouteTable, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:   gin.New(),
		pipeline: p,
		routes:   routes,
		logger:   observability.NopLogger(),
		tracer:   observability.NoopTracer(),
		config:   config,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Tracing(s.tracer),
		middleware.Metrics(s.metrics),
		middleware.Logging(s.logger),
		middleware.BodyLimit(config.MaxRequestBodySize),
	)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.Any("/proxy/*path", s.handleProxy)
	s.engine.POST("/invoke", s.handleInvoke)
	s.engine.GET("/routes", s.handleRoutes)
	s.engine.NoRoute(s.handleNotFound)
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Address, fmt.Sprintf("%d", s.config.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return fmt.Errorf("server already running")
	}
	s.httpServer = &http.Server{
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("readTimeout", s.config.ReadTimeout),
		observability.Duration("writeTimeout", s.config.WriteTimeout),
	)

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
