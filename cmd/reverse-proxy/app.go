package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Dermot10/reverse-proxy/internal/config"
	"github.com/Dermot10/reverse-proxy/internal/health"
	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/pipeline"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/server"
)

// application holds all components of a serving process.
type application struct {
	config        *config.Config
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	routes        *router.RouteTable
	pipeline      *pipeline.Pipeline
	server        *server.Server
	healthChecker *health.Checker
	metricsServer *http.Server
}

// newApplication wires every component from cfg. Nothing is started.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics("")
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
		Insecure:     cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	table, p, err := newPipeline(cfg, logger, metrics, tracer)
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker(version)
	checker.RegisterCheck("routes", health.RouteTableCheck(table.Len))

	app := &application{
		config:        cfg,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		routes:        table,
		pipeline:      p,
		healthChecker: checker,
		server: server.New(serverConfigFrom(cfg.Server), p, table,
			server.WithLogger(logger),
			server.WithMetrics(metrics),
			server.WithTracer(tracer),
		),
	}
	if cfg.Metrics.Enabled {
		app.metricsServer = createMetricsServer(cfg.Metrics, metrics, checker, logger)
	}
	return app, nil
}

// newPipeline builds the route table and the request pipeline from cfg.
func newPipeline(
	cfg *config.Config,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) (*router.RouteTable, *pipeline.Pipeline, error) {
	table, err := routeTableFrom(cfg.Routes)
	if err != nil {
		return nil, nil, err
	}

	executor := proxy.NewExecutor(
		proxy.WithTimeout(cfg.Upstream.Timeout.Duration()),
		proxy.WithFailOnErrorStatus(cfg.Upstream.FailOnErrorStatus),
		proxy.WithHeaderPolicy(proxy.NewHeaderPolicy(cfg.Upstream.Headers.Deny, cfg.Upstream.Headers.Allow)),
		proxy.WithExecutorLogger(logger),
		proxy.WithExecutorMetrics(metrics),
	)

	p := pipeline.New(
		router.NewExactRouter(table, router.WithLogger(logger)),
		pipeline.WithExecutor(executor),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithTracer(tracer),
	)
	return table, p, nil
}

func routeTableFrom(routes []config.RouteConfig) (*router.RouteTable, error) {
	entries := make([]router.Entry, 0, len(routes))
	for _, r := range routes {
		entries = append(entries, router.Entry{Path: r.Path, Target: r.Target})
	}
	return router.NewRouteTable(entries)
}

func serverConfigFrom(cfg config.ServerConfig) *server.Config {
	return &server.Config{
		Port:               cfg.Port,
		Address:            cfg.Address,
		ReadTimeout:        cfg.ReadTimeout.Duration(),
		WriteTimeout:       cfg.WriteTimeout.Duration(),
		IdleTimeout:        cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:     1 << 20,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	}
}

// createMetricsServer creates the metrics and health HTTP server.
func createMetricsServer(
	cfg config.MetricsConfig,
	metrics *observability.Metrics,
	checker *health.Checker,
	logger observability.Logger,
) *http.Server {
	path := cfg.Path
	if path == "" {
		path = config.DefaultMetricsPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/health", checker.HealthHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", checker.LivenessHandler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("metrics server configured",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
