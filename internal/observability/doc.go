// Package observability provides logging, metrics, and tracing
// functionality for the reverse proxy.
//
// Structured logging is backed by zap, metrics by a dedicated Prometheus
// registry, and distributed tracing by OpenTelemetry with OTLP export.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request proxied",
//	    observability.String("route", "/google"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
//	metrics := observability.NewMetrics("proxy")
//	metrics.ObserveStage(observability.StageExecute, elapsed)
//	handler := metrics.Handler()
//
// # Tracing
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "reverse-proxy",
//	    OTLPEndpoint: "localhost:4317",
//	    Enabled:      true,
//	})
//	ctx, span := tracer.StartSpan(ctx, "proxy.route")
//	defer span.End()
package observability
