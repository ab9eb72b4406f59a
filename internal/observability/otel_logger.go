package observability

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// LogrFrom adapts a Logger to logr for libraries that log through logr.
func LogrFrom(logger Logger) logr.Logger {
	if zl, ok := logger.(*zapLogger); ok {
		return zapr.NewLogger(zl.logger)
	}
	return zapr.NewLogger(zap.NewNop())
}

// RouteOTelDiagnostics sends OpenTelemetry's internal diagnostics and
// export errors to logger.
func RouteOTelDiagnostics(logger Logger) {
	l := LogrFrom(logger).WithName("otel")
	otel.SetLogger(l)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		l.Error(err, "opentelemetry error")
	}))
}
