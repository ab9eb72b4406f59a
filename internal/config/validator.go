package config

import (
	"fmt"
	"strings"

	"github.com/Dermot10/reverse-proxy/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Is lets callers match any validation failure with util.ErrConfigInvalid.
func (e ValidationErrors) Is(target error) bool {
	return target == util.ErrConfigInvalid
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validLogOutputs = map[string]bool{"stdout": true, "stderr": true}
)

// Validator validates proxy configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a proxy configuration.
func ValidateConfig(config *Config) error {
	return NewValidator().Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&config.Server)
	v.validateRoutes(config.Routes)
	v.validateUpstream(&config.Upstream)
	v.validateLogging(&config.Logging)
	v.validateMetrics(&config.Metrics)
	v.validateTracing(&config.Tracing)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateServer(server *ServerConfig) {
	if err := util.ValidatePort(server.Port); err != nil {
		v.addError("server.port", err.Error())
	}
	if server.ReadTimeout < 0 {
		v.addError("server.readTimeout", "readTimeout cannot be negative")
	}
	if server.WriteTimeout < 0 {
		v.addError("server.writeTimeout", "writeTimeout cannot be negative")
	}
	if server.IdleTimeout < 0 {
		v.addError("server.idleTimeout", "idleTimeout cannot be negative")
	}
	if err := util.ValidatePositiveDuration(server.ShutdownTimeout.Duration()); err != nil {
		v.addError("server.shutdownTimeout", err.Error())
	}
	if server.MaxRequestBodySize < 0 {
		v.addError("server.maxRequestBodySize", "maxRequestBodySize cannot be negative")
	}
}

// validateRoutes checks the route table. Paths are matched exactly, so
// duplicates would make lookups ambiguous.
func (v *Validator) validateRoutes(routes []RouteConfig) {
	if len(routes) == 0 {
		v.addError("routes", "at least one route is required")
		return
	}

	seen := make(map[string]int, len(routes))
	for i, route := range routes {
		path := fmt.Sprintf("routes[%d]", i)

		switch {
		case route.Path == "":
			v.addError(path+".path", "path is required")
		case !strings.HasPrefix(route.Path, "/"):
			v.addError(path+".path", "path must start with '/'")
		default:
			if first, dup := seen[route.Path]; dup {
				v.addError(path+".path", fmt.Sprintf("duplicate path %q (first defined at routes[%d])", route.Path, first))
			} else {
				seen[route.Path] = i
			}
		}

		if err := util.ValidateURL(route.Target); err != nil {
			v.addError(path+".target", err.Error())
		}
	}
}

func (v *Validator) validateUpstream(upstream *UpstreamConfig) {
	if err := util.ValidatePositiveDuration(upstream.Timeout.Duration()); err != nil {
		v.addError("upstream.timeout", err.Error())
	}
	for i, name := range upstream.Headers.Deny {
		if err := util.ValidateHeaderName(name); err != nil {
			v.addError(fmt.Sprintf("upstream.headers.deny[%d]", i), err.Error())
		}
	}
	for i, name := range upstream.Headers.Allow {
		if err := util.ValidateHeaderName(name); err != nil {
			v.addError(fmt.Sprintf("upstream.headers.allow[%d]", i), err.Error())
		}
	}
}

func (v *Validator) validateLogging(logging *LoggingConfig) {
	if logging.Level != "" && !validLogLevels[strings.ToLower(logging.Level)] {
		v.addError("logging.level", fmt.Sprintf("unknown log level %q", logging.Level))
	}
	if logging.Format != "" && !validLogFormats[strings.ToLower(logging.Format)] {
		v.addError("logging.format", fmt.Sprintf("unknown log format %q", logging.Format))
	}
	if logging.Output != "" && !validLogOutputs[strings.ToLower(logging.Output)] {
		v.addError("logging.output", fmt.Sprintf("unknown log output %q", logging.Output))
	}
}

func (v *Validator) validateMetrics(metrics *MetricsConfig) {
	if !metrics.Enabled {
		return
	}
	if err := util.ValidatePort(metrics.Port); err != nil {
		v.addError("metrics.port", err.Error())
	}
	if metrics.Path != "" && !strings.HasPrefix(metrics.Path, "/") {
		v.addError("metrics.path", "path must start with '/'")
	}
}

func (v *Validator) validateTracing(tracing *TracingConfig) {
	if tracing.SamplingRate < 0 || tracing.SamplingRate > 1 {
		v.addError("tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
	if tracing.Enabled && tracing.ServiceName == "" {
		v.addError("tracing.serviceName", "serviceName is required when tracing is enabled")
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
