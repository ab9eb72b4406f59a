package config

import "time"

// Default values.
const (
	DefaultPort               = 8080
	DefaultMetricsPort        = 9091
	DefaultMetricsPath        = "/metrics"
	DefaultUpstreamTimeout    = 30 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMaxRequestBodySize = 10 << 20
	DefaultServiceName        = "reverse-proxy"
)

// Config is the root configuration of the reverse proxy.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Routes   []RouteConfig  `yaml:"routes" json:"routes"`
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the inbound HTTP front-end.
type ServerConfig struct {
	Address            string   `yaml:"address,omitempty" json:"address,omitempty"`
	Port               int      `yaml:"port" json:"port"`
	ReadTimeout        Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout       Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`
	IdleTimeout        Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`
	ShutdownTimeout    Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
	MaxRequestBodySize int64    `yaml:"maxRequestBodySize,omitempty" json:"maxRequestBodySize,omitempty"`
}

// RouteConfig maps an exact inbound path to an upstream base URL.
type RouteConfig struct {
	Path   string `yaml:"path" json:"path"`
	Target string `yaml:"target" json:"target"`
}

// UpstreamConfig configures outbound requests.
type UpstreamConfig struct {
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// FailOnErrorStatus turns 4xx/5xx upstream answers into request failures.
	FailOnErrorStatus bool               `yaml:"failOnErrorStatus" json:"failOnErrorStatus"`
	Headers           HeaderPolicyConfig `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// HeaderPolicyConfig controls which inbound headers are forwarded upstream.
// Deny entries are added to the built-in hop-by-hop deny list. A non-empty
// Allow list forwards only the named headers.
type HeaderPolicyConfig struct {
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// DefaultRoutes returns the built-in route table used when no
// configuration file is supplied.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Path: "/google", Target: "https://www.google.com"},
		{Path: "/hollandandbarrett", Target: "https://www.hollandandbarrett.com/"},
		{Path: "/youtube", Target: "https://www.youtube.com"},
		{Path: "/jsonplaceholder", Target: "https://jsonplaceholder.typicode.com/posts"},
	}
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               DefaultPort,
			ReadTimeout:        Duration(DefaultReadTimeout),
			WriteTimeout:       Duration(DefaultWriteTimeout),
			IdleTimeout:        Duration(DefaultIdleTimeout),
			ShutdownTimeout:    Duration(DefaultShutdownTimeout),
			MaxRequestBodySize: DefaultMaxRequestBodySize,
		},
		Routes: DefaultRoutes(),
		Upstream: UpstreamConfig{
			Timeout:           Duration(DefaultUpstreamTimeout),
			FailOnErrorStatus: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    DefaultMetricsPath,
			Port:    DefaultMetricsPort,
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
			ServiceName:  DefaultServiceName,
			Insecure:     true,
		},
	}
}
