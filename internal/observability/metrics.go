package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stage label values.
const (
	StageValidate  = "validate"
	StageRoute     = "route"
	StageExecute   = "execute"
	StageParse     = "parse"
	StageTransform = "transform"
)

// UnmatchedRoute is the route label used when no route matched, keeping
// label cardinality bounded.
const UnmatchedRoute = "unmatched"

// Metrics holds all Prometheus metrics for the proxy.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	activeRequests    prometheus.Gauge
	stageDuration     *prometheus.HistogramVec
	pipelineErrors    *prometheus.CounterVec
	upstreamRequests  *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
	parseFallbacks    prometheus.Counter
	transformOutcomes *prometheus.CounterVec
	configChanges     prometheus.Counter
	buildInfo         *prometheus.GaugeVec
	startTime         prometheus.Gauge
	registry          *prometheus.Registry
}

// NewMetrics creates a new Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "proxy"
	}

	latencyBuckets := []float64{
		.001, .005, .01, .025, .05,
		.1, .25, .5, 1, 2.5, 5, 10, 30,
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of inbound requests",
		},
		[]string{"method", "route", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound request duration in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"method", "route", "status"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of inbound requests in flight",
		},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"stage"},
	)

	m.pipelineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline invocations that ended in an error, by stage and kind",
		},
		[]string{"stage", "kind"},
	)

	m.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound requests to upstream targets",
		},
		[]string{"route", "outcome"},
	)

	m.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound request duration in seconds",
			Buckets:   latencyBuckets,
		},
		[]string{"route"},
	)

	m.parseFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_fallbacks_total",
			Help:      "JSON responses that failed to decode and were kept as text",
		},
	)

	m.transformOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_outcomes_total",
			Help:      "Content transformation outcomes",
		},
		[]string{"outcome"},
	)

	m.configChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_changes_total",
			Help: "Configuration file changes detected " +
				"that require a restart to apply",
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the proxy",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the proxy in unix seconds",
		},
	)

	m.registerCollectors()

	m.startTime.SetToCurrentTime()

	return m
}

func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.stageDuration,
		m.pipelineErrors,
		m.upstreamRequests,
		m.upstreamDuration,
		m.parseFallbacks,
		m.transformOutcomes,
		m.configChanges,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// All recording methods are safe to call on a nil *Metrics.

// RecordRequest records a completed inbound request. route must be a
// configured route path, a handler pattern or UnmatchedRoute, never the raw
// request path.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, route, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, route, statusStr).Observe(duration.Seconds())
}

// IncActiveRequests increments the in-flight gauge.
func (m *Metrics) IncActiveRequests() {
	if m == nil {
		return
	}
	m.activeRequests.Inc()
}

// DecActiveRequests decrements the in-flight gauge.
func (m *Metrics) DecActiveRequests() {
	if m == nil {
		return
	}
	m.activeRequests.Dec()
}

// ObserveStage records the duration of one pipeline stage.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPipelineError counts a pipeline failure.
func (m *Metrics) RecordPipelineError(stage, kind string) {
	if m == nil {
		return
	}
	m.pipelineErrors.WithLabelValues(stage, kind).Inc()
}

// RecordUpstream records one outbound request and its outcome
// ("success" or "failure").
func (m *Metrics) RecordUpstream(route, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(route, outcome).Inc()
	m.upstreamDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordParseFallback counts a JSON body that could not be decoded.
func (m *Metrics) RecordParseFallback() {
	if m == nil {
		return
	}
	m.parseFallbacks.Inc()
}

// RecordTransformOutcome counts a content transformation outcome.
func (m *Metrics) RecordTransformOutcome(outcome string) {
	if m == nil {
		return
	}
	m.transformOutcomes.WithLabelValues(outcome).Inc()
}

// RecordConfigChange counts a detected configuration change.
func (m *Metrics) RecordConfigChange() {
	if m == nil {
		return
	}
	m.configChanges.Inc()
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
