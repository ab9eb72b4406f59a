package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/transform"
	"github.com/Dermot10/reverse-proxy/internal/util"
)

const keyTransform = "transform"

// Pipeline runs requests through the proxy stages.
type Pipeline struct {
	router      router.Router
	executor    *proxy.Executor
	parser      *proxy.Parser
	transformer *transform.Transformer
	logger      observability.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// Option is a functional option for configuring the pipeline.
type Option func(*Pipeline)

// WithExecutor sets the executor used for outbound requests.
func WithExecutor(executor *proxy.Executor) Option {
	return func(p *Pipeline) {
		p.executor = executor
	}
}

// WithParser sets the response parser.
func WithParser(parser *proxy.Parser) Option {
	return func(p *Pipeline) {
		p.parser = parser
	}
}

// WithTransformer sets the content transformer.
func WithTransformer(transformer *transform.Transformer) Option {
	return func(p *Pipeline) {
		p.transformer = transformer
	}
}

// WithLogger sets the logger for the pipeline.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics sink for stage timings and errors.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithTracer sets the tracer used for pipeline spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// New creates a pipeline that routes with r. Stages not supplied through
// options use their defaults.
func New(r router.Router, opts ...Option) *Pipeline {
	p := &Pipeline{
		router: r,
		logger: observability.NopLogger(),
		tracer: observability.NoopTracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.executor == nil {
		p.executor = proxy.NewExecutor(
			proxy.WithExecutorLogger(p.logger),
			proxy.WithExecutorMetrics(p.metrics),
		)
	}
	if p.parser == nil {
		p.parser = proxy.NewParser(
			proxy.WithParserLogger(p.logger),
			proxy.WithParserMetrics(p.metrics),
		)
	}
	if p.transformer == nil {
		p.transformer = transform.New(
			transform.WithLogger(p.logger),
			transform.WithMetrics(p.metrics),
		)
	}
	return p
}

// validateFunc produces the validated descriptor and transform options for
// one invocation.
type validateFunc func() (*proxy.Descriptor, *transform.Options, error)

// Run executes desc and applies opts to the response. The returned error,
// if any, comes from validation, routing or execution and can be
// classified with proxy.KindOf.
func (p *Pipeline) Run(ctx context.Context, desc *proxy.Descriptor, opts *transform.Options) (*proxy.ParsedResponse, error) {
	return p.run(ctx, func() (*proxy.Descriptor, *transform.Options, error) {
		if err := desc.Validate(); err != nil {
			return nil, nil, err
		}
		return desc, opts, nil
	})
}

// RunEvent validates an untyped event and runs it. An optional "transform"
// entry supplies the transform options.
func (p *Pipeline) RunEvent(ctx context.Context, raw any) (*proxy.ParsedResponse, error) {
	return p.run(ctx, func() (*proxy.Descriptor, *transform.Options, error) {
		desc, err := proxy.ValidateEvent(raw)
		if err != nil {
			return nil, nil, err
		}
		v, ok := proxy.TransformOptionsValue(raw)
		if !ok {
			return desc, nil, nil
		}
		opts, err := transform.ParseOptions(v)
		if err != nil {
			return nil, nil, proxy.NewMalformedEventError(keyTransform, err.Error())
		}
		return desc, opts, nil
	})
}

// RunEventJSON decodes a JSON event and runs it. Unlike RunEvent, text
// replacements given as a JSON object keep their declaration order.
func (p *Pipeline) RunEventJSON(ctx context.Context, data []byte) (*proxy.ParsedResponse, error) {
	return p.run(ctx, func() (*proxy.Descriptor, *transform.Options, error) {
		var event any
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, nil, proxy.NewMalformedEventError("", fmt.Sprintf("invalid JSON: %v", err))
		}
		desc, err := proxy.ValidateEvent(event)
		if err != nil {
			return nil, nil, err
		}

		var envelope struct {
			Transform *transform.Options `json:"transform"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, nil, proxy.NewMalformedEventError(keyTransform, err.Error())
		}
		return desc, envelope.Transform, nil
	})
}

func (p *Pipeline) run(ctx context.Context, validate validateFunc) (*proxy.ParsedResponse, error) {
	ctx, span := p.tracer.StartSpan(ctx, "proxy.pipeline", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	var (
		desc *proxy.Descriptor
		opts *transform.Options
	)
	err := p.stage(ctx, observability.StageValidate, func(context.Context) error {
		var validateErr error
		desc, opts, validateErr = validate()
		return validateErr
	})
	if err != nil {
		return nil, p.fail(span, err)
	}

	span.SetAttributes(
		attribute.String("http.request.method", desc.Method),
		attribute.String("proxy.path", desc.Path),
	)

	var target string
	err = p.stage(ctx, observability.StageRoute, func(ctx context.Context) error {
		var routeErr error
		target, routeErr = p.router.Route(ctx, desc.Path)
		return routeErr
	})
	if err != nil {
		return nil, p.fail(span, err)
	}
	ctx = util.ContextWithRoute(ctx, desc.Path)
	span.SetAttributes(attribute.String("proxy.target", target))

	var resp *proxy.TargetResponse
	err = p.stage(ctx, observability.StageExecute, func(ctx context.Context) error {
		var execErr error
		resp, execErr = p.executor.Execute(ctx, proxy.ExecuteRequest{
			Method:  desc.Method,
			URL:     target,
			Params:  desc.Params,
			Body:    desc.Body,
			Headers: desc.Headers,
			Route:   desc.Path,
		})
		return execErr
	})
	if err != nil {
		return nil, p.fail(span, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	var parsed *proxy.ParsedResponse
	_ = p.stage(ctx, observability.StageParse, func(ctx context.Context) error {
		parsed = p.parser.Parse(ctx, resp)
		return nil
	})

	_ = p.stage(ctx, observability.StageTransform, func(ctx context.Context) error {
		parsed = p.transformer.Transform(ctx, parsed, opts)
		return nil
	})

	p.logger.WithContext(ctx).Debug("pipeline completed",
		observability.String("method", desc.Method),
		observability.String("path", desc.Path),
		observability.String("target", target),
		observability.Int("status", parsed.StatusCode),
	)
	return parsed, nil
}

// stage runs fn inside its own span and records its duration. Errors are
// counted against the stage that produced them.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.StartSpan(ctx, "proxy."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStage(name, time.Since(start))

	if err != nil {
		kind := proxy.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		p.metrics.RecordPipelineError(name, string(kind))

		logger := p.logger.WithContext(ctx)
		fields := []observability.Field{
			observability.String("stage", name),
			observability.String("kind", string(kind)),
			observability.Error(err),
		}
		if proxy.IsClientError(err) {
			logger.Debug("request rejected", fields...)
		} else {
			logger.Warn("pipeline stage failed", fields...)
		}
	}
	return err
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
