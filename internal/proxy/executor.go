package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/util"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 30 * time.Second

// Outcome label values for upstream metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// HTTPDoer sends an HTTP request. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExecuteRequest describes one outbound call.
type ExecuteRequest struct {
	Method  string
	URL     string
	Params  map[string]string
	Body    any
	Headers map[string]string
	// Route is the matched route path, used only for logs and metrics.
	Route string
}

// TargetResponse is the raw upstream answer.
type TargetResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	RawBody    []byte            `json:"-"`
}

// Executor performs exactly one outbound request per call, with a fixed
// timeout and no retries.
type Executor struct {
	client            HTTPDoer
	timeout           time.Duration
	failOnErrorStatus bool
	headerPolicy      *HeaderPolicy
	logger            observability.Logger
	metrics           *observability.Metrics
}

// ExecutorOption is a functional option for configuring the executor.
type ExecutorOption func(*Executor)

// WithHTTPClient sets the HTTP client used for outbound requests.
func WithHTTPClient(client HTTPDoer) ExecutorOption {
	return func(e *Executor) {
		e.client = client
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithFailOnErrorStatus controls whether 4xx/5xx answers are failures.
func WithFailOnErrorStatus(fail bool) ExecutorOption {
	return func(e *Executor) {
		e.failOnErrorStatus = fail
	}
}

// WithHeaderPolicy sets the header forwarding policy.
func WithHeaderPolicy(policy *HeaderPolicy) ExecutorOption {
	return func(e *Executor) {
		if policy != nil {
			e.headerPolicy = policy
		}
	}
}

// WithExecutorLogger sets the logger for the executor.
func WithExecutorLogger(logger observability.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithExecutorMetrics sets the metrics sink for upstream requests.
func WithExecutorMetrics(metrics *observability.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = metrics
	}
}

// NewExecutor creates an executor. By default it uses a plain http.Client,
// a 30 second timeout, and treats error statuses as failures.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		client:            &http.Client{},
		timeout:           DefaultTimeout,
		failOnErrorStatus: true,
		headerPolicy:      DefaultHeaderPolicy(),
		logger:            observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured per-request timeout.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Execute validates the target, sends the request, and reads the full
// response body.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*TargetResponse, error) {
	logger := e.logger.WithContext(ctx)
	method := strings.ToUpper(req.Method)

	if err := util.ValidateURL(req.URL); err != nil {
		logger.Error("refusing to call invalid target",
			observability.String("route", req.Route),
			observability.String("target", req.URL),
			observability.Error(err),
		)
		return nil, &InvalidTargetError{URL: req.URL, Reason: err}
	}

	target, err := buildTargetURL(req.URL, req.Params)
	if err != nil {
		return nil, &InvalidTargetError{URL: req.URL, Reason: err}
	}

	// Validated descriptors never fail here. Direct callers may still pass
	// bodies that do not encode.
	body, defaultContentType, err := prepareBody(req.Body, req.Headers)
	if err != nil {
		return nil, NewMalformedEventError(keyData, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &InvalidTargetError{URL: req.URL, Reason: err}
	}
	e.headerPolicy.Apply(httpReq.Header, req.Headers)
	if defaultContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", defaultContentType)
	}
	observability.InjectTraceContext(ctx, httpReq)

	logger.Debug("executing upstream request",
		observability.String("method", method),
		observability.String("url", target),
	)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.fail(ctx, req, method, target, 0, e.transportCause(ctx, err), start)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		cause := e.transportCause(ctx, fmt.Errorf("read response body: %w", err))
		return nil, e.fail(ctx, req, method, target, resp.StatusCode, cause, start)
	}

	if e.failOnErrorStatus && util.IsErrorStatus(resp.StatusCode) {
		return nil, e.fail(ctx, req, method, target, resp.StatusCode, util.NewServerError(resp.StatusCode), start)
	}

	e.metrics.RecordUpstream(req.Route, outcomeSuccess, time.Since(start))
	logger.Debug("upstream responded",
		observability.String("url", target),
		observability.Int("status", resp.StatusCode),
		observability.Int("bytes", len(raw)),
		observability.Duration("duration", time.Since(start)),
	)

	return &TargetResponse{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeader(resp.Header),
		RawBody:    raw,
	}, nil
}

func (e *Executor) fail(
	ctx context.Context,
	req ExecuteRequest,
	method, target string,
	status int,
	cause error,
	start time.Time,
) error {
	e.metrics.RecordUpstream(req.Route, outcomeFailure, time.Since(start))
	e.logger.WithContext(ctx).Warn("upstream request failed",
		observability.String("method", method),
		observability.String("url", target),
		observability.Int("status", status),
		observability.Error(cause),
	)
	return &UpstreamError{Method: method, URL: target, StatusCode: status, Cause: cause}
}

// transportCause marks deadline overruns as timeouts so callers can tell
// them apart from other transport failures.
func (e *Executor) transportCause(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return util.NewTimeoutError("upstream request", e.timeout, err)
	}
	return err
}

// buildTargetURL appends params to the query of rawURL. The URL is left
// untouched when there are no params.
func buildTargetURL(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// prepareBody renders the request body. Structured bodies are sent as JSON
// when the caller declared a JSON content type, as a form when they are a
// flat mapping, and as JSON otherwise. The second return value is the
// content type to use when the caller supplied none.
func prepareBody(body any, headers map[string]string) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case json.RawMessage:
		return bytes.NewReader(b), "", nil
	}

	contentType := strings.ToLower(lookupHeader(headers, "Content-Type"))
	if strings.Contains(contentType, "application/json") {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("encode JSON body: %w", err)
		}
		return bytes.NewReader(data), "", nil
	}

	if form, ok := formValues(body); ok {
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode JSON body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func formValues(body any) (url.Values, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	form := make(url.Values, len(m))
	for k, v := range m {
		s, ok := scalarString(v)
		if !ok {
			return nil, false
		}
		form.Set(k, s)
	}
	return form, true
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
