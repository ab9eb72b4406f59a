package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/util"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   string
}

func newCaptureServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Query = r.URL.Query()
		captured.Header = r.Header.Clone()
		captured.Body = string(data)
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestExecutor_Execute_Get(t *testing.T) {
	t.Parallel()

	srv, captured := newCaptureServer(t, http.StatusOK, "text/html; charset=utf-8", "<html>ok</html>")
	exec := NewExecutor()

	resp, err := exec.Execute(context.Background(), ExecuteRequest{
		Method:  "get",
		URL:     srv.URL + "/base?keep=1",
		Params:  map[string]string{"q": "go lang"},
		Headers: map[string]string{"Accept": "text/html", "Host": "evil.test", "Connection": "close"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>ok</html>", string(resp.RawBody))
	assert.Equal(t, "text/html; charset=utf-8", resp.Headers["Content-Type"])
	assert.Equal(t, "a, b", resp.Headers["X-Multi"])

	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "/base", captured.Path)
	assert.Equal(t, "1", captured.Query.Get("keep"))
	assert.Equal(t, "go lang", captured.Query.Get("q"))
	assert.Equal(t, "text/html", captured.Header.Get("Accept"))
	assert.Empty(t, captured.Body)
}

func TestExecutor_Execute_Bodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		body            any
		headers         map[string]string
		wantBody        string
		wantContentType string
	}{
		{
			name:            "structured with json content type",
			body:            map[string]any{"title": "foo", "userId": float64(1)},
			headers:         map[string]string{"content-type": "application/json; charset=utf-8"},
			wantBody:        `{"title":"foo","userId":1}`,
			wantContentType: "application/json; charset=utf-8",
		},
		{
			name:            "string sent as is",
			body:            `{"userId": 1, "title": "foo", "body": "bar"}`,
			headers:         map[string]string{"Content-Type": "application/json"},
			wantBody:        `{"userId": 1, "title": "foo", "body": "bar"}`,
			wantContentType: "application/json",
		},
		{
			name:     "bytes sent as is",
			body:     []byte("raw bytes"),
			wantBody: "raw bytes",
		},
		{
			name:            "flat map without content type is a form",
			body:            map[string]any{"a": "1", "b": true},
			wantBody:        "a=1&b=true",
			wantContentType: "application/x-www-form-urlencoded",
		},
		{
			name:            "nested structure without content type is json",
			body:            []any{"x", float64(2)},
			wantBody:        `["x",2]`,
			wantContentType: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, captured := newCaptureServer(t, http.StatusCreated, "application/json", `{"id":101}`)
			resp, err := NewExecutor().Execute(context.Background(), ExecuteRequest{
				Method:  http.MethodPost,
				URL:     srv.URL,
				Body:    tt.body,
				Headers: tt.headers,
			})
			require.NoError(t, err)
			assert.Equal(t, http.StatusCreated, resp.StatusCode)
			assert.Equal(t, tt.wantBody, captured.Body)
			assert.Equal(t, tt.wantContentType, captured.Header.Get("Content-Type"))
		})
	}
}

func TestExecutor_Execute_InvalidTarget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})
	exec := NewExecutor(WithHTTPClient(doer))

	for _, target := range []string{"", "www.google.com", "ftp://files.test", "https://"} {
		_, err := exec.Execute(context.Background(), ExecuteRequest{Method: "GET", URL: target})
		assert.ErrorIs(t, err, ErrInvalidTarget, target)
		assert.Equal(t, KindInvalidTarget, KindOf(err), target)
	}
	assert.Zero(t, calls.Load())
}

func TestExecutor_Execute_UnencodableBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})
	exec := NewExecutor(WithHTTPClient(doer))

	_, err := exec.Execute(context.Background(), ExecuteRequest{
		Method: "POST",
		URL:    "https://upstream.test",
		Body:   map[string]any{"ch": make(chan int)},
	})
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Zero(t, calls.Load())
}

func TestExecutor_Execute_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv, _ := newCaptureServer(t, http.StatusNotFound, "text/plain", "missing")

	_, err := NewExecutor().Execute(context.Background(), ExecuteRequest{Method: "GET", URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRequestFailed)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
	var se *util.ServerError
	assert.ErrorAs(t, err, &se)

	resp, err := NewExecutor(WithFailOnErrorStatus(false)).Execute(context.Background(), ExecuteRequest{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "missing", string(resp.RawBody))
}

func TestExecutor_Execute_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	_, err := NewExecutor().Execute(context.Background(), ExecuteRequest{Method: "GET", URL: target})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamRequestFailed)
	assert.NotErrorIs(t, err, util.ErrTimeout)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.StatusCode)
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	exec := NewExecutor(WithTimeout(50 * time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, exec.Timeout())

	start := time.Now()
	_, err := exec.Execute(context.Background(), ExecuteRequest{Method: "GET", URL: srv.URL})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, ErrUpstreamRequestFailed)
	assert.ErrorIs(t, err, util.ErrTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, StatusCode(err))
}

func TestExecutor_Execute_Metrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("exec_test")
	okSrv, _ := newCaptureServer(t, http.StatusOK, "text/plain", "ok")
	badSrv, _ := newCaptureServer(t, http.StatusInternalServerError, "text/plain", "bad")

	exec := NewExecutor(WithExecutorMetrics(metrics), WithExecutorLogger(observability.NopLogger()))
	_, err := exec.Execute(context.Background(), ExecuteRequest{Method: "GET", URL: okSrv.URL, Route: "/ok"})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), ExecuteRequest{Method: "GET", URL: badSrv.URL, Route: "/bad"})
	require.Error(t, err)

	expected := `
# HELP exec_test_upstream_requests_total Outbound requests to upstream targets
# TYPE exec_test_upstream_requests_total counter
exec_test_upstream_requests_total{outcome="failure",route="/bad"} 1
exec_test_upstream_requests_total{outcome="success",route="/ok"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "exec_test_upstream_requests_total"))
}

func TestExecutor_InjectsTraceContext(t *testing.T) {
	// Not parallel: NewTracer installs the global propagator.
	tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: "exec", Enabled: true, SamplingRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	srv, captured := newCaptureServer(t, http.StatusOK, "text/plain", "ok")
	ctx, span := tracer.StartSpan(context.Background(), "test")
	defer span.End()

	_, err = NewExecutor().Execute(ctx, ExecuteRequest{Method: "GET", URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, captured.Header.Get("Traceparent"), span.SpanContext().TraceID().String())
}

func TestBuildTargetURL(t *testing.T) {
	t.Parallel()

	got, err := buildTargetURL("https://jsonplaceholder.typicode.com/posts", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts", got)

	got, err = buildTargetURL("https://jsonplaceholder.typicode.com/posts", map[string]string{"userId": "1"})
	require.NoError(t, err)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts?userId=1", got)
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }
