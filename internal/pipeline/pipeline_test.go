package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/transform"
)

type countingDoer struct {
	calls atomic.Int32
	next  proxy.HTTPDoer
}

func (d *countingDoer) Do(r *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	if d.next == nil {
		return nil, errors.New("no upstream")
	}
	return d.next.Do(r)
}

// upstreams stands in for the default route targets.
func upstreams(t *testing.T) (*router.RouteTable, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/google", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = io.WriteString(w, "<html><head><title>Google</title></head><body>Search the World</body></html>")
	})
	mux.HandleFunc("/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = io.WriteString(w, `[]`)
			return
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		in["id"] = 101
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(in)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	table := router.MustRouteTable([]router.Entry{
		{Path: "/google", Target: srv.URL + "/google"},
		{Path: "/jsonplaceholder", Target: srv.URL + "/posts"},
	})
	return table, srv
}

func TestPipeline_ScenarioA_GetHTML(t *testing.T) {
	t.Parallel()

	table, _ := upstreams(t)
	p := New(router.NewExactRouter(table))

	resp, err := p.Run(context.Background(), &proxy.Descriptor{Method: "get", Path: "/google"}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, resp.IsStructured)
	assert.Contains(t, resp.Text, "<title>Google</title>")
	assert.Equal(t, resp.Text, resp.Content)
}

func TestPipeline_ScenarioB_PostJSON(t *testing.T) {
	t.Parallel()

	table, _ := upstreams(t)
	p := New(router.NewExactRouter(table))

	resp, err := p.RunEvent(context.Background(), map[string]any{
		"method":  "POST",
		"path":    "/jsonplaceholder",
		"data":    map[string]any{"title": "foo", "body": "bar", "userId": float64(1)},
		"headers": map[string]any{"Content-Type": "application/json"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, resp.IsStructured)
	body, ok := resp.Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "foo", body["title"])
	assert.Equal(t, float64(101), body["id"])
	assert.Equal(t, resp.Structured, resp.Content)
}

func TestPipeline_ScenarioC_UnknownRoute(t *testing.T) {
	t.Parallel()

	table, _ := upstreams(t)
	doer := &countingDoer{}
	p := New(router.NewExactRouter(table), WithExecutor(proxy.NewExecutor(proxy.WithHTTPClient(doer))))

	_, err := p.Run(context.Background(), &proxy.Descriptor{Method: "GET", Path: "/unknown"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, router.ErrUnknownRoute)
	assert.Equal(t, proxy.KindUnknownRoute, proxy.KindOf(err))

	var unknown *router.UnknownRouteError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"/google", "/jsonplaceholder"}, unknown.Available)
	assert.Zero(t, doer.calls.Load())
}

func TestPipeline_ScenarioD_Transform(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><head><title>Old</title></head><body>Hi World</body></html>")
	}))
	t.Cleanup(srv.Close)

	p := New(router.Func(func(context.Context, string) (string, error) { return srv.URL, nil }))

	resp, err := p.Run(context.Background(), &proxy.Descriptor{Method: "GET", Path: "/page"}, &transform.Options{
		PageTitle:        "New",
		TextReplacements: transform.Replacements{{Old: "World", New: "Universe"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<html><head><title>New</title></head><body>Hi Universe</body></html>", resp.Content)
}

func TestPipeline_RunEventJSON_KeepsReplacementOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "a")
	}))
	t.Cleanup(srv.Close)

	p := New(router.Func(func(context.Context, string) (string, error) { return srv.URL, nil }))

	// In sorted key order "a" would become "c" and then "z".
	resp, err := p.RunEventJSON(context.Background(), []byte(`{
		"httpMethod": "GET",
		"url": "/x",
		"transform": {"text_replacements": {"c": "z", "a": "c"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "c", resp.Content)
}

func TestPipeline_ValidationFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		event    any
		wantKind proxy.Kind
	}{
		{name: "not a mapping", event: "GET /google", wantKind: proxy.KindMalformedEvent},
		{name: "missing method", event: map[string]any{"path": "/google"}, wantKind: proxy.KindMalformedEvent},
		{name: "missing path", event: map[string]any{"method": "GET"}, wantKind: proxy.KindMalformedEvent},
		{name: "unsupported method", event: map[string]any{"method": "TRACE", "path": "/google"}, wantKind: proxy.KindInvalidMethod},
		{
			name:     "headers not a mapping",
			event:    map[string]any{"method": "GET", "path": "/google", "headers": []any{"a"}},
			wantKind: proxy.KindMalformedHeaders,
		},
		{
			name:     "body that cannot be encoded",
			event:    map[string]any{"method": "POST", "path": "/google", "data": map[string]any{"fn": func() {}}},
			wantKind: proxy.KindMalformedEvent,
		},
		{
			name:     "malformed transform",
			event:    map[string]any{"method": "GET", "path": "/google", "transform": "yes"},
			wantKind: proxy.KindMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doer := &countingDoer{}
			routed := atomic.Bool{}
			p := New(
				router.Func(func(context.Context, string) (string, error) {
					routed.Store(true)
					return "http://upstream.invalid", nil
				}),
				WithExecutor(proxy.NewExecutor(proxy.WithHTTPClient(doer))),
			)

			_, err := p.RunEvent(context.Background(), tt.event)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, proxy.KindOf(err))
			assert.False(t, routed.Load())
			assert.Zero(t, doer.calls.Load())
		})
	}
}

func TestPipeline_Run_UnencodableBodyFailsBeforeRouting(t *testing.T) {
	t.Parallel()

	doer := &countingDoer{}
	routed := atomic.Bool{}
	p := New(
		router.Func(func(context.Context, string) (string, error) {
			routed.Store(true)
			return "http://upstream.invalid", nil
		}),
		WithExecutor(proxy.NewExecutor(proxy.WithHTTPClient(doer))),
	)

	_, err := p.Run(context.Background(), &proxy.Descriptor{
		Method: "POST",
		Path:   "/google",
		Body:   map[string]any{"ch": make(chan int)},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, proxy.KindMalformedEvent, proxy.KindOf(err))
	assert.False(t, routed.Load())
	assert.Zero(t, doer.calls.Load())
}

func TestPipeline_RunEventJSON_InvalidJSON(t *testing.T) {
	t.Parallel()

	p := New(router.Func(func(context.Context, string) (string, error) {
		t.Fatal("router must not be called")
		return "", nil
	}))

	_, err := p.RunEventJSON(context.Background(), []byte(`{"method":`))
	assert.ErrorIs(t, err, proxy.ErrMalformedEvent)

	_, err = p.RunEventJSON(context.Background(), []byte(`{"method":"GET","path":"/x","transform":{"page_title":1}}`))
	assert.ErrorIs(t, err, proxy.ErrMalformedEvent)
}

func TestPipeline_UpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	metrics := observability.NewMetrics("pipeline_test")
	p := New(
		router.Func(func(context.Context, string) (string, error) { return srv.URL, nil }),
		WithMetrics(metrics),
		WithLogger(observability.NopLogger()),
	)

	_, err := p.Run(context.Background(), &proxy.Descriptor{Method: "GET", Path: "/down"}, nil)
	require.Error(t, err)
	assert.Equal(t, proxy.KindUpstreamRequestFailed, proxy.KindOf(err))
	assert.Equal(t, http.StatusBadGateway, proxy.StatusCode(err))

	expected := `
# HELP pipeline_test_pipeline_errors_total Pipeline invocations that ended in an error, by stage and kind
# TYPE pipeline_test_pipeline_errors_total counter
pipeline_test_pipeline_errors_total{kind="upstream_request_failed",stage="execute"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "pipeline_test_pipeline_errors_total"))
}

func TestPipeline_InvalidTarget(t *testing.T) {
	t.Parallel()

	doer := &countingDoer{}
	p := New(
		router.Func(func(context.Context, string) (string, error) { return "not-a-url", nil }),
		WithExecutor(proxy.NewExecutor(proxy.WithHTTPClient(doer))),
	)

	_, err := p.Run(context.Background(), &proxy.Descriptor{Method: "GET", Path: "/bad"}, nil)
	assert.ErrorIs(t, err, proxy.ErrInvalidTarget)
	assert.Zero(t, doer.calls.Load())
}
