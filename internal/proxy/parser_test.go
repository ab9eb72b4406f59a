package proxy

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Dermot10/reverse-proxy/internal/observability"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		headers        map[string]string
		body           string
		wantStructured bool
		wantContent    any
	}{
		{
			name:           "json object",
			headers:        map[string]string{"Content-Type": "application/json; charset=utf-8"},
			body:           `{"id": 101, "title": "foo"}`,
			wantStructured: true,
			wantContent:    map[string]any{"id": float64(101), "title": "foo"},
		},
		{
			name:           "json array with lowercase header",
			headers:        map[string]string{"content-type": "application/json"},
			body:           `[1, 2]`,
			wantStructured: true,
			wantContent:    []any{float64(1), float64(2)},
		},
		{
			name:        "invalid json falls back to text",
			headers:     map[string]string{"Content-Type": "application/json"},
			body:        `{"id": `,
			wantContent: `{"id": `,
		},
		{
			name:        "empty json body falls back to text",
			headers:     map[string]string{"Content-Type": "application/json"},
			body:        "",
			wantContent: "",
		},
		{
			name:        "html",
			headers:     map[string]string{"Content-Type": "text/html"},
			body:        "<html></html>",
			wantContent: "<html></html>",
		},
		{
			name:        "binary kept as text",
			headers:     map[string]string{"Content-Type": "application/octet-stream"},
			body:        "\x01\x02",
			wantContent: "\x01\x02",
		},
		{
			name:        "no content type",
			body:        `{"looks":"like json"}`,
			wantContent: `{"looks":"like json"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parsed := Parse(&TargetResponse{StatusCode: 200, Headers: tt.headers, RawBody: []byte(tt.body)})

			assert.Equal(t, 200, parsed.StatusCode)
			assert.Equal(t, tt.body, parsed.Text)
			assert.Equal(t, tt.wantStructured, parsed.IsStructured)
			assert.Equal(t, tt.wantContent, parsed.Content)
			if tt.wantStructured {
				assert.Equal(t, parsed.Structured, parsed.Content)
			} else {
				assert.Nil(t, parsed.Structured)
				assert.Equal(t, parsed.Text, parsed.Content)
			}
		})
	}
}

func TestParse_JSONNull(t *testing.T) {
	t.Parallel()

	parsed := Parse(&TargetResponse{Headers: map[string]string{"Content-Type": "application/json"}, RawBody: []byte("null")})
	assert.True(t, parsed.IsStructured)
	assert.Nil(t, parsed.Content)
}

func TestParse_Charset(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	latin1 := []byte{'c', 'a', 'f', 0xe9}
	parsed := Parse(&TargetResponse{
		Headers: map[string]string{"Content-Type": "text/plain; charset=ISO-8859-1"},
		RawBody: latin1,
	})
	assert.Equal(t, "café", parsed.Text)
	assert.Equal(t, "text/plain; charset=ISO-8859-1", parsed.ContentType)

	unknown := Parse(&TargetResponse{
		Headers: map[string]string{"Content-Type": "text/plain; charset=made-up"},
		RawBody: []byte("plain"),
	})
	assert.Equal(t, "plain", unknown.Text)
}

func TestParse_Nil(t *testing.T) {
	t.Parallel()

	parsed := Parse(nil)
	require.NotNil(t, parsed)
	assert.Equal(t, "", parsed.Content)
}

func TestParser_FallbackLogsAndCounts(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	metrics := observability.NewMetrics("parse_test")
	p := NewParser(
		WithParserLogger(observability.FromZap(zap.New(core))),
		WithParserMetrics(metrics),
	)

	p.Parse(context.Background(), &TargetResponse{
		Headers: map[string]string{"Content-Type": "application/json"},
		RawBody: []byte("<html>not json</html>"),
	})

	assert.Equal(t, 1, logs.FilterMessage("failed to decode JSON response, using text").Len())
	expected := `
# HELP parse_test_parse_fallbacks_total JSON responses that failed to decode and were kept as text
# TYPE parse_test_parse_fallbacks_total counter
parse_test_parse_fallbacks_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "parse_test_parse_fallbacks_total"))
}

func TestParsedResponse_Clone(t *testing.T) {
	t.Parallel()

	original := &ParsedResponse{Headers: map[string]string{"A": "1"}, Text: "x", Content: "x"}
	clone := original.Clone()
	clone.Headers["A"] = "2"
	clone.Text = "y"

	assert.Equal(t, "1", original.Headers["A"])
	assert.Equal(t, "x", original.Text)

	var nilResp *ParsedResponse
	assert.Nil(t, nilResp.Clone())
}

func TestContentTypeHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsJSONContentType("Application/JSON; charset=utf-8"))
	assert.False(t, IsJSONContentType("application/vnd.api+json"))
	assert.True(t, IsTextualContentType("text/plain"))
	assert.True(t, IsTextualContentType("application/xhtml+xml"))
	assert.False(t, IsTextualContentType("application/json"))
	assert.False(t, IsTextualContentType(""))
}
