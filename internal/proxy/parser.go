package proxy

import (
	"context"
	"encoding/json"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/Dermot10/reverse-proxy/internal/observability"
)

// ParsedResponse is the upstream answer classified by content type.
// Content holds Structured for decoded JSON and Text otherwise.
type ParsedResponse struct {
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers"`
	ContentType  string            `json:"content_type"`
	Text         string            `json:"text"`
	Structured   any               `json:"json"`
	IsStructured bool              `json:"-"`
	Content      any               `json:"content"`
}

// Clone returns a copy that shares no maps with p. Structured values are
// shared; they are treated as read-only.
func (p *ParsedResponse) Clone() *ParsedResponse {
	if p == nil {
		return nil
	}
	c := *p
	if p.Headers != nil {
		c.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// IsJSONContentType reports whether contentType names JSON.
func IsJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// IsTextualContentType reports whether contentType mentions text or html.
func IsTextualContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text") || strings.Contains(ct, "html")
}

// Parser turns TargetResponses into ParsedResponses.
type Parser struct {
	logger  observability.Logger
	metrics *observability.Metrics
}

// ParserOption is a functional option for configuring the parser.
type ParserOption func(*Parser)

// WithParserLogger sets the logger for the parser.
func WithParserLogger(logger observability.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithParserMetrics sets the metrics sink for parse fallbacks.
func WithParserMetrics(metrics *observability.Metrics) ParserOption {
	return func(p *Parser) {
		p.metrics = metrics
	}
}

// NewParser creates a parser.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses resp with a parser that does not log.
func Parse(resp *TargetResponse) *ParsedResponse {
	return NewParser().Parse(context.Background(), resp)
}

// Parse classifies resp. It never fails: undecodable JSON is kept as text.
func (p *Parser) Parse(ctx context.Context, resp *TargetResponse) *ParsedResponse {
	if resp == nil {
		return &ParsedResponse{Content: ""}
	}

	contentType := lookupHeader(resp.Headers, "Content-Type")
	text := decodeText(resp.RawBody, contentType)

	parsed := &ParsedResponse{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		ContentType: contentType,
		Text:        text,
		Content:     text,
	}

	if !IsJSONContentType(contentType) {
		return parsed
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		p.metrics.RecordParseFallback()
		p.logger.WithContext(ctx).Warn("failed to decode JSON response, using text",
			observability.String("content_type", contentType),
			observability.Error(err),
		)
		return parsed
	}

	parsed.Structured = decoded
	parsed.IsStructured = true
	parsed.Content = decoded
	return parsed
}

// decodeText converts body to UTF-8 using the declared charset. Bodies with
// no charset, or one that is unknown, are used as-is.
func decodeText(body []byte, contentType string) string {
	if contentType == "" {
		return string(body)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
