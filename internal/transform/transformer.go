package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
)

// Outcome describes what a transformation did.
type Outcome string

// Transformation outcomes.
const (
	// OutcomeApplied means the options were applied. The text may still be
	// unchanged when nothing matched.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the response was not eligible for rewriting.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means rewriting failed and the input must be kept.
	OutcomeFailed Outcome = "failed"
)

// Transformer applies Options to parsed responses.
type Transformer struct {
	logger       observability.Logger
	metrics      *observability.Metrics
	rewriteTitle func(text, title string) (string, error)
}

// Option is a functional option for configuring the transformer.
type Option func(*Transformer)

// WithLogger sets the logger for the transformer.
func WithLogger(logger observability.Logger) Option {
	return func(t *Transformer) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics sink for transformation outcomes.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(t *Transformer) {
		t.metrics = metrics
	}
}

// New creates a transformer.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		logger:       observability.NopLogger(),
		rewriteTitle: replaceTitle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform returns parsed with opts applied. The input is never modified:
// on success a copy is returned whose Content equals its Text, otherwise
// parsed itself is returned.
func (t *Transformer) Transform(ctx context.Context, parsed *proxy.ParsedResponse, opts *Options) *proxy.ParsedResponse {
	if parsed == nil {
		return nil
	}

	logger := t.logger.WithContext(ctx)
	if opts.IsEmpty() {
		return parsed
	}
	if !proxy.IsTextualContentType(parsed.ContentType) {
		logger.Debug("skipping transformation of non-textual response",
			observability.String("content_type", parsed.ContentType),
		)
		t.metrics.RecordTransformOutcome(string(OutcomeSkipped))
		return parsed
	}

	text, outcome, err := t.Apply(parsed.Text, opts)
	t.metrics.RecordTransformOutcome(string(outcome))

	switch outcome {
	case OutcomeApplied:
		out := parsed.Clone()
		out.Text = text
		out.Content = text
		out.Structured = nil
		out.IsStructured = false
		return out
	case OutcomeFailed:
		logger.Warn("transformation failed, returning original response",
			observability.String("content_type", parsed.ContentType),
			observability.Error(err),
		)
	}
	return parsed
}

// Apply rewrites text. The returned text is only meaningful when the
// outcome is OutcomeApplied.
func (t *Transformer) Apply(text string, opts *Options) (result string, outcome Outcome, err error) {
	if opts.IsEmpty() || text == "" {
		return text, OutcomeSkipped, nil
	}

	defer func() {
		if r := recover(); r != nil {
			result, outcome, err = text, OutcomeFailed, fmt.Errorf("transformation panicked: %v", r)
		}
	}()

	out := text
	if opts.PageTitle != "" {
		out, err = t.rewriteTitle(out, opts.PageTitle)
		if err != nil {
			return text, OutcomeFailed, err
		}
	}

	for _, rep := range opts.TextReplacements {
		if rep.Old == "" {
			continue
		}
		out = strings.ReplaceAll(out, rep.Old, rep.New)
	}

	return out, OutcomeApplied, nil
}

// replaceTitle sets the text of the first <title> element. Only the bytes
// between <title> and </title> change. Documents that do not look like
// markup, that cannot be tokenized, or that have no title are returned
// unchanged.
func replaceTitle(text, title string) (string, error) {
	if !strings.Contains(text, "<") {
		return text, nil
	}

	start, end, found, err := titleSpan(text)
	if err != nil || !found {
		return text, nil //nolint:nilerr // unparsable markup skips the title rewrite
	}
	return text[:start] + html.EscapeString(title) + text[end:], nil
}

// titleSpan returns the byte range of the first <title> element's content.
// An unterminated title runs to the end of the document.
func titleSpan(text string) (start, end int, found bool, err error) {
	z := html.NewTokenizer(strings.NewReader(text))
	offset := 0
	inTitle := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				if inTitle {
					return start, len(text), true, nil
				}
				return 0, 0, false, nil
			}
			return 0, 0, false, fmt.Errorf("tokenize document: %w", z.Err())
		}

		size := len(z.Raw())
		switch tt {
		case html.StartTagToken:
			if !inTitle && tagName(z) == "title" {
				inTitle = true
				start = offset + size
			}
		case html.EndTagToken:
			if inTitle && tagName(z) == "title" {
				return start, offset, true, nil
			}
		}
		offset += size
	}
}

func tagName(z *html.Tokenizer) string {
	name, _ := z.TagName()
	return string(name)
}

var defaultTransformer = New()

// Transform applies opts to parsed using a transformer that does not log.
func Transform(ctx context.Context, parsed *proxy.ParsedResponse, opts *Options) *proxy.ParsedResponse {
	return defaultTransformer.Transform(ctx, parsed, opts)
}
