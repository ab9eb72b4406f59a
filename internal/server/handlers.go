package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Dermot10/reverse-proxy/internal/observability"
	"github.com/Dermot10/reverse-proxy/internal/proxy"
	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/server/middleware"
	"github.com/Dermot10/reverse-proxy/internal/transform"
	"github.com/Dermot10/reverse-proxy/internal/util"
)

// Transform option headers accepted on /proxy requests. They are consumed
// by the proxy and never forwarded.
const (
	HeaderTransformPrefix    = "X-Transform-"
	HeaderTransformPageTitle = "X-Transform-Page-Title"
	HeaderTransformReplace   = "X-Transform-Replace"
)

const kindRequestTooLarge = "request_too_large"

// ErrorBody is the JSON body of every error answer.
type ErrorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Available []string `json:"available,omitempty"`
}

// Envelope is the serverless-style response returned by POST /invoke.
type Envelope struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"content_type"`
	Content     any               `json:"content"`
}

// NewEnvelope wraps a final response.
func NewEnvelope(resp *proxy.ParsedResponse) Envelope {
	return Envelope{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Headers,
		ContentType: resp.ContentType,
		Content:     resp.Content,
	}
}

func (s *Server) handleProxy(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	opts, err := optionsFromHeaders(c.Request.Header)
	if err != nil {
		s.writeError(c, err)
		return
	}

	desc := &proxy.Descriptor{
		Method:  c.Request.Method,
		Path:    "/" + strings.TrimPrefix(c.Param("path"), "/"),
		Params:  firstValues(c.Request.URL.Query()),
		Headers: forwardableHeaders(c.Request.Header),
	}
	if len(body) > 0 {
		desc.Body = body
	}

	resp, err := s.pipeline.Run(c.Request.Context(), desc, opts)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Set(middleware.RouteKey, desc.Path)

	for name, value := range resp.Headers {
		if !copyResponseHeader(name) {
			continue
		}
		c.Header(name, value)
	}

	if resp.IsStructured {
		data, err := json.Marshal(resp.Structured)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.Data(resp.StatusCode, resp.ContentType, data)
		return
	}
	c.Data(resp.StatusCode, utf8ContentType(resp.ContentType), []byte(resp.Text))
}

func (s *Server) handleInvoke(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp, err := s.pipeline.RunEventJSON(c.Request.Context(), data)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEnvelope(resp))
}

func (s *Server) handleRoutes(c *gin.Context) {
	var entries []router.Entry
	if s.routes != nil {
		entries = s.routes.Entries()
	}
	c.JSON(http.StatusOK, gin.H{"routes": entries})
}

func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorBody{
		Error:   "not_found",
		Message: "no handler for " + c.Request.Method + " " + c.Request.URL.Path,
	})
}

// NewErrorBody classifies err and returns the HTTP status and body used to
// report it.
func NewErrorBody(err error) (int, ErrorBody) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, ErrorBody{
			Error:   kindRequestTooLarge,
			Message: err.Error(),
		}
	}

	body := ErrorBody{
		Error:   string(proxy.KindOf(err)),
		Message: err.Error(),
	}
	var unknown *router.UnknownRouteError
	if errors.As(err, &unknown) {
		body.Available = unknown.Available
	}
	return proxy.StatusCode(err), body
}

// writeError answers with the status and kind that classify err.
func (s *Server) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	status, body := NewErrorBody(err)
	if status == http.StatusInternalServerError {
		s.logger.WithContext(c.Request.Context()).Error("unexpected error handling request",
			observability.Error(err),
		)
	}
	c.JSON(status, body)
}

// optionsFromHeaders reads transform options from X-Transform-* headers.
// Replacement headers have the form "old=new" and apply in order.
func optionsFromHeaders(h http.Header) (*transform.Options, error) {
	opts := &transform.Options{PageTitle: h.Get(HeaderTransformPageTitle)}
	for _, v := range h.Values(HeaderTransformReplace) {
		old, repl, ok := strings.Cut(v, "=")
		if !ok || old == "" {
			return nil, proxy.NewMalformedEventError(HeaderTransformReplace, `expected "old=new", got "`+v+`"`)
		}
		opts.TextReplacements = append(opts.TextReplacements, transform.Replacement{Old: old, New: repl})
	}
	if opts.IsEmpty() {
		return nil, nil
	}
	return opts, nil
}

func forwardableHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 || strings.HasPrefix(name, HeaderTransformPrefix) {
			continue
		}
		out[name] = values[0]
	}
	return out
}

func firstValues(values map[string][]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// copyResponseHeader reports whether an upstream response header is passed
// back to the caller. Framing headers are recomputed for the rewritten body.
func copyResponseHeader(name string) bool {
	if util.IsHopByHopHeader(name) {
		return false
	}
	switch http.CanonicalHeaderKey(name) {
	case "Content-Length", "Content-Encoding", "Content-Type", "X-Request-Id":
		return false
	}
	return true
}

// utf8ContentType rewrites a declared charset to utf-8, since response text
// has already been decoded.
func utf8ContentType(contentType string) string {
	if contentType == "" {
		return "text/plain; charset=utf-8"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	if _, ok := params["charset"]; !ok {
		return contentType
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}
