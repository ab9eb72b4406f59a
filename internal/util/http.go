package util

import (
	"fmt"
	"net/http"
	"strings"
)

// ServerError reports that an upstream answered with an error status code.
type ServerError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("server error: status %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// Is checks if the error matches the target.
func (e *ServerError) Is(target error) bool {
	if target == ErrUpstreamUnavail {
		return e.StatusCode >= http.StatusInternalServerError
	}
	_, ok := target.(*ServerError)
	return ok
}

// NewServerError creates a new ServerError with the given status code.
func NewServerError(statusCode int) *ServerError {
	return &ServerError{StatusCode: statusCode}
}

// IsErrorStatus reports whether the status code is a 4xx or 5xx.
func IsErrorStatus(statusCode int) bool {
	return statusCode >= http.StatusBadRequest && statusCode < 600
}

// hopByHopHeaders are connection-scoped and never forwarded (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HopByHopHeaders returns a copy of the hop-by-hop header names.
func HopByHopHeaders() []string {
	out := make([]string, len(hopByHopHeaders))
	copy(out, hopByHopHeaders)
	return out
}

// IsHopByHopHeader reports whether name is a hop-by-hop header.
func IsHopByHopHeader(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
