package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Dermot10/reverse-proxy/internal/router"
	"github.com/Dermot10/reverse-proxy/internal/util"
)

// Sentinel errors for the pipeline failure kinds.
var (
	// ErrMalformedEvent indicates the event is not a key-value structure or
	// lacks a required field.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidMethod indicates an unsupported HTTP method.
	ErrInvalidMethod = errors.New("invalid method")

	// ErrMalformedHeaders indicates headers that are not a string mapping.
	ErrMalformedHeaders = errors.New("malformed headers")

	// ErrInvalidTarget indicates the routed target is not an absolute
	// http(s) URL.
	ErrInvalidTarget = errors.New("invalid target URL")

	// ErrUpstreamRequestFailed indicates a transport failure or an error
	// status from the upstream.
	ErrUpstreamRequestFailed = errors.New("upstream request failed")
)

// Kind is a stable, machine-readable failure classification.
type Kind string

// Failure kinds.
const (
	KindMalformedEvent        Kind = "malformed_event"
	KindInvalidMethod         Kind = "invalid_method"
	KindMalformedHeaders      Kind = "malformed_headers"
	KindUnknownRoute          Kind = "unknown_route"
	KindInvalidTarget         Kind = "invalid_target"
	KindUpstreamRequestFailed Kind = "upstream_request_failed"
	KindInternal              Kind = "internal"
)

// ValidationError reports an invalid event field.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case util.ErrInvalidInput:
		return true
	case ErrMalformedEvent:
		return e.Kind == KindMalformedEvent
	case ErrInvalidMethod:
		return e.Kind == KindInvalidMethod
	case ErrMalformedHeaders:
		return e.Kind == KindMalformedHeaders
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewMalformedEventError creates a MalformedEvent error for field.
func NewMalformedEventError(field, message string) *ValidationError {
	return &ValidationError{Kind: KindMalformedEvent, Field: field, Message: message}
}

func newInvalidMethodError(method string) *ValidationError {
	return &ValidationError{
		Kind:    KindInvalidMethod,
		Field:   "method",
		Message: fmt.Sprintf("unsupported HTTP method %q", method),
	}
}

func newMalformedHeadersError(message string) *ValidationError {
	return &ValidationError{Kind: KindMalformedHeaders, Field: "headers", Message: message}
}

// InvalidTargetError reports a target URL the executor refuses to call.
type InvalidTargetError struct {
	URL    string
	Reason error
}

// Error implements the error interface.
func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target URL %q: %v", e.URL, e.Reason)
}

// Unwrap returns the underlying reason.
func (e *InvalidTargetError) Unwrap() error {
	return e.Reason
}

// Is checks if the error matches the target.
func (e *InvalidTargetError) Is(target error) bool {
	if target == ErrInvalidTarget {
		return true
	}
	_, ok := target.(*InvalidTargetError)
	return ok
}

// UpstreamError reports a failed outbound request. StatusCode is zero for
// transport failures.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request %s %s failed: %v", e.Method, e.URL, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *UpstreamError) Is(target error) bool {
	if target == ErrUpstreamRequestFailed {
		return true
	}
	_, ok := target.(*UpstreamError)
	return ok
}

// KindOf classifies a pipeline error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedEvent):
		return KindMalformedEvent
	case errors.Is(err, ErrInvalidMethod):
		return KindInvalidMethod
	case errors.Is(err, ErrMalformedHeaders):
		return KindMalformedHeaders
	case errors.Is(err, router.ErrUnknownRoute):
		return KindUnknownRoute
	case errors.Is(err, ErrInvalidTarget):
		return KindInvalidTarget
	case errors.Is(err, ErrUpstreamRequestFailed):
		return KindUpstreamRequestFailed
	default:
		return KindInternal
	}
}

// StatusCode maps a pipeline error to the HTTP status returned to clients.
func StatusCode(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindMalformedEvent, KindMalformedHeaders:
		return http.StatusBadRequest
	case KindInvalidMethod:
		return http.StatusMethodNotAllowed
	case KindUnknownRoute:
		return http.StatusNotFound
	case KindInvalidTarget:
		return http.StatusBadGateway
	case KindUpstreamRequestFailed:
		if errors.Is(err, util.ErrTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindMalformedEvent, KindInvalidMethod, KindMalformedHeaders, KindUnknownRoute:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether repeating the same request could succeed:
// transport failures, timeouts and 5xx answers from the upstream.
func IsRetryable(err error) bool {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		return false
	}
	return upstream.StatusCode == 0 || upstream.StatusCode >= http.StatusInternalServerError
}
