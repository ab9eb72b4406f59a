// Package proxy implements the request-handling stages of the reverse
// proxy: event validation, outbound execution, and response parsing.
//
// # Validation
//
// ValidateEvent turns an untyped event into a Descriptor with an
// upper-cased, supported method:
//
//	desc, err := proxy.ValidateEvent(map[string]any{
//	    "method": "get",
//	    "path":   "/google",
//	})
//
// # Execution
//
// An Executor sends exactly one request to an upstream target through an
// HTTPDoer, with a fixed timeout and no retries:
//
//	exec := proxy.NewExecutor(proxy.WithTimeout(30 * time.Second))
//	resp, err := exec.Execute(ctx, proxy.ExecuteRequest{
//	    Method: desc.Method,
//	    URL:    target,
//	})
//
// # Parsing
//
// Parse classifies the body by content type and never fails. JSON that
// cannot be decoded falls back to text.
//
// # Errors
//
// Every failure matches one sentinel with errors.Is: ErrMalformedEvent,
// ErrInvalidMethod, ErrMalformedHeaders, ErrInvalidTarget or
// ErrUpstreamRequestFailed. Routing failures come from the router package.
// KindOf and StatusCode map any pipeline error to a stable kind and an
// HTTP status.
package proxy
