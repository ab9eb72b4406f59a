// Package util provides shared helpers for the reverse proxy.
//
// # Context Helpers
//
// Request-scoped values carried through the pipeline:
//
//	ctx = util.ContextWithRequestID(ctx, "req-123")
//	requestID := util.RequestIDFromContext(ctx)
//
// # Error Types
//
//   - ConfigError: configuration validation errors
//   - ServerError: upstream responses with an error status code
//   - TimeoutError: operations that ran past their deadline
//   - Common sentinel errors: ErrNotFound, ErrTimeout, etc.
//
// # Validation
//
//	err := util.ValidateURL("https://example.com")
//	err := util.ValidateHeaderName("X-Custom-Header")
package util
