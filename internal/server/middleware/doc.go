// Package middleware provides the gin middleware used by the proxy
// front-end: panic recovery, request IDs, access logging, metrics, tracing
// and request body limits.
package middleware
