// Package pipeline composes the proxy stages into a single request flow:
// validate, route, execute, parse and transform.
//
// A Pipeline is safe for concurrent use. Each invocation runs its stages
// sequentially and stops at the first error from validation, routing or
// execution. Parsing and transformation never fail.
package pipeline
