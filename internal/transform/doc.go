// Package transform rewrites textual upstream responses before they are
// returned to the caller.
//
// Two rewrites are supported, applied in order: replacing the text of the
// document's <title> element, and sequential literal text replacement over
// the serialised body. Transformation never fails the request; any problem
// yields the untouched input together with an OutcomeFailed result.
package transform
