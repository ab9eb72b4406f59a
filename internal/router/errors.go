package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Dermot10/reverse-proxy/internal/util"
)

// ErrUnknownRoute is returned when a path has no configured target.
var ErrUnknownRoute = errors.New("unknown route")

// UnknownRouteError carries the rejected path and the paths that would
// have matched.
type UnknownRouteError struct {
	Path      string
	Available []string
}

// Error implements the error interface.
func (e *UnknownRouteError) Error() string {
	return fmt.Sprintf("unknown route %q, available routes: [%s]", e.Path, strings.Join(e.Available, ", "))
}

// Is checks if the error matches the target.
func (e *UnknownRouteError) Is(target error) bool {
	if target == ErrUnknownRoute || target == util.ErrNotFound {
		return true
	}
	_, ok := target.(*UnknownRouteError)
	return ok
}
