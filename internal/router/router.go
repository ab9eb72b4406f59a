package router

import (
	"context"

	"github.com/Dermot10/reverse-proxy/internal/observability"
)

// Router resolves a validated request path to an upstream base URL.
type Router interface {
	Route(ctx context.Context, path string) (string, error)
}

// Func adapts an ordinary function to the Router interface.
type Func func(ctx context.Context, path string) (string, error)

// Route calls f(ctx, path).
func (f Func) Route(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// ExactRouter routes by exact path match against a RouteTable.
type ExactRouter struct {
	table  *RouteTable
	logger observability.Logger
}

// Option configures an ExactRouter.
type Option func(*ExactRouter)

// WithLogger sets the logger used for routing decisions.
func WithLogger(logger observability.Logger) Option {
	return func(r *ExactRouter) {
		r.logger = logger
	}
}

// NewExactRouter creates a router over table.
func NewExactRouter(table *RouteTable, opts ...Option) *ExactRouter {
	r := &ExactRouter{
		table:  table,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns the target configured for path, or an *UnknownRouteError.
func (r *ExactRouter) Route(ctx context.Context, path string) (string, error) {
	logger := r.logger.WithContext(ctx)

	target, ok := r.table.Lookup(path)
	if !ok {
		available := r.table.Paths()
		logger.Debug("no route for path",
			observability.String("path", path),
			observability.Strings("available", available),
		)
		return "", &UnknownRouteError{Path: path, Available: available}
	}

	logger.Debug("routed request",
		observability.String("path", path),
		observability.String("target", target),
	)
	return target, nil
}

// Table returns the route table backing the router.
func (r *ExactRouter) Table() *RouteTable {
	return r.table
}
