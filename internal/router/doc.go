// Package router resolves inbound paths to upstream base URLs.
//
// Routes live in an immutable RouteTable built once at start-up. Lookups
// are exact string matches: "/google" matches only "/google", never
// "/google/" or "/google/maps".
//
//	table, err := router.NewRouteTable([]router.Entry{
//	    {Path: "/google", Target: "https://www.google.com"},
//	})
//	r := router.NewExactRouter(table)
//	target, err := r.Route(ctx, "/google")
//
// A failed lookup returns an *UnknownRouteError listing every configured
// path, which also matches ErrUnknownRoute with errors.Is.
package router
