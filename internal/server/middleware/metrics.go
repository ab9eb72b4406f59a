package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dermot10/reverse-proxy/internal/observability"
)

// RouteKey is the gin context key handlers use to report the matched
// proxy route for metrics labels.
const RouteKey = "proxyRoute"

// Metrics returns a middleware that records request counts, durations and
// in-flight requests.
func Metrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		metrics.IncActiveRequests()
		start := time.Now()
		defer metrics.DecActiveRequests()

		c.Next()

		metrics.RecordRequest(c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}

// routeLabel prefers the proxy route set by the handler, then the gin route
// pattern. Unmatched requests share one label.
func routeLabel(c *gin.Context) string {
	if route := c.GetString(RouteKey); route != "" {
		return route
	}
	if pattern := c.FullPath(); pattern != "" {
		return pattern
	}
	return observability.UnmatchedRoute
}
