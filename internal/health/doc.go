// Package health provides health, readiness and liveness endpoints for the
// proxy's metrics server.
//
// Create a checker and register readiness checks:
//
//	checker := health.NewChecker(version)
//	checker.RegisterCheck("routes", health.RouteTableCheck(table.Len))
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/health", checker.HealthHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
//	mux.HandleFunc("/live", checker.LivenessHandler())
package health
