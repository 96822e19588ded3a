// Package middleware provides router middleware for observability and
// resilience.
//
//   - Prometheus counts and times every event by name and outcome, and
//     exposes hooks the router and transport use for fan-out, persistence
//     failures and connection counts.
//   - OpenTelemetry starts a server span per event.
//   - Recover turns a handler panic into an error so the dispatch loop keeps
//     running.
//
// Recover should be listed first so it also guards the other middleware:
//
//	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))
//	r := router.New(store, registry,
//	    router.WithMiddleware(
//	        middleware.Recover(logger),
//	        metrics.Middleware(),
//	        middleware.OpenTelemetry(),
//	    ),
//	    router.WithHooks(metrics.Hooks()),
//	)
package middleware
