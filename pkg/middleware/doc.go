// Package middleware provides net/http middleware for the domcore server.
//
// This package includes:
//   - OpenTelemetry request tracing
//   - Prometheus request metrics backed by pkg/metrics
//
// # OpenTelemetry Middleware
//
// Every request gets a server span named after its chi route pattern, so
// /managers/7/snapshot and /managers/9/snapshot share the span name
// "GET /managers/{id}/snapshot". The span is stored in the request context,
// so handlers and the dom package inherit it:
//
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("domcore-server"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// The tracer comes from the global OpenTelemetry provider unless
// WithTracerProvider is given.
//
// # Prometheus Metrics
//
// Metrics records http_requests_total and http_request_duration_seconds by
// route pattern, method and status:
//
//	r.Use(middleware.Metrics(mtr))
package middleware
