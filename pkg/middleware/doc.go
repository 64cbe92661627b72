// Package middleware provides net/http middleware for the olta gateway.
//
// # Tracing
//
// Tracing starts a server span for every request using the global
// OpenTelemetry tracer provider:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Tracing(middleware.WithTracerName("olta/http")))
//
// Configure the provider in main() before starting the server. Without one
// the spans are no-ops.
//
// # Logging
//
// Logging records method, path, status and duration of each request once it
// completes. Websocket connections are logged when they close.
//
//	r.Use(middleware.Logging(logger))
package middleware
