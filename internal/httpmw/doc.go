// Package httpmw provides HTTP middleware for the edge server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, request ID, panic recovery, OTEL tracing, metrics,
// structured logging, the edge pipeline, and the chi router.
//
// Each middleware is an independent function that can be tested,
// reordered, or removed individually. User-supplied data (query params,
// user-agent, headers) is intentionally excluded from logs to prevent
// PII leaks and log injection.
package httpmw
