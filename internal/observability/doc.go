// Package observability groups the worker's logging, metrics and tracing.
//
// Subpackages:
//   - logging: slog construction and context propagation (feed id, run id)
//   - metrics: Prometheus metrics for fetches, runs, status changes and retention
//   - tracing: OpenTelemetry spans around pipeline stages and the health server
package observability
