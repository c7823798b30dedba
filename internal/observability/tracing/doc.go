// Package tracing provides OpenTelemetry tracing helpers.
//
// Spans are created from the global tracer provider, so a process that never
// installs a provider pays only for no-op spans. Tests install an SDK provider
// with an in-memory exporter:
//
//	exporter := tracetest.NewInMemoryExporter()
//	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
//
// Middleware traces the worker's health and metrics endpoints.
package tracing
