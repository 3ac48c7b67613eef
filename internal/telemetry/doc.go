// Package telemetry sets up OpenTelemetry tracing and metrics export for
// docingest.
//
// Telemetry is off by default. When enabled, spans and metrics are sent over
// OTLP (gRPC or HTTP) to the configured collector. Exporter failures leave
// the instance degraded rather than failing the run: Tracer and Meter then
// fall back to the global no-op providers.
//
// Tests use NewTestTelemetry, which records spans in memory.
package telemetry
