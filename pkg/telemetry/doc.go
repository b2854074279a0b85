// Package telemetry wires the collector's own observability: Prometheus
// metrics for the ingestion, aggregation, and streaming paths, plus the
// OpenTelemetry tracer provider the HTTP server exports through.
package telemetry
