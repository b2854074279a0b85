// Package domain defines the core business types for the collector.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library: attribute values, resources, spans, traces, logs, metrics,
// sessions, and schema promotion records. All types in this package are:
//
// - Independent of infrastructure (no database, HTTP, gRPC, etc.)
// - Plain data with derived accessors; no I/O and no locking
// - Testable in isolation without mocks
//
// Other packages (otlp, aggregate, storage, live, schema) consume these types
// and depend on them. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
