package domain

import "time"

// SpanKind mirrors the OTLP span kind enum.
type SpanKind int

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindInternal:
		return "INTERNAL"
	case SpanKindServer:
		return "SERVER"
	case SpanKindClient:
		return "CLIENT"
	case SpanKindProducer:
		return "PRODUCER"
	case SpanKindConsumer:
		return "CONSUMER"
	default:
		return "UNSPECIFIED"
	}
}

// ParseSpanKind converts a wire representation (numeric enum value or the
// SPAN_KIND_* name used by some OTLP/JSON producers) to a SpanKind.
func ParseSpanKind(s string) SpanKind {
	switch s {
	case "1", "SPAN_KIND_INTERNAL", "INTERNAL":
		return SpanKindInternal
	case "2", "SPAN_KIND_SERVER", "SERVER":
		return SpanKindServer
	case "3", "SPAN_KIND_CLIENT", "CLIENT":
		return SpanKindClient
	case "4", "SPAN_KIND_PRODUCER", "PRODUCER":
		return SpanKindProducer
	case "5", "SPAN_KIND_CONSUMER", "CONSUMER":
		return SpanKindConsumer
	default:
		return SpanKindUnspecified
	}
}

// StatusCode mirrors the OTLP span status enum.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// SpanStatus is the outcome recorded on a span.
type SpanStatus struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// SpanEvent is a timestamped annotation inside a span.
type SpanEvent struct {
	Name       string                    `json:"name"`
	Timestamp  time.Time                 `json:"timestamp"`
	Attributes map[string]AttributeValue `json:"attributes,omitempty"`
}

// SpanLink references another span, possibly in another trace.
type SpanLink struct {
	TraceID    string                    `json:"traceId"`
	SpanID     string                    `json:"spanId"`
	Attributes map[string]AttributeValue `json:"attributes,omitempty"`
}

// Span is an immutable snapshot of one OTLP span plus its owning resource.
// Trace and span ids are lower-case hex strings. ParentSpanID is empty for
// root spans. Created once at decode time and never mutated afterwards.
// Invariant: EndTime >= StartTime.
type Span struct {
	TraceID      string                    `json:"traceId"`
	SpanID       string                    `json:"spanId"`
	ParentSpanID string                    `json:"parentSpanId,omitempty"`
	Name         string                    `json:"name"`
	Kind         SpanKind                  `json:"kind"`
	StartTime    time.Time                 `json:"startTime"`
	EndTime      time.Time                 `json:"endTime"`
	Status       SpanStatus                `json:"status"`
	Attributes   map[string]AttributeValue `json:"attributes,omitempty"`
	Events       []SpanEvent               `json:"events,omitempty"`
	Links        []SpanLink                `json:"links,omitempty"`
	Resource     Resource                  `json:"resource"`
}

// Duration is derived, never stored.
func (s Span) Duration() time.Duration { return s.EndTime.Sub(s.StartTime) }

// IsRoot reports whether the span has no parent.
func (s Span) IsRoot() bool { return s.ParentSpanID == "" }

// HasError reports whether the span status is Error.
func (s Span) HasError() bool { return s.Status.Code == StatusError }

// ServiceName is the owning resource's service name.
func (s Span) ServiceName() string { return s.Resource.ServiceName() }
