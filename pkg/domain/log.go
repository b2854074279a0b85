package domain

import "time"

// LogRecord is an immutable snapshot of one OTLP log record plus its owning
// resource. TraceID and SpanID are empty when the record is not correlated
// to a trace.
type LogRecord struct {
	Timestamp         time.Time                 `json:"timestamp"`
	ObservedTimestamp time.Time                 `json:"observedTimestamp"`
	SeverityNumber    int                       `json:"severityNumber"`
	SeverityText      string                    `json:"severityText,omitempty"`
	Body              AttributeValue            `json:"body"`
	Attributes        map[string]AttributeValue `json:"attributes,omitempty"`
	TraceID           string                    `json:"traceId,omitempty"`
	SpanID            string                    `json:"spanId,omitempty"`
	Resource          Resource                  `json:"resource"`
}

// ServiceName is the owning resource's service name.
func (l LogRecord) ServiceName() string { return l.Resource.ServiceName() }
