package domain

import "time"

// Trace is an aggregate view over all spans sharing a trace id. Partial
// traces are valid: RootSpan is nil when no member span is parentless.
type Trace struct {
	TraceID    string     `json:"traceId"`
	Spans      []Span     `json:"spans"`
	RootSpan   *Span      `json:"rootSpan,omitempty"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    time.Time  `json:"endTime"`
	Status     StatusCode `json:"status"`
	Services   []string   `json:"services"`
	SpanCount  int        `json:"spanCount"`
	ErrorCount int        `json:"errorCount"`
}

// Duration is the wall-clock extent of the trace.
func (t Trace) Duration() time.Duration { return t.EndTime.Sub(t.StartTime) }
