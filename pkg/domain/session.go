package domain

import "time"

// ActiveSessionWindow is how recently a session must have seen activity to
// count as active.
const ActiveSessionWindow = 5 * time.Minute

// Session is a consistent snapshot of one GenAI session aggregate. Every
// numeric field is recomputed from the member span list when the snapshot is
// taken; nothing here is an independently drifting counter.
type Session struct {
	SessionID     string    `json:"sessionId"`
	ServiceName   string    `json:"serviceName"`
	StartTime     time.Time `json:"startTime"`
	LastActivity  time.Time `json:"lastActivity"`
	SpanCount     int       `json:"spanCount"`
	ErrorCount    int       `json:"errorCount"`
	ErrorRate     float64   `json:"errorRate"`
	TraceIDs      []string  `json:"traceIds"`
	InputTokens   int64     `json:"inputTokens"`
	OutputTokens  int64     `json:"outputTokens"`
	TotalTokens   int64     `json:"totalTokens"`
	TotalCostUSD  float64   `json:"totalCostUsd"`
	ToolCallCount int       `json:"toolCallCount"`
	PrimaryModel  string    `json:"primaryModel,omitempty"`
	Models        []string  `json:"models,omitempty"`
	Active        bool      `json:"active"`
}

// SessionFilter narrows session queries. Zero values mean "no constraint";
// HasErrors is a pointer so "only error-free" and "unfiltered" stay distinct.
type SessionFilter struct {
	ServiceName string
	From        time.Time
	To          time.Time
	MinTokens   int64
	HasErrors   *bool
	Limit       int
	Offset      int
}

// ModelUsage pairs a model name with how many spans used it.
type ModelUsage struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// SessionStatistics is the aggregate view over all live sessions.
type SessionStatistics struct {
	SessionCount   int          `json:"sessionCount"`
	ActiveSessions int          `json:"activeSessions"`
	TotalSpans     int          `json:"totalSpans"`
	TotalErrors    int          `json:"totalErrors"`
	TotalTokens    int64        `json:"totalTokens"`
	TotalCostUSD   float64      `json:"totalCostUsd"`
	TopModels      []ModelUsage `json:"topModels"`
}
