package genai

import "github.com/spanhouse/spanhouse/pkg/domain"

// SpanData is the enrichment record extracted from a GenAI span. Pointer
// fields are nil when the producing SDK omitted the attribute; absent and
// zero are never conflated.
type SpanData struct {
	Provider      string   `json:"provider,omitempty"`
	OperationName string   `json:"operationName,omitempty"`
	RequestModel  *string  `json:"requestModel,omitempty"`
	ResponseModel *string  `json:"responseModel,omitempty"`
	InputTokens   *int64   `json:"inputTokens,omitempty"`
	OutputTokens  *int64   `json:"outputTokens,omitempty"`
	TotalTokens   *int64   `json:"totalTokens,omitempty"`
	CostUSD       *float64 `json:"costUsd,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
	ToolCallID    string   `json:"toolCallId,omitempty"`
}

// Model prefers the response model over the requested one.
func (d *SpanData) Model() string {
	if d.ResponseModel != nil {
		return *d.ResponseModel
	}
	if d.RequestModel != nil {
		return *d.RequestModel
	}
	return ""
}

// Tokens sums input and output tokens, falling back to the reported total
// when neither side was recorded.
func (d *SpanData) Tokens() int64 {
	if d.InputTokens == nil && d.OutputTokens == nil {
		if d.TotalTokens != nil {
			return *d.TotalTokens
		}
		return 0
	}
	var sum int64
	if d.InputTokens != nil {
		sum += *d.InputTokens
	}
	if d.OutputTokens != nil {
		sum += *d.OutputTokens
	}
	return sum
}

// EnrichedSpan pairs a span with its optional GenAI projection. Data is nil
// for non-GenAI spans.
type EnrichedSpan struct {
	domain.Span
	Data *SpanData `json:"genAi,omitempty"`
}

// SessionID resolves the session grouping key: the GenAI session attribute
// when present, else the trace id.
func (e EnrichedSpan) SessionID() string {
	if e.Data != nil && e.Data.SessionID != "" {
		return e.Data.SessionID
	}
	return e.TraceID
}

// Enrich projects a span into its enriched form.
func Enrich(span domain.Span) EnrichedSpan {
	return EnrichedSpan{Span: span, Data: Extract(span)}
}

// Extract reads the GenAI projection out of a span's attributes. A span is
// GenAI iff it carries a provider name (current or legacy key) or a request
// model; everything else returns nil. Token counts prefer the current keys
// and fall back to the legacy ones. A non-numeric value for a numeric field
// yields a nil field, not an error.
func Extract(span domain.Span) *SpanData {
	attrs := span.Attributes
	if attrs == nil {
		return nil
	}

	provider := stringAttr(attrs, AttrProviderName)
	if provider == "" {
		provider = stringAttr(attrs, LegacyAttrSystem)
	}
	requestModel := optionalString(attrs, AttrRequestModel)

	if provider == "" && requestModel == nil {
		return nil
	}

	return &SpanData{
		Provider:      provider,
		OperationName: stringAttr(attrs, AttrOperationName),
		RequestModel:  requestModel,
		ResponseModel: optionalString(attrs, AttrResponseModel),
		InputTokens:   intAttr(attrs, AttrInputTokens, LegacyAttrPromptTokens),
		OutputTokens:  intAttr(attrs, AttrOutputTokens, LegacyAttrCompletionTokens),
		TotalTokens:   intAttr(attrs, AttrTotalTokens),
		CostUSD:       floatAttr(attrs, AttrCostUSD),
		SessionID:     stringAttr(attrs, AttrSessionID),
		ToolCallID:    stringAttr(attrs, AttrToolCallID),
	}
}

// UsesDeprecatedAttributes reports whether the span carries any pre-1.39
// GenAI attribute name. Used for migration warnings only; it does not affect
// extraction results.
func UsesDeprecatedAttributes(span domain.Span) bool {
	if span.Attributes == nil {
		return false
	}
	for _, key := range []string{LegacyAttrSystem, LegacyAttrPromptTokens, LegacyAttrCompletionTokens} {
		if _, ok := span.Attributes[key]; ok {
			return true
		}
	}
	return false
}

func stringAttr(attrs map[string]domain.AttributeValue, key string) string {
	v, ok := attrs[key]
	if !ok || v.Kind() != domain.KindString {
		return ""
	}
	return v.Str()
}

func optionalString(attrs map[string]domain.AttributeValue, key string) *string {
	v, ok := attrs[key]
	if !ok || v.Kind() != domain.KindString || v.Str() == "" {
		return nil
	}
	s := v.Str()
	return &s
}

// intAttr reads the first present key; a present but non-coercible value
// yields nil rather than falling through to the next key.
func intAttr(attrs map[string]domain.AttributeValue, keys ...string) *int64 {
	for _, key := range keys {
		v, ok := attrs[key]
		if !ok {
			continue
		}
		n, ok := v.AsInt64()
		if !ok {
			return nil
		}
		return &n
	}
	return nil
}

func floatAttr(attrs map[string]domain.AttributeValue, key string) *float64 {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	f, ok := v.AsFloat64()
	if !ok {
		return nil
	}
	return &f
}
