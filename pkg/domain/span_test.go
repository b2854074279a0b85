package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSpanKind(t *testing.T) {
	assert.Equal(t, SpanKindServer, ParseSpanKind("2"))
	assert.Equal(t, SpanKindServer, ParseSpanKind("SPAN_KIND_SERVER"))
	assert.Equal(t, SpanKindClient, ParseSpanKind("CLIENT"))
	assert.Equal(t, SpanKindUnspecified, ParseSpanKind(""))
	assert.Equal(t, SpanKindUnspecified, ParseSpanKind("999"))
}

func TestSpanDerivedFields(t *testing.T) {
	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	span := Span{
		TraceID:   "0af7651916cd43dd8448eb211c80319c",
		SpanID:    "b7ad6b7169203331",
		StartTime: start,
		EndTime:   start.Add(250 * time.Millisecond),
		Status:    SpanStatus{Code: StatusError, Message: "boom"},
	}
	assert.Equal(t, 250*time.Millisecond, span.Duration())
	assert.True(t, span.IsRoot())
	assert.True(t, span.HasError())
	assert.Equal(t, UnknownService, span.ServiceName())

	span.Resource = Resource{Attributes: map[string]AttributeValue{
		AttrServiceName: StringValue("checkout"),
	}}
	assert.Equal(t, "checkout", span.ServiceName())
}

func TestResourceAccessors(t *testing.T) {
	r := Resource{Attributes: map[string]AttributeValue{
		AttrServiceName: StringValue("api"),
		AttrSDKLanguage: StringValue("go"),
		AttrSDKVersion:  StringValue("1.38.0"),
		AttrHostName:    StringValue("node-1"),
	}}
	assert.Equal(t, "api", r.ServiceName())
	assert.Equal(t, "go", r.SDKLanguage())
	assert.Equal(t, "1.38.0", r.SDKVersion())
	assert.Equal(t, "node-1", r.HostName())
	assert.Empty(t, r.ContainerID())

	// non-string service.name falls back to unknown
	r = Resource{Attributes: map[string]AttributeValue{
		AttrServiceName: IntValue(7),
	}}
	assert.Equal(t, UnknownService, r.ServiceName())
}
