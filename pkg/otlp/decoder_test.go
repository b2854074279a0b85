package otlp

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

func TestNegotiateContentType(t *testing.T) {
	for _, ct := range []string{
		"application/json",
		"application/json; charset=utf-8",
		"application/x-protobuf",
	} {
		got, err := NegotiateContentType(ct)
		require.NoError(t, err, ct)
		assert.NotEmpty(t, got)
	}

	_, err := NegotiateContentType("text/plain")
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
	_, err = NegotiateContentType("")
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
}

const tracesJSON = `{
  "resourceSpans": [{
    "resource": {
      "attributes": [
        {"key": "service.name", "value": {"stringValue": "chat-api"}},
        {"key": "telemetry.sdk.language", "value": {"stringValue": "python"}}
      ]
    },
    "scopeSpans": [{
      "spans": [{
        "traceId": "0AF7651916CD43DD8448EB211C80319C",
        "spanId": "B7AD6B7169203331",
        "name": "chat gpt-4o",
        "kind": "SPAN_KIND_CLIENT",
        "startTimeUnixNano": "1714521600000000100",
        "endTimeUnixNano": "1714521601000000100",
        "attributes": [
          {"key": "gen_ai.provider.name", "value": {"stringValue": "openai"}},
          {"key": "gen_ai.usage.input_tokens", "value": {"intValue": "120"}},
          {"key": "session.id", "value": {"stringValue": "s1"}}
        ],
        "events": [
          {"name": "gen_ai.content.prompt", "timeUnixNano": "1714521600500000000"}
        ],
        "status": {"code": "STATUS_CODE_ERROR", "message": "rate limited"}
      }]
    }]
  }]
}`

func TestDecodeTracesJSON(t *testing.T) {
	spans, err := DecodeTraces([]byte(tracesJSON), ContentTypeJSON)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", span.TraceID)
	assert.Equal(t, "b7ad6b7169203331", span.SpanID)
	assert.Empty(t, span.ParentSpanID)
	assert.Equal(t, domain.SpanKindClient, span.Kind)
	assert.Equal(t, "chat-api", span.ServiceName())
	assert.Equal(t, domain.StatusError, span.Status.Code)
	assert.Equal(t, "rate limited", span.Status.Message)

	// sub-millisecond precision survives
	assert.Equal(t, int64(1714521600000000100), span.StartTime.UnixNano())
	assert.Equal(t, time.Second, span.Duration())

	tokens, ok := span.Attributes["gen_ai.usage.input_tokens"].AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(120), tokens)

	require.Len(t, span.Events, 1)
	assert.Equal(t, "gen_ai.content.prompt", span.Events[0].Name)
}

func TestDecodeTracesJSONMalformed(t *testing.T) {
	_, err := DecodeTraces([]byte(`{"resourceSpans": [`), ContentTypeJSON)
	assert.ErrorIs(t, err, domain.ErrDecode)

	_, err = DecodeTraces(nil, ContentTypeJSON)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecodeTracesProtoRoundTrip(t *testing.T) {
	traceID, err := hex.DecodeString("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := hex.DecodeString("b7ad6b7169203331")
	require.NoError(t, err)

	req := &collectortrace.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{{
					Key:   "service.name",
					Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "agent"}},
				}},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Spans: []*tracepb.Span{{
					TraceId:           traceID,
					SpanId:            spanID,
					Name:              "invoke",
					Kind:              tracepb.Span_SPAN_KIND_SERVER,
					StartTimeUnixNano: 1714521600000000100,
					EndTimeUnixNano:   1714521600000000200,
					Attributes: []*commonpb.KeyValue{{
						Key:   "gen_ai.request.model",
						Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "gpt-4o"}},
					}},
					Status: &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK},
				}},
			}},
		}},
	}

	body, err := proto.Marshal(req)
	require.NoError(t, err)

	spans, err := DecodeTraces(body, ContentTypeProtobuf)
	require.NoError(t, err)
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", span.TraceID)
	assert.Equal(t, "b7ad6b7169203331", span.SpanID)
	assert.Equal(t, domain.SpanKindServer, span.Kind)
	assert.Equal(t, domain.StatusOK, span.Status.Code)
	assert.Equal(t, "agent", span.ServiceName())
	assert.Equal(t, "gpt-4o", span.Attributes["gen_ai.request.model"].Str())
	assert.Equal(t, int64(1714521600000000100), span.StartTime.UnixNano())
}

func TestDecodeTracesProtoMalformed(t *testing.T) {
	_, err := DecodeTraces([]byte{0xff, 0xff, 0xff}, ContentTypeProtobuf)
	assert.ErrorIs(t, err, domain.ErrDecode)
}

const metricsJSON = `{
  "resourceMetrics": [{
    "resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "worker"}}]},
    "scopeMetrics": [{
      "metrics": [
        {
          "name": "queue_depth",
          "unit": "{items}",
          "gauge": {"dataPoints": [{"timeUnixNano": "1714521600000000000", "asInt": "17"}]}
        },
        {
          "name": "requests",
          "sum": {"dataPoints": [{"timeUnixNano": "1714521600000000000", "asDouble": 3.5}]}
        },
        {
          "name": "latency",
          "histogram": {"dataPoints": []}
        }
      ]
    }]
  }]
}`

func TestDecodeMetricsJSON(t *testing.T) {
	metrics, err := DecodeMetrics([]byte(metricsJSON), ContentTypeJSON)
	require.NoError(t, err)
	// histogram points are not modeled and are skipped
	require.Len(t, metrics, 2)

	assert.Equal(t, "queue_depth", metrics[0].Name)
	assert.Equal(t, domain.MetricTypeGauge, metrics[0].Type)
	require.Len(t, metrics[0].Points, 1)
	assert.Equal(t, 17.0, metrics[0].Points[0].Value)
	assert.Equal(t, "worker", metrics[0].ServiceName())

	assert.Equal(t, domain.MetricTypeSum, metrics[1].Type)
	assert.Equal(t, 3.5, metrics[1].Points[0].Value)
}

const logsJSON = `{
  "resourceLogs": [{
    "resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "chat-api"}}]},
    "scopeLogs": [{
      "logRecords": [{
        "timeUnixNano": "1714521600000000000",
        "severityNumber": 17,
        "severityText": "ERROR",
        "body": {"stringValue": "model call failed"},
        "traceId": "0af7651916cd43dd8448eb211c80319c",
        "spanId": "b7ad6b7169203331"
      }]
    }]
  }]
}`

func TestDecodeLogsJSON(t *testing.T) {
	logs, err := DecodeLogs([]byte(logsJSON), ContentTypeJSON)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	record := logs[0]
	assert.Equal(t, 17, record.SeverityNumber)
	assert.Equal(t, "ERROR", record.SeverityText)
	assert.Equal(t, "model call failed", record.Body.Text())
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", record.TraceID)
	assert.Equal(t, "chat-api", record.ServiceName())
}

func TestDecodeRejectsUnknownContentType(t *testing.T) {
	_, err := DecodeTraces([]byte("{}"), "application/xml")
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
	_, err = DecodeMetrics([]byte("{}"), "application/xml")
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
	_, err = DecodeLogs([]byte("{}"), "application/xml")
	assert.ErrorIs(t, err, domain.ErrUnsupportedContentType)
}
