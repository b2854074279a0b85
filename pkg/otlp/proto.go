package otlp

import (
	"encoding/hex"
	"fmt"

	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectormetrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

func decodeTracesProto(body []byte) ([]domain.Span, error) {
	var req collectortrace.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return SpansFromProto(&req), nil
}

// SpansFromProto flattens a decoded trace export request into spans. Shared
// by the HTTP decoder and the gRPC export service.
func SpansFromProto(req *collectortrace.ExportTraceServiceRequest) []domain.Span {
	var spans []domain.Span
	for _, rs := range req.GetResourceSpans() {
		resource := resourceFromProto(rs.GetResource())
		for _, ss := range rs.GetScopeSpans() {
			for _, s := range ss.GetSpans() {
				spans = append(spans, spanFromProto(s, resource))
			}
		}
	}
	return spans
}

func decodeMetricsProto(body []byte) ([]domain.Metric, error) {
	var req collectormetrics.ExportMetricsServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return MetricsFromProto(&req), nil
}

// MetricsFromProto flattens a decoded metrics export request. Only gauge and
// sum points are modeled.
func MetricsFromProto(req *collectormetrics.ExportMetricsServiceRequest) []domain.Metric {
	var metrics []domain.Metric
	for _, rm := range req.GetResourceMetrics() {
		resource := resourceFromProto(rm.GetResource())
		for _, sm := range rm.GetScopeMetrics() {
			for _, m := range sm.GetMetrics() {
				if converted, ok := metricFromProto(m, resource); ok {
					metrics = append(metrics, converted)
				}
			}
		}
	}
	return metrics
}

func decodeLogsProto(body []byte) ([]domain.LogRecord, error) {
	var req collectorlogs.ExportLogsServiceRequest
	if err := proto.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return LogsFromProto(&req), nil
}

// LogsFromProto flattens a decoded logs export request.
func LogsFromProto(req *collectorlogs.ExportLogsServiceRequest) []domain.LogRecord {
	var logs []domain.LogRecord
	for _, rl := range req.GetResourceLogs() {
		resource := resourceFromProto(rl.GetResource())
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				logs = append(logs, logFromProto(lr, resource))
			}
		}
	}
	return logs
}

func resourceFromProto(r *resourcepb.Resource) domain.Resource {
	return domain.Resource{Attributes: attributesFromProto(r.GetAttributes())}
}

func spanFromProto(s *tracepb.Span, resource domain.Resource) domain.Span {
	span := domain.Span{
		TraceID:      hex.EncodeToString(s.GetTraceId()),
		SpanID:       hex.EncodeToString(s.GetSpanId()),
		ParentSpanID: hex.EncodeToString(s.GetParentSpanId()),
		Name:         s.GetName(),
		Kind:         spanKindFromProto(s.GetKind()),
		StartTime:    fromUnixNano(s.GetStartTimeUnixNano()),
		EndTime:      fromUnixNano(s.GetEndTimeUnixNano()),
		Attributes:   attributesFromProto(s.GetAttributes()),
		Resource:     resource,
	}
	if status := s.GetStatus(); status != nil {
		span.Status = domain.SpanStatus{
			Code:    statusCodeFromProto(status.GetCode()),
			Message: status.GetMessage(),
		}
	}
	for _, e := range s.GetEvents() {
		span.Events = append(span.Events, domain.SpanEvent{
			Name:       e.GetName(),
			Timestamp:  fromUnixNano(e.GetTimeUnixNano()),
			Attributes: attributesFromProto(e.GetAttributes()),
		})
	}
	for _, l := range s.GetLinks() {
		span.Links = append(span.Links, domain.SpanLink{
			TraceID:    hex.EncodeToString(l.GetTraceId()),
			SpanID:     hex.EncodeToString(l.GetSpanId()),
			Attributes: attributesFromProto(l.GetAttributes()),
		})
	}
	return span
}

func metricFromProto(m *metricspb.Metric, resource domain.Resource) (domain.Metric, bool) {
	metric := domain.Metric{
		Name:        m.GetName(),
		Description: m.GetDescription(),
		Unit:        m.GetUnit(),
		Resource:    resource,
	}
	switch data := m.GetData().(type) {
	case *metricspb.Metric_Gauge:
		metric.Type = domain.MetricTypeGauge
		metric.Points = numberPointsFromProto(data.Gauge.GetDataPoints())
	case *metricspb.Metric_Sum:
		metric.Type = domain.MetricTypeSum
		metric.Points = numberPointsFromProto(data.Sum.GetDataPoints())
	default:
		// Histogram, summary, and exponential histogram points are out of scope.
		return domain.Metric{}, false
	}
	return metric, true
}

func numberPointsFromProto(points []*metricspb.NumberDataPoint) []domain.MetricPoint {
	converted := make([]domain.MetricPoint, 0, len(points))
	for _, p := range points {
		point := domain.MetricPoint{
			Timestamp:  fromUnixNano(p.GetTimeUnixNano()),
			Attributes: attributesFromProto(p.GetAttributes()),
		}
		switch v := p.GetValue().(type) {
		case *metricspb.NumberDataPoint_AsDouble:
			point.Value = v.AsDouble
		case *metricspb.NumberDataPoint_AsInt:
			point.Value = float64(v.AsInt)
		}
		converted = append(converted, point)
	}
	return converted
}

func logFromProto(lr *logspb.LogRecord, resource domain.Resource) domain.LogRecord {
	return domain.LogRecord{
		Timestamp:         fromUnixNano(lr.GetTimeUnixNano()),
		ObservedTimestamp: fromUnixNano(lr.GetObservedTimeUnixNano()),
		SeverityNumber:    int(lr.GetSeverityNumber()),
		SeverityText:      lr.GetSeverityText(),
		Body:              anyValueFromProto(lr.GetBody()),
		Attributes:        attributesFromProto(lr.GetAttributes()),
		TraceID:           hex.EncodeToString(lr.GetTraceId()),
		SpanID:            hex.EncodeToString(lr.GetSpanId()),
		Resource:          resource,
	}
}

func attributesFromProto(kvs []*commonpb.KeyValue) map[string]domain.AttributeValue {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(map[string]domain.AttributeValue, len(kvs))
	for _, kv := range kvs {
		if kv.GetKey() == "" {
			continue
		}
		attrs[kv.GetKey()] = anyValueFromProto(kv.GetValue())
	}
	return attrs
}

func anyValueFromProto(v *commonpb.AnyValue) domain.AttributeValue {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return domain.StringValue(val.StringValue)
	case *commonpb.AnyValue_IntValue:
		return domain.IntValue(val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return domain.DoubleValue(val.DoubleValue)
	case *commonpb.AnyValue_BoolValue:
		return domain.BoolValue(val.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return domain.BytesValue(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]domain.AttributeValue, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, anyValueFromProto(item))
		}
		return domain.ArrayValue(items)
	case *commonpb.AnyValue_KvlistValue:
		m := make(map[string]domain.AttributeValue, len(val.KvlistValue.GetValues()))
		for _, kv := range val.KvlistValue.GetValues() {
			m[kv.GetKey()] = anyValueFromProto(kv.GetValue())
		}
		return domain.MapValue(m)
	default:
		return domain.StringValue("")
	}
}

func spanKindFromProto(kind tracepb.Span_SpanKind) domain.SpanKind {
	switch kind {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return domain.SpanKindInternal
	case tracepb.Span_SPAN_KIND_SERVER:
		return domain.SpanKindServer
	case tracepb.Span_SPAN_KIND_CLIENT:
		return domain.SpanKindClient
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return domain.SpanKindProducer
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return domain.SpanKindConsumer
	default:
		return domain.SpanKindUnspecified
	}
}

func statusCodeFromProto(code tracepb.Status_StatusCode) domain.StatusCode {
	switch code {
	case tracepb.Status_STATUS_CODE_OK:
		return domain.StatusOK
	case tracepb.Status_STATUS_CODE_ERROR:
		return domain.StatusError
	default:
		return domain.StatusUnset
	}
}
