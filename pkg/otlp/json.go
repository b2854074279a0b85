package otlp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// OTLP/JSON (proto3 JSON encoding, camelCase fields) renders 64-bit integers
// and timestamps as decimal strings and ids as hex strings. The DTOs below
// mirror the envelope explicitly; lenient scalar types absorb producers that
// emit bare numbers or enum names where the encoding says strings or ordinals.

// jsonUint64 accepts both "123" and 123.
type jsonUint64 uint64

func (u *jsonUint64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*u = 0
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %q: %w", data, err)
	}
	*u = jsonUint64(n)
	return nil
}

// jsonInt64 accepts both "123" and 123.
type jsonInt64 int64

func (i *jsonInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid int64 %q: %w", data, err)
	}
	*i = jsonInt64(n)
	return nil
}

// jsonEnum accepts an ordinal (2) or an enum name ("SPAN_KIND_SERVER") and
// preserves the raw token for kind/status parsing.
type jsonEnum string

func (e *jsonEnum) UnmarshalJSON(data []byte) error {
	*e = jsonEnum(bytes.Trim(data, `"`))
	return nil
}

type anyValueJSON struct {
	StringValue *string         `json:"stringValue"`
	IntValue    *jsonInt64      `json:"intValue"`
	DoubleValue *float64        `json:"doubleValue"`
	BoolValue   *bool           `json:"boolValue"`
	BytesValue  *string         `json:"bytesValue"`
	ArrayValue  *arrayValueJSON `json:"arrayValue"`
	KvlistValue *kvlistJSON     `json:"kvlistValue"`
}

type arrayValueJSON struct {
	Values []anyValueJSON `json:"values"`
}

type kvlistJSON struct {
	Values []keyValueJSON `json:"values"`
}

type keyValueJSON struct {
	Key   string       `json:"key"`
	Value anyValueJSON `json:"value"`
}

type resourceJSON struct {
	Attributes []keyValueJSON `json:"attributes"`
}

type spanEventJSON struct {
	Name         string         `json:"name"`
	TimeUnixNano jsonUint64     `json:"timeUnixNano"`
	Attributes   []keyValueJSON `json:"attributes"`
}

type spanLinkJSON struct {
	TraceID    string         `json:"traceId"`
	SpanID     string         `json:"spanId"`
	Attributes []keyValueJSON `json:"attributes"`
}

type spanStatusJSON struct {
	Code    jsonEnum `json:"code"`
	Message string   `json:"message"`
}

type spanJSON struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId"`
	Name              string          `json:"name"`
	Kind              jsonEnum        `json:"kind"`
	StartTimeUnixNano jsonUint64      `json:"startTimeUnixNano"`
	EndTimeUnixNano   jsonUint64      `json:"endTimeUnixNano"`
	Attributes        []keyValueJSON  `json:"attributes"`
	Events            []spanEventJSON `json:"events"`
	Links             []spanLinkJSON  `json:"links"`
	Status            *spanStatusJSON `json:"status"`
}

type scopeSpansJSON struct {
	Spans []spanJSON `json:"spans"`
}

type resourceSpansJSON struct {
	Resource   *resourceJSON    `json:"resource"`
	ScopeSpans []scopeSpansJSON `json:"scopeSpans"`
}

type exportTracesJSON struct {
	ResourceSpans []resourceSpansJSON `json:"resourceSpans"`
}

func decodeTracesJSON(body []byte) ([]domain.Span, error) {
	var req exportTracesJSON
	if err := unmarshalStrict(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	var spans []domain.Span
	for _, rs := range req.ResourceSpans {
		resource := resourceFromJSON(rs.Resource)
		for _, ss := range rs.ScopeSpans {
			for _, s := range ss.Spans {
				spans = append(spans, spanFromJSON(s, resource))
			}
		}
	}
	return spans, nil
}

func spanFromJSON(s spanJSON, resource domain.Resource) domain.Span {
	span := domain.Span{
		TraceID:      strings.ToLower(s.TraceID),
		SpanID:       strings.ToLower(s.SpanID),
		ParentSpanID: strings.ToLower(s.ParentSpanID),
		Name:         s.Name,
		Kind:         domain.ParseSpanKind(string(s.Kind)),
		StartTime:    fromUnixNano(uint64(s.StartTimeUnixNano)),
		EndTime:      fromUnixNano(uint64(s.EndTimeUnixNano)),
		Attributes:   attributesFromJSON(s.Attributes),
		Resource:     resource,
	}
	if s.Status != nil {
		span.Status = domain.SpanStatus{
			Code:    statusCodeFromJSON(s.Status.Code),
			Message: s.Status.Message,
		}
	}
	for _, e := range s.Events {
		span.Events = append(span.Events, domain.SpanEvent{
			Name:       e.Name,
			Timestamp:  fromUnixNano(uint64(e.TimeUnixNano)),
			Attributes: attributesFromJSON(e.Attributes),
		})
	}
	for _, l := range s.Links {
		span.Links = append(span.Links, domain.SpanLink{
			TraceID:    strings.ToLower(l.TraceID),
			SpanID:     strings.ToLower(l.SpanID),
			Attributes: attributesFromJSON(l.Attributes),
		})
	}
	return span
}

type numberPointJSON struct {
	TimeUnixNano jsonUint64     `json:"timeUnixNano"`
	AsDouble     *float64       `json:"asDouble"`
	AsInt        *jsonInt64     `json:"asInt"`
	Attributes   []keyValueJSON `json:"attributes"`
}

type gaugeJSON struct {
	DataPoints []numberPointJSON `json:"dataPoints"`
}

type sumJSON struct {
	DataPoints []numberPointJSON `json:"dataPoints"`
}

type metricJSON struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Unit        string     `json:"unit"`
	Gauge       *gaugeJSON `json:"gauge"`
	Sum         *sumJSON   `json:"sum"`
}

type scopeMetricsJSON struct {
	Metrics []metricJSON `json:"metrics"`
}

type resourceMetricsJSON struct {
	Resource     *resourceJSON      `json:"resource"`
	ScopeMetrics []scopeMetricsJSON `json:"scopeMetrics"`
}

type exportMetricsJSON struct {
	ResourceMetrics []resourceMetricsJSON `json:"resourceMetrics"`
}

func decodeMetricsJSON(body []byte) ([]domain.Metric, error) {
	var req exportMetricsJSON
	if err := unmarshalStrict(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	var metrics []domain.Metric
	for _, rm := range req.ResourceMetrics {
		resource := resourceFromJSON(rm.Resource)
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				metric := domain.Metric{
					Name:        m.Name,
					Description: m.Description,
					Unit:        m.Unit,
					Resource:    resource,
				}
				switch {
				case m.Gauge != nil:
					metric.Type = domain.MetricTypeGauge
					metric.Points = numberPointsFromJSON(m.Gauge.DataPoints)
				case m.Sum != nil:
					metric.Type = domain.MetricTypeSum
					metric.Points = numberPointsFromJSON(m.Sum.DataPoints)
				default:
					continue
				}
				metrics = append(metrics, metric)
			}
		}
	}
	return metrics, nil
}

func numberPointsFromJSON(points []numberPointJSON) []domain.MetricPoint {
	converted := make([]domain.MetricPoint, 0, len(points))
	for _, p := range points {
		point := domain.MetricPoint{
			Timestamp:  fromUnixNano(uint64(p.TimeUnixNano)),
			Attributes: attributesFromJSON(p.Attributes),
		}
		switch {
		case p.AsDouble != nil:
			point.Value = *p.AsDouble
		case p.AsInt != nil:
			point.Value = float64(*p.AsInt)
		}
		converted = append(converted, point)
	}
	return converted
}

type logRecordJSON struct {
	TimeUnixNano         jsonUint64     `json:"timeUnixNano"`
	ObservedTimeUnixNano jsonUint64     `json:"observedTimeUnixNano"`
	SeverityNumber       jsonEnum       `json:"severityNumber"`
	SeverityText         string         `json:"severityText"`
	Body                 *anyValueJSON  `json:"body"`
	Attributes           []keyValueJSON `json:"attributes"`
	TraceID              string         `json:"traceId"`
	SpanID               string         `json:"spanId"`
}

type scopeLogsJSON struct {
	LogRecords []logRecordJSON `json:"logRecords"`
}

type resourceLogsJSON struct {
	Resource  *resourceJSON   `json:"resource"`
	ScopeLogs []scopeLogsJSON `json:"scopeLogs"`
}

type exportLogsJSON struct {
	ResourceLogs []resourceLogsJSON `json:"resourceLogs"`
}

func decodeLogsJSON(body []byte) ([]domain.LogRecord, error) {
	var req exportLogsJSON
	if err := unmarshalStrict(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	var logs []domain.LogRecord
	for _, rl := range req.ResourceLogs {
		resource := resourceFromJSON(rl.Resource)
		for _, sl := range rl.ScopeLogs {
			for _, lr := range sl.LogRecords {
				record := domain.LogRecord{
					Timestamp:         fromUnixNano(uint64(lr.TimeUnixNano)),
					ObservedTimestamp: fromUnixNano(uint64(lr.ObservedTimeUnixNano)),
					SeverityNumber:    severityFromJSON(lr.SeverityNumber),
					SeverityText:      lr.SeverityText,
					Attributes:        attributesFromJSON(lr.Attributes),
					TraceID:           strings.ToLower(lr.TraceID),
					SpanID:            strings.ToLower(lr.SpanID),
					Resource:          resource,
				}
				if lr.Body != nil {
					record.Body = anyValueFromJSON(*lr.Body)
				}
				logs = append(logs, record)
			}
		}
	}
	return logs, nil
}

func resourceFromJSON(r *resourceJSON) domain.Resource {
	if r == nil {
		return domain.Resource{}
	}
	return domain.Resource{Attributes: attributesFromJSON(r.Attributes)}
}

func attributesFromJSON(kvs []keyValueJSON) map[string]domain.AttributeValue {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(map[string]domain.AttributeValue, len(kvs))
	for _, kv := range kvs {
		if kv.Key == "" {
			continue
		}
		attrs[kv.Key] = anyValueFromJSON(kv.Value)
	}
	return attrs
}

func anyValueFromJSON(v anyValueJSON) domain.AttributeValue {
	switch {
	case v.StringValue != nil:
		return domain.StringValue(*v.StringValue)
	case v.IntValue != nil:
		return domain.IntValue(int64(*v.IntValue))
	case v.DoubleValue != nil:
		return domain.DoubleValue(*v.DoubleValue)
	case v.BoolValue != nil:
		return domain.BoolValue(*v.BoolValue)
	case v.BytesValue != nil:
		decoded, err := base64.StdEncoding.DecodeString(*v.BytesValue)
		if err != nil {
			return domain.StringValue(*v.BytesValue)
		}
		return domain.BytesValue(decoded)
	case v.ArrayValue != nil:
		items := make([]domain.AttributeValue, 0, len(v.ArrayValue.Values))
		for _, item := range v.ArrayValue.Values {
			items = append(items, anyValueFromJSON(item))
		}
		return domain.ArrayValue(items)
	case v.KvlistValue != nil:
		m := make(map[string]domain.AttributeValue, len(v.KvlistValue.Values))
		for _, kv := range v.KvlistValue.Values {
			m[kv.Key] = anyValueFromJSON(kv.Value)
		}
		return domain.MapValue(m)
	default:
		return domain.StringValue("")
	}
}

func statusCodeFromJSON(code jsonEnum) domain.StatusCode {
	switch string(code) {
	case "1", "STATUS_CODE_OK":
		return domain.StatusOK
	case "2", "STATUS_CODE_ERROR":
		return domain.StatusError
	default:
		return domain.StatusUnset
	}
}

func severityFromJSON(sev jsonEnum) int {
	n, err := strconv.Atoi(string(sev))
	if err != nil {
		return 0
	}
	return n
}

// unmarshalStrict fails on syntactically invalid JSON and on a body that is
// not an object; unknown fields are tolerated, matching proto3 JSON rules.
func unmarshalStrict(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}
