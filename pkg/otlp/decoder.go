// Package otlp converts OTLP wire messages into domain models. It is the
// single point where the external wire format meets the internal model:
// protobuf bodies decode through the OTLP proto definitions, JSON bodies
// through explicit DTOs (the OTLP/JSON encoding renders trace and span ids
// as hex strings, which the generic proto JSON machinery cannot parse).
//
// Batches are atomic units: one malformed message fails the whole decode and
// nothing is returned. Every decoded item owns a fully materialized resource
// snapshot; there is no back-reference into the wire message.
package otlp

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// Supported request body encodings.
const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

// NegotiateContentType strips any media-type parameters and validates the
// encoding. Returns domain.ErrUnsupportedContentType for anything else.
func NegotiateContentType(contentType string) (string, error) {
	mediaType := strings.TrimSpace(contentType)
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	switch mediaType {
	case ContentTypeProtobuf, ContentTypeJSON:
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedContentType, contentType)
	}
}

// DecodeTraces decodes an OTLP ExportTraceServiceRequest body into spans.
func DecodeTraces(body []byte, contentType string) ([]domain.Span, error) {
	mediaType, err := NegotiateContentType(contentType)
	if err != nil {
		return nil, err
	}
	if mediaType == ContentTypeJSON {
		return decodeTracesJSON(body)
	}
	return decodeTracesProto(body)
}

// DecodeMetrics decodes an OTLP ExportMetricsServiceRequest body. Only gauge
// and sum points are modeled; other point kinds are skipped.
func DecodeMetrics(body []byte, contentType string) ([]domain.Metric, error) {
	mediaType, err := NegotiateContentType(contentType)
	if err != nil {
		return nil, err
	}
	if mediaType == ContentTypeJSON {
		return decodeMetricsJSON(body)
	}
	return decodeMetricsProto(body)
}

// DecodeLogs decodes an OTLP ExportLogsServiceRequest body into log records.
func DecodeLogs(body []byte, contentType string) ([]domain.LogRecord, error) {
	mediaType, err := NegotiateContentType(contentType)
	if err != nil {
		return nil, err
	}
	if mediaType == ContentTypeJSON {
		return decodeLogsJSON(body)
	}
	return decodeLogsProto(body)
}

// fromUnixNano converts an OTLP unix-nanosecond timestamp. time.Time carries
// nanosecond precision, so the conversion is lossless.
func fromUnixNano(nanos uint64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(nanos)).UTC()
}
