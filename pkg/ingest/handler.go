package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/spanhouse/spanhouse/pkg/aggregate"
	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/genai"
	"github.com/spanhouse/spanhouse/pkg/live"
	"github.com/spanhouse/spanhouse/pkg/otlp"
	"github.com/spanhouse/spanhouse/pkg/storage"
	"github.com/spanhouse/spanhouse/pkg/telemetry"
)

// ExportResult is the OTLP partial-success envelope. Once a batch decodes,
// the collector accepts all of it, so Rejected is always zero on success.
type ExportResult struct {
	Rejected     int64  `json:"rejected"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Handler drives one export request through the full pipeline: decode,
// service registration, store append, aggregation, live broadcast. A decode
// failure aborts before any mutation; every failure after decode is logged
// and never surfaced to the exporting client.
type Handler struct {
	store     storage.TelemetryStore
	registry  *ServiceRegistry
	sessions  *aggregate.SessionAggregator
	traces    *aggregate.TraceAggregator
	broadcast *live.Broadcaster
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// NewHandler wires the ingestion pipeline. metrics may be nil in tests.
func NewHandler(
	store storage.TelemetryStore,
	registry *ServiceRegistry,
	sessions *aggregate.SessionAggregator,
	traces *aggregate.TraceAggregator,
	broadcast *live.Broadcaster,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:     store,
		registry:  registry,
		sessions:  sessions,
		traces:    traces,
		broadcast: broadcast,
		metrics:   metrics,
		logger:    logger,
	}
}

// ExportTraces ingests one OTLP trace export request.
func (h *Handler) ExportTraces(ctx context.Context, body []byte, contentType string) (ExportResult, error) {
	start := time.Now()
	spans, err := otlp.DecodeTraces(body, contentType)
	if err != nil {
		h.recordDecodeFailure("traces")
		return ExportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExportResult{}, err
	}
	h.ingestSpans(ctx, spans)
	h.recordIngest("traces", len(spans), time.Since(start))
	return ExportResult{}, nil
}

// ExportMetrics ingests one OTLP metrics export request.
func (h *Handler) ExportMetrics(ctx context.Context, body []byte, contentType string) (ExportResult, error) {
	start := time.Now()
	metrics, err := otlp.DecodeMetrics(body, contentType)
	if err != nil {
		h.recordDecodeFailure("metrics")
		return ExportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExportResult{}, err
	}
	h.ingestMetrics(ctx, metrics)
	h.recordIngest("metrics", len(metrics), time.Since(start))
	return ExportResult{}, nil
}

// ExportLogs ingests one OTLP logs export request.
func (h *Handler) ExportLogs(ctx context.Context, body []byte, contentType string) (ExportResult, error) {
	start := time.Now()
	logs, err := otlp.DecodeLogs(body, contentType)
	if err != nil {
		h.recordDecodeFailure("logs")
		return ExportResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ExportResult{}, err
	}
	h.ingestLogs(ctx, logs)
	h.recordIngest("logs", len(logs), time.Since(start))
	return ExportResult{}, nil
}

// IngestSpans runs already-decoded spans through the post-decode pipeline.
// The gRPC ingest path enters here after its own proto conversion.
func (h *Handler) IngestSpans(ctx context.Context, spans []domain.Span) {
	start := time.Now()
	h.ingestSpans(ctx, spans)
	h.recordIngest("traces", len(spans), time.Since(start))
}

// IngestMetrics runs already-decoded metrics through the post-decode pipeline.
func (h *Handler) IngestMetrics(ctx context.Context, metrics []domain.Metric) {
	start := time.Now()
	h.ingestMetrics(ctx, metrics)
	h.recordIngest("metrics", len(metrics), time.Since(start))
}

// IngestLogs runs already-decoded logs through the post-decode pipeline.
func (h *Handler) IngestLogs(ctx context.Context, logs []domain.LogRecord) {
	start := time.Now()
	h.ingestLogs(ctx, logs)
	h.recordIngest("logs", len(logs), time.Since(start))
}

func (h *Handler) ingestSpans(ctx context.Context, spans []domain.Span) {
	if len(spans) == 0 {
		return
	}
	for _, span := range spans {
		h.registry.Upsert(span.Resource)
		if genai.UsesDeprecatedAttributes(span) {
			h.logger.Warn("span uses deprecated gen_ai attributes",
				"service", span.ServiceName(), "span", span.Name)
		}
	}
	if err := h.store.AppendSpans(ctx, spans); err != nil {
		h.logger.Error("append spans", "count", len(spans), "error", err)
	}

	enriched := make([]genai.EnrichedSpan, 0, len(spans))
	for _, span := range spans {
		h.sessions.AddSpan(span)
		h.traces.AddSpan(span)
		enriched = append(enriched, genai.Enrich(span))
	}
	h.broadcast.PublishSpans(enriched)
	h.updateGauges()
}

func (h *Handler) ingestMetrics(ctx context.Context, metrics []domain.Metric) {
	if len(metrics) == 0 {
		return
	}
	for _, metric := range metrics {
		h.registry.Upsert(metric.Resource)
	}
	if err := h.store.AppendMetrics(ctx, metrics); err != nil {
		h.logger.Error("append metrics", "count", len(metrics), "error", err)
	}
	h.broadcast.PublishMetrics(metrics)
}

func (h *Handler) ingestLogs(ctx context.Context, logs []domain.LogRecord) {
	if len(logs) == 0 {
		return
	}
	for _, record := range logs {
		h.registry.Upsert(record.Resource)
	}
	if err := h.store.AppendLogs(ctx, logs); err != nil {
		h.logger.Error("append logs", "count", len(logs), "error", err)
	}
	h.broadcast.PublishLogs(logs)
}

func (h *Handler) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.UpdateAggregateCounts(h.sessions.Count(), h.traces.Count())
	h.metrics.UpdateSubscriberCount(h.broadcast.SubscriberCount())
}

func (h *Handler) recordIngest(signal string, items int, duration time.Duration) {
	if h.metrics != nil {
		h.metrics.RecordIngest(signal, items, duration)
	}
}

func (h *Handler) recordDecodeFailure(signal string) {
	if h.metrics != nil {
		h.metrics.RecordDecodeFailure(signal)
	}
}
