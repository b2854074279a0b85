// Package storage defines the narrow store contracts the collector issues
// DML and DDL through, plus the in-memory and ClickHouse-backed
// implementations. The engine's own query execution and indexing are not
// this package's concern.
package storage

import (
	"context"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// SpanFilter narrows span queries.
type SpanFilter struct {
	TraceID     string
	ServiceName string
	From        time.Time
	To          time.Time
	OnlyErrors  bool
	Limit       int
}

// LogFilter narrows log queries.
type LogFilter struct {
	TraceID     string
	ServiceName string
	MinSeverity int
	From        time.Time
	To          time.Time
	Limit       int
}

// MetricFilter narrows metric queries.
type MetricFilter struct {
	Name        string
	ServiceName string
	Limit       int
}

// SpanStore is an append-only sink for spans.
type SpanStore interface {
	AppendSpans(ctx context.Context, spans []domain.Span) error
	QuerySpans(ctx context.Context, filter SpanFilter) ([]domain.Span, error)
}

// LogStore is an append-only sink for log records.
type LogStore interface {
	AppendLogs(ctx context.Context, logs []domain.LogRecord) error
	QueryLogs(ctx context.Context, filter LogFilter) ([]domain.LogRecord, error)
}

// MetricStore is an append-only sink for metrics.
type MetricStore interface {
	AppendMetrics(ctx context.Context, metrics []domain.Metric) error
	QueryMetrics(ctx context.Context, filter MetricFilter) ([]domain.Metric, error)
}

// TelemetryStore is the full per-signal sink the ingestion handler writes to.
type TelemetryStore interface {
	SpanStore
	LogStore
	MetricStore

	// Stats reports store-level counts for the monitoring endpoint.
	Stats(ctx context.Context) (Stats, error)
}

// Stats is the store-level monitoring view.
type Stats struct {
	SpanCount   int64      `json:"spanCount"`
	LogCount    int64      `json:"logCount"`
	MetricCount int64      `json:"metricCount"`
	OldestSpan  *time.Time `json:"oldestSpan,omitempty"`
	NewestSpan  *time.Time `json:"newestSpan,omitempty"`
}

// DDLExecutor runs schema DDL against the storage engine. Failures are
// all-or-nothing from this layer's point of view.
type DDLExecutor interface {
	ExecuteDDL(ctx context.Context, sql string) error
}

// PromotionStore persists schema promotion records. Records are append-only
// except for the one-way status transition.
type PromotionStore interface {
	InsertPromotion(ctx context.Context, record domain.SchemaPromotion) error
	GetPromotion(ctx context.Context, promotionID string) (domain.SchemaPromotion, error)
	ListPromotionsByStatus(ctx context.Context, status domain.PromotionStatus) ([]domain.SchemaPromotion, error)
	// UpdatePromotionStatus moves a record out of pending. appliedAt is nil
	// unless the new status is applied.
	UpdatePromotionStatus(ctx context.Context, promotionID string, status domain.PromotionStatus, appliedAt *time.Time) error
}

// FixRunStore persists autofix run records with the same append/update
// contract as promotions.
type FixRunStore interface {
	InsertFixRun(ctx context.Context, run domain.FixRun) error
	GetFixRun(ctx context.Context, runID string) (domain.FixRun, error)
	UpdateFixRunStatus(ctx context.Context, runID, status string) error
}
