package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// MemoryStore is the in-memory implementation of TelemetryStore,
// PromotionStore, FixRunStore, and DDLExecutor. Appends preserve batch
// order; DDL execution records the statement so the schema executor can be
// exercised without an engine.
type MemoryStore struct {
	mu         sync.RWMutex
	spans      []domain.Span
	logs       []domain.LogRecord
	metrics    []domain.Metric
	promotions map[string]domain.SchemaPromotion
	fixRuns    map[string]domain.FixRun
	ddl        []string
	ddlErr     error // injected failure for tests
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		promotions: make(map[string]domain.SchemaPromotion),
		fixRuns:    make(map[string]domain.FixRun),
	}
}

// AppendSpans appends a batch in decode order.
func (s *MemoryStore) AppendSpans(ctx context.Context, spans []domain.Span) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, spans...)
	return nil
}

// QuerySpans returns spans matching the filter in append order.
func (s *MemoryStore) QuerySpans(ctx context.Context, filter SpanFilter) ([]domain.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Span
	for _, span := range s.spans {
		if filter.TraceID != "" && span.TraceID != filter.TraceID {
			continue
		}
		if filter.ServiceName != "" && span.ServiceName() != filter.ServiceName {
			continue
		}
		if !filter.From.IsZero() && span.StartTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && span.StartTime.After(filter.To) {
			continue
		}
		if filter.OnlyErrors && !span.HasError() {
			continue
		}
		out = append(out, span)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// AppendLogs appends a batch in decode order.
func (s *MemoryStore) AppendLogs(ctx context.Context, logs []domain.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, logs...)
	return nil
}

// QueryLogs returns log records matching the filter in append order.
func (s *MemoryStore) QueryLogs(ctx context.Context, filter LogFilter) ([]domain.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.LogRecord
	for _, record := range s.logs {
		if filter.TraceID != "" && record.TraceID != filter.TraceID {
			continue
		}
		if filter.ServiceName != "" && record.ServiceName() != filter.ServiceName {
			continue
		}
		if filter.MinSeverity > 0 && record.SeverityNumber < filter.MinSeverity {
			continue
		}
		if !filter.From.IsZero() && record.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && record.Timestamp.After(filter.To) {
			continue
		}
		out = append(out, record)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// AppendMetrics appends a batch in decode order.
func (s *MemoryStore) AppendMetrics(ctx context.Context, metrics []domain.Metric) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metrics...)
	return nil
}

// QueryMetrics returns metrics matching the filter in append order.
func (s *MemoryStore) QueryMetrics(ctx context.Context, filter MetricFilter) ([]domain.Metric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Metric
	for _, metric := range s.metrics {
		if filter.Name != "" && metric.Name != filter.Name {
			continue
		}
		if filter.ServiceName != "" && metric.ServiceName() != filter.ServiceName {
			continue
		}
		out = append(out, metric)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Stats reports current counts and the span time bounds.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		SpanCount:   int64(len(s.spans)),
		LogCount:    int64(len(s.logs)),
		MetricCount: int64(len(s.metrics)),
	}
	for i := range s.spans {
		start := s.spans[i].StartTime
		if stats.OldestSpan == nil || start.Before(*stats.OldestSpan) {
			t := start
			stats.OldestSpan = &t
		}
		if stats.NewestSpan == nil || start.After(*stats.NewestSpan) {
			t := start
			stats.NewestSpan = &t
		}
	}
	return stats, nil
}

// PurgeOlderThan drops spans and logs older than the cutoff. Returns how
// many items were removed. Used by the retention cleanup loop.
func (s *MemoryStore) PurgeOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0

	kept := s.spans[:0]
	for _, span := range s.spans {
		if span.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, span)
	}
	s.spans = kept

	keptLogs := s.logs[:0]
	for _, record := range s.logs {
		if record.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keptLogs = append(keptLogs, record)
	}
	s.logs = keptLogs

	return removed
}

// ExecuteDDL records the statement. The in-memory store has no real schema;
// an injected error simulates engine-level DDL failure.
func (s *MemoryStore) ExecuteDDL(ctx context.Context, sql string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ddlErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, s.ddlErr)
	}
	s.ddl = append(s.ddl, sql)
	return nil
}

// ExecutedDDL returns the statements applied so far.
func (s *MemoryStore) ExecutedDDL() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ddl))
	copy(out, s.ddl)
	return out
}

// FailDDLWith makes subsequent ExecuteDDL calls fail. Test hook.
func (s *MemoryStore) FailDDLWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ddlErr = err
}

// InsertPromotion stores a new promotion record.
func (s *MemoryStore) InsertPromotion(ctx context.Context, record domain.SchemaPromotion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[record.PromotionID] = record
	return nil
}

// GetPromotion looks a promotion up by id.
func (s *MemoryStore) GetPromotion(ctx context.Context, promotionID string) (domain.SchemaPromotion, error) {
	if err := ctx.Err(); err != nil {
		return domain.SchemaPromotion{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.promotions[promotionID]
	if !ok {
		return domain.SchemaPromotion{}, domain.ErrNotFound
	}
	return record, nil
}

// ListPromotionsByStatus returns promotions in the given status, newest
// first.
func (s *MemoryStore) ListPromotionsByStatus(ctx context.Context, status domain.PromotionStatus) ([]domain.SchemaPromotion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SchemaPromotion
	for _, record := range s.promotions {
		if record.Status == status {
			out = append(out, record)
		}
	}
	sortPromotionsNewestFirst(out)
	return out, nil
}

// UpdatePromotionStatus applies the one-way status transition.
func (s *MemoryStore) UpdatePromotionStatus(ctx context.Context, promotionID string, status domain.PromotionStatus, appliedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.promotions[promotionID]
	if !ok {
		return domain.ErrNotFound
	}
	record.Status = status
	record.AppliedAt = appliedAt
	s.promotions[promotionID] = record
	return nil
}

// InsertFixRun stores a new fix run record.
func (s *MemoryStore) InsertFixRun(ctx context.Context, run domain.FixRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixRuns[run.RunID] = run
	return nil
}

// GetFixRun looks a fix run up by id.
func (s *MemoryStore) GetFixRun(ctx context.Context, runID string) (domain.FixRun, error) {
	if err := ctx.Err(); err != nil {
		return domain.FixRun{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.fixRuns[runID]
	if !ok {
		return domain.FixRun{}, domain.ErrNotFound
	}
	return run, nil
}

// UpdateFixRunStatus updates a fix run's status and touch time.
func (s *MemoryStore) UpdateFixRunStatus(ctx context.Context, runID, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.fixRuns[runID]
	if !ok {
		return domain.ErrNotFound
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	s.fixRuns[runID] = run
	return nil
}

func sortPromotionsNewestFirst(records []domain.SchemaPromotion) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
