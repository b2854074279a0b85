package aggregate

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

// TraceConfig bounds the trace aggregator.
type TraceConfig struct {
	MaxTraces int
	TTL       time.Duration
}

// DefaultTraceConfig returns the reference sizing.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{MaxTraces: 20000, TTL: 24 * time.Hour}
}

type traceEntry struct {
	mu           sync.Mutex
	spans        []domain.Span
	lastActivity time.Time
}

// TraceAggregator groups spans by trace id. Same locking and eviction shape
// as the session aggregator, applied independently: lock per entry, TTL
// eviction first, then oldest-by-last-activity down to the ceiling.
type TraceAggregator struct {
	mu      sync.RWMutex
	traces  map[string]*traceEntry
	cfg     TraceConfig
	logger  *slog.Logger
	now     func() time.Time
	onEvict func(reason string) // metrics hook, may be nil
}

// NewTraceAggregator creates a trace aggregator with the given bounds.
func NewTraceAggregator(cfg TraceConfig, logger *slog.Logger) *TraceAggregator {
	if cfg.MaxTraces <= 0 {
		cfg.MaxTraces = DefaultTraceConfig().MaxTraces
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTraceConfig().TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceAggregator{
		traces: make(map[string]*traceEntry),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetEvictHook installs a callback invoked once per evicted trace with the
// eviction reason. Must be called before the aggregator is shared.
func (a *TraceAggregator) SetEvictHook(fn func(reason string)) { a.onEvict = fn }

// AddSpan folds one span into its trace.
func (a *TraceAggregator) AddSpan(span domain.Span) {
	a.mu.RLock()
	entry, ok := a.traces[span.TraceID]
	a.mu.RUnlock()

	if !ok {
		a.mu.Lock()
		entry, ok = a.traces[span.TraceID]
		if !ok {
			entry = &traceEntry{}
			a.traces[span.TraceID] = entry
		}
		a.mu.Unlock()
	}

	entry.mu.Lock()
	entry.spans = append(entry.spans, span)
	if span.StartTime.After(entry.lastActivity) {
		entry.lastActivity = span.StartTime
	}
	entry.mu.Unlock()

	a.maybeEvict()
}

// GetTrace returns a consistent snapshot of one trace.
func (a *TraceAggregator) GetTrace(traceID string) (domain.Trace, error) {
	a.mu.RLock()
	entry, ok := a.traces[traceID]
	a.mu.RUnlock()
	if !ok {
		return domain.Trace{}, domain.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return buildTrace(traceID, entry.spans), nil
}

// Count returns the current trace count.
func (a *TraceAggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.traces)
}

// PurgeOlderThan removes traces idle since before the cutoff.
func (a *TraceAggregator) PurgeOlderThan(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, entry := range a.traces {
		if traceLastActivity(entry).Before(cutoff) {
			delete(a.traces, id)
			removed++
		}
	}
	return removed
}

func (a *TraceAggregator) maybeEvict() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.traces) <= a.cfg.MaxTraces {
		return
	}

	cutoff := a.now().Add(-a.cfg.TTL)
	for id, entry := range a.traces {
		if traceLastActivity(entry).Before(cutoff) {
			delete(a.traces, id)
			a.notifyEvict(EvictReasonTTL)
		}
	}
	if len(a.traces) <= a.cfg.MaxTraces {
		return
	}

	type candidate struct {
		id           string
		lastActivity time.Time
	}
	candidates := make([]candidate, 0, len(a.traces))
	for id, entry := range a.traces {
		candidates = append(candidates, candidate{id, traceLastActivity(entry)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})
	excess := len(a.traces) - a.cfg.MaxTraces
	for _, c := range candidates[:excess] {
		delete(a.traces, c.id)
		a.notifyEvict(EvictReasonCapacity)
	}
	a.logger.Debug("trace eviction pass", "evicted", excess, "remaining", len(a.traces))
}

func (a *TraceAggregator) notifyEvict(reason string) {
	if a.onEvict != nil {
		a.onEvict(reason)
	}
}

func traceLastActivity(entry *traceEntry) time.Time {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.lastActivity
}

// buildTrace recomputes the trace view from the member spans. The root is
// the unique parentless span; a trace with zero or several parentless spans
// has no root, which is valid for partial traces.
func buildTrace(traceID string, spans []domain.Span) domain.Trace {
	trace := domain.Trace{TraceID: traceID, SpanCount: len(spans)}
	services := make(map[string]struct{})

	ordered := make([]domain.Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})
	trace.Spans = ordered

	var root *domain.Span
	rootCount := 0
	for i := range ordered {
		span := &ordered[i]
		if span.IsRoot() {
			rootCount++
			root = span
		}
		if span.HasError() {
			trace.ErrorCount++
		}
		if trace.StartTime.IsZero() || span.StartTime.Before(trace.StartTime) {
			trace.StartTime = span.StartTime
		}
		if span.EndTime.After(trace.EndTime) {
			trace.EndTime = span.EndTime
		}
		services[span.ServiceName()] = struct{}{}
	}
	if rootCount == 1 {
		trace.RootSpan = root
	}

	trace.Status = domain.StatusOK
	if trace.ErrorCount > 0 {
		trace.Status = domain.StatusError
	}
	trace.Services = sortedKeys(services)
	return trace
}
