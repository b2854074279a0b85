// Package aggregate folds streams of enriched spans into session and trace
// aggregates. Both aggregators share the same locking shape: a map mutex
// guards entry add/remove only, while each entry carries its own lock, so
// concurrent writes to unrelated keys never contend.
package aggregate

import (
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/genai"
)

// Eviction reasons reported through the eviction hooks.
const (
	EvictReasonTTL      = "ttl"
	EvictReasonCapacity = "capacity"
)

// SessionConfig bounds the session aggregator.
type SessionConfig struct {
	// MaxSessions is the eviction ceiling. Eviction runs opportunistically on
	// writes once the session count exceeds it.
	MaxSessions int
	// TTL is how long an idle session survives before TTL eviction.
	TTL time.Duration
}

// DefaultSessionConfig returns the reference sizing.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MaxSessions: 10000, TTL: 24 * time.Hour}
}

type sessionEntry struct {
	mu    sync.Mutex
	spans []genai.EnrichedSpan
	// lastActivity mirrors the max member span start time, kept alongside the
	// member list so eviction ordering can read it with a short lock.
	lastActivity time.Time
}

// SessionAggregator groups spans into sessions keyed by the GenAI session
// attribute, falling back to trace id. The member span list of a session is
// append-only; every derived field is recomputed from it under the session's
// lock when a snapshot is taken.
type SessionAggregator struct {
	mu       sync.RWMutex // guards the sessions map for add/remove only
	sessions map[string]*sessionEntry
	cfg      SessionConfig
	logger   *slog.Logger
	now      func() time.Time
	onEvict  func(reason string) // metrics hook, may be nil
}

// NewSessionAggregator creates a session aggregator with the given bounds.
func NewSessionAggregator(cfg SessionConfig, logger *slog.Logger) *SessionAggregator {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultSessionConfig().MaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionConfig().TTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAggregator{
		sessions: make(map[string]*sessionEntry),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SetEvictHook installs a callback invoked once per evicted session with the
// eviction reason. Must be called before the aggregator is shared.
func (a *SessionAggregator) SetEvictHook(fn func(reason string)) { a.onEvict = fn }

// AddSpan folds one span into its session, creating the session on first
// reference, and runs an eviction pass when the ceiling is exceeded.
func (a *SessionAggregator) AddSpan(span domain.Span) {
	enriched := genai.Enrich(span)
	sessionID := enriched.SessionID()

	a.mu.RLock()
	entry, ok := a.sessions[sessionID]
	a.mu.RUnlock()

	if !ok {
		a.mu.Lock()
		entry, ok = a.sessions[sessionID]
		if !ok {
			entry = &sessionEntry{}
			a.sessions[sessionID] = entry
		}
		a.mu.Unlock()
	}

	entry.mu.Lock()
	entry.spans = append(entry.spans, enriched)
	if span.StartTime.After(entry.lastActivity) {
		entry.lastActivity = span.StartTime
	}
	entry.mu.Unlock()

	a.maybeEvict()
}

// GetSession returns a consistent snapshot of one session.
func (a *SessionAggregator) GetSession(sessionID string) (domain.Session, error) {
	a.mu.RLock()
	entry, ok := a.sessions[sessionID]
	a.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return a.snapshotLocked(sessionID, entry).Session, nil
}

// Query returns session snapshots matching the filter, ordered by last
// activity descending.
func (a *SessionAggregator) Query(filter domain.SessionFilter) []domain.Session {
	snapshots := a.snapshotAll()

	filtered := make([]domain.Session, 0, len(snapshots))
	for _, snap := range snapshots {
		s := snap.Session
		if filter.ServiceName != "" && s.ServiceName != filter.ServiceName {
			continue
		}
		if !filter.From.IsZero() && s.LastActivity.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && s.StartTime.After(filter.To) {
			continue
		}
		if filter.MinTokens > 0 && s.TotalTokens < filter.MinTokens {
			continue
		}
		if filter.HasErrors != nil && (s.ErrorCount > 0) != *filter.HasErrors {
			continue
		}
		filtered = append(filtered, s)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].LastActivity.After(filtered[j].LastActivity)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return nil
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered
}

// GetStatistics returns the aggregate view over all sessions, including the
// five most frequent models.
func (a *SessionAggregator) GetStatistics() domain.SessionStatistics {
	snapshots := a.snapshotAll()

	stats := domain.SessionStatistics{SessionCount: len(snapshots)}
	modelCounts := make(map[string]int)
	for _, s := range snapshots {
		if s.Active {
			stats.ActiveSessions++
		}
		stats.TotalSpans += s.SpanCount
		stats.TotalErrors += s.ErrorCount
		stats.TotalTokens += s.TotalTokens
		stats.TotalCostUSD += s.TotalCostUSD
		for _, m := range s.Models {
			modelCounts[m] += s.modelCount(m)
		}
	}
	stats.TopModels = topModels(modelCounts, 5)
	return stats
}

// Count returns the current session count.
func (a *SessionAggregator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// PurgeOlderThan removes sessions idle since before the cutoff. Returns how
// many were removed. Used by the retention cleanup loop.
func (a *SessionAggregator) PurgeOlderThan(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, entry := range a.sessions {
		if entryLastActivity(entry).Before(cutoff) {
			delete(a.sessions, id)
			removed++
		}
	}
	return removed
}

// maybeEvict enforces the ceiling: TTL-expired sessions go first, then the
// globally oldest by last activity until the count is back under the
// ceiling. Ordering is always last-activity ascending, never random.
func (a *SessionAggregator) maybeEvict() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sessions) <= a.cfg.MaxSessions {
		return
	}

	now := a.now()
	cutoff := now.Add(-a.cfg.TTL)
	for id, entry := range a.sessions {
		if entryLastActivity(entry).Before(cutoff) {
			delete(a.sessions, id)
			a.notifyEvict(EvictReasonTTL)
		}
	}
	if len(a.sessions) <= a.cfg.MaxSessions {
		return
	}

	type candidate struct {
		id           string
		lastActivity time.Time
	}
	candidates := make([]candidate, 0, len(a.sessions))
	for id, entry := range a.sessions {
		candidates = append(candidates, candidate{id, entryLastActivity(entry)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActivity.Before(candidates[j].lastActivity)
	})
	excess := len(a.sessions) - a.cfg.MaxSessions
	for _, c := range candidates[:excess] {
		delete(a.sessions, c.id)
		a.notifyEvict(EvictReasonCapacity)
	}
	a.logger.Debug("session eviction pass", "evicted", excess, "remaining", len(a.sessions))
}

func (a *SessionAggregator) notifyEvict(reason string) {
	if a.onEvict != nil {
		a.onEvict(reason)
	}
}

func entryLastActivity(entry *sessionEntry) time.Time {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.lastActivity
}

func (a *SessionAggregator) snapshotAll() []sessionSnapshot {
	a.mu.RLock()
	ids := make([]string, 0, len(a.sessions))
	entries := make([]*sessionEntry, 0, len(a.sessions))
	for id, entry := range a.sessions {
		ids = append(ids, id)
		entries = append(entries, entry)
	}
	a.mu.RUnlock()

	snapshots := make([]sessionSnapshot, 0, len(entries))
	for i, entry := range entries {
		entry.mu.Lock()
		snapshots = append(snapshots, a.snapshotLocked(ids[i], entry))
		entry.mu.Unlock()
	}
	return snapshots
}

// sessionSnapshot carries the public session view plus the per-model span
// counts needed for statistics.
type sessionSnapshot struct {
	domain.Session
	models map[string]int
}

func (s sessionSnapshot) modelCount(model string) int { return s.models[model] }

// snapshotLocked recomputes every derived field from the member span list.
// Caller holds entry.mu.
func (a *SessionAggregator) snapshotLocked(sessionID string, entry *sessionEntry) sessionSnapshot {
	s := domain.Session{SessionID: sessionID}
	modelCounts := make(map[string]int)
	traceIDs := make(map[string]struct{})

	for _, span := range entry.spans {
		if s.ServiceName == "" {
			s.ServiceName = span.ServiceName()
		}
		s.SpanCount++
		if span.HasError() {
			s.ErrorCount++
		}
		if s.StartTime.IsZero() || span.StartTime.Before(s.StartTime) {
			s.StartTime = span.StartTime
		}
		if span.StartTime.After(s.LastActivity) {
			s.LastActivity = span.StartTime
		}
		traceIDs[span.TraceID] = struct{}{}

		if span.Data == nil {
			continue
		}
		if span.Data.InputTokens != nil {
			s.InputTokens += *span.Data.InputTokens
		}
		if span.Data.OutputTokens != nil {
			s.OutputTokens += *span.Data.OutputTokens
		}
		if span.Data.CostUSD != nil {
			s.TotalCostUSD += *span.Data.CostUSD
		}
		if span.Data.ToolCallID != "" {
			s.ToolCallCount++
		}
		if model := span.Data.Model(); model != "" {
			modelCounts[model]++
		}
	}

	s.TotalTokens = s.InputTokens + s.OutputTokens
	if s.SpanCount > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.SpanCount)
	}
	s.TraceIDs = sortedKeys(traceIDs)
	s.Models = sortedModelKeys(modelCounts)
	s.PrimaryModel = primaryModel(modelCounts)
	s.Active = s.LastActivity.After(a.now().Add(-domain.ActiveSessionWindow))

	return sessionSnapshot{Session: s, models: modelCounts}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedModelKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// primaryModel is the most frequent model; ties break lexicographically so
// the result is deterministic.
func primaryModel(counts map[string]int) string {
	best := ""
	bestCount := 0
	for model, count := range counts {
		if count > bestCount || (count == bestCount && best != "" && strings.Compare(model, best) < 0) {
			best = model
			bestCount = count
		}
	}
	return best
}

func topModels(counts map[string]int, n int) []domain.ModelUsage {
	usage := make([]domain.ModelUsage, 0, len(counts))
	for model, count := range counts {
		usage = append(usage, domain.ModelUsage{Model: model, Count: count})
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Count != usage[j].Count {
			return usage[i].Count > usage[j].Count
		}
		return usage[i].Model < usage[j].Model
	})
	if len(usage) > n {
		usage = usage[:n]
	}
	return usage
}
