package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

func traceSpan(traceID, spanID, parentID, service string, start time.Time) domain.Span {
	return domain.Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentID,
		Name:         "op",
		StartTime:    start,
		EndTime:      start.Add(50 * time.Millisecond),
		Resource: domain.Resource{Attributes: map[string]domain.AttributeValue{
			domain.AttrServiceName: domain.StringValue(service),
		}},
	}
}

func TestTraceRootAndOrdering(t *testing.T) {
	agg := NewTraceAggregator(DefaultTraceConfig(), nil)
	start := time.Now().Add(-time.Minute)

	// arrive out of order, child before root
	agg.AddSpan(traceSpan("t1", "child", "root", "worker", start.Add(10*time.Millisecond)))
	agg.AddSpan(traceSpan("t1", "root", "", "gateway", start))

	trace, err := agg.GetTrace("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, trace.SpanCount)
	require.NotNil(t, trace.RootSpan)
	assert.Equal(t, "root", trace.RootSpan.SpanID)
	assert.Equal(t, "root", trace.Spans[0].SpanID)
	assert.Equal(t, start, trace.StartTime)
	assert.Equal(t, []string{"gateway", "worker"}, trace.Services)
	assert.Equal(t, domain.StatusOK, trace.Status)
}

func TestTraceWithoutUniqueRoot(t *testing.T) {
	agg := NewTraceAggregator(DefaultTraceConfig(), nil)
	start := time.Now()

	// two parentless spans: partial trace, no root
	agg.AddSpan(traceSpan("t1", "a", "", "api", start))
	agg.AddSpan(traceSpan("t1", "b", "", "api", start.Add(time.Millisecond)))

	trace, err := agg.GetTrace("t1")
	require.NoError(t, err)
	assert.Nil(t, trace.RootSpan)
	assert.Equal(t, 2, trace.SpanCount)
}

func TestTraceErrorStatus(t *testing.T) {
	agg := NewTraceAggregator(DefaultTraceConfig(), nil)
	start := time.Now()

	agg.AddSpan(traceSpan("t1", "root", "", "api", start))
	failed := traceSpan("t1", "child", "root", "api", start.Add(time.Millisecond))
	failed.Status = domain.SpanStatus{Code: domain.StatusError, Message: "timeout"}
	agg.AddSpan(failed)

	trace, err := agg.GetTrace("t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, trace.Status)
	assert.Equal(t, 1, trace.ErrorCount)
}

func TestGetTraceNotFound(t *testing.T) {
	agg := NewTraceAggregator(DefaultTraceConfig(), nil)
	_, err := agg.GetTrace("absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTraceEvictionBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ceiling := rapid.IntRange(1, 20).Draw(t, "ceiling")
		numTraces := rapid.IntRange(1, 60).Draw(t, "num_traces")

		agg := NewTraceAggregator(TraceConfig{MaxTraces: ceiling, TTL: time.Hour}, nil)
		start := time.Now()
		for i := 0; i < numTraces; i++ {
			agg.AddSpan(traceSpan(fmt.Sprintf("trace-%d", i), "root", "", "api",
				start.Add(time.Duration(i)*time.Millisecond)))
		}

		assert.LessOrEqual(t, agg.Count(), ceiling)
	})
}

func TestTraceEvictionKeepsNewest(t *testing.T) {
	agg := NewTraceAggregator(TraceConfig{MaxTraces: 2, TTL: time.Hour}, nil)
	start := time.Now()

	agg.AddSpan(traceSpan("old", "a", "", "api", start.Add(-30*time.Minute)))
	agg.AddSpan(traceSpan("mid", "b", "", "api", start.Add(-20*time.Minute)))
	agg.AddSpan(traceSpan("new", "c", "", "api", start))

	assert.Equal(t, 2, agg.Count())
	_, err := agg.GetTrace("old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = agg.GetTrace("new")
	assert.NoError(t, err)
}

func TestTraceEvictHookReportsReasons(t *testing.T) {
	agg := NewTraceAggregator(TraceConfig{MaxTraces: 2, TTL: time.Hour}, nil)
	reasons := map[string]int{}
	agg.SetEvictHook(func(reason string) { reasons[reason]++ })
	start := time.Now()

	agg.AddSpan(traceSpan("expired", "a", "", "api", start.Add(-2*time.Hour)))
	agg.AddSpan(traceSpan("live-1", "b", "", "api", start.Add(-time.Minute)))
	agg.AddSpan(traceSpan("live-2", "c", "", "api", start))
	assert.Equal(t, map[string]int{EvictReasonTTL: 1}, reasons)

	agg.AddSpan(traceSpan("live-3", "d", "", "api", start.Add(time.Second)))
	assert.Equal(t, map[string]int{EvictReasonTTL: 1, EvictReasonCapacity: 1}, reasons)
}

func TestTracePurgeOlderThan(t *testing.T) {
	agg := NewTraceAggregator(DefaultTraceConfig(), nil)
	start := time.Now()

	agg.AddSpan(traceSpan("stale", "a", "", "api", start.Add(-48*time.Hour)))
	agg.AddSpan(traceSpan("fresh", "b", "", "api", start))

	removed := agg.PurgeOlderThan(start.Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, agg.Count())
}
