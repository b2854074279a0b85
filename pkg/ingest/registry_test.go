package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanhouse/spanhouse/pkg/domain"
)

func resourceWith(attrs map[string]string) domain.Resource {
	values := make(map[string]domain.AttributeValue, len(attrs))
	for k, v := range attrs {
		values[k] = domain.StringValue(v)
	}
	return domain.Resource{Attributes: values}
}

func TestUpsertCreatesAndRefreshes(t *testing.T) {
	registry := NewServiceRegistry()
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return clock }

	registry.Upsert(resourceWith(map[string]string{
		domain.AttrServiceName:    "chat-api",
		domain.AttrServiceVersion: "1.2.0",
		domain.AttrSDKLanguage:    "python",
	}))

	info, ok := registry.Get("chat-api")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, "python", info.SDKLanguage)
	assert.Equal(t, clock, info.FirstSeen)
	assert.Equal(t, clock, info.LastSeen)

	// later export without version: last-seen advances, identity sticks
	clock = clock.Add(time.Minute)
	registry.Upsert(resourceWith(map[string]string{
		domain.AttrServiceName: "chat-api",
	}))

	info, ok = registry.Get("chat-api")
	require.True(t, ok)
	assert.Equal(t, "1.2.0", info.Version)
	assert.Equal(t, clock.Add(-time.Minute), info.FirstSeen)
	assert.Equal(t, clock, info.LastSeen)
	assert.Equal(t, 1, registry.Count())
}

func TestUpsertUnknownService(t *testing.T) {
	registry := NewServiceRegistry()
	registry.Upsert(domain.Resource{})

	info, ok := registry.Get(domain.UnknownService)
	require.True(t, ok)
	assert.Equal(t, domain.UnknownService, info.Name)
}

func TestListSortedByName(t *testing.T) {
	registry := NewServiceRegistry()
	for _, name := range []string{"worker", "api", "gateway"} {
		registry.Upsert(resourceWith(map[string]string{domain.AttrServiceName: name}))
	}

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "api", list[0].Name)
	assert.Equal(t, "gateway", list[1].Name)
	assert.Equal(t, "worker", list[2].Name)
}

func TestGetMissing(t *testing.T) {
	registry := NewServiceRegistry()
	_, ok := registry.Get("absent")
	assert.False(t, ok)
}
