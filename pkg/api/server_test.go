package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanhouse/spanhouse/pkg/aggregate"
	"github.com/spanhouse/spanhouse/pkg/domain"
	"github.com/spanhouse/spanhouse/pkg/ingest"
	"github.com/spanhouse/spanhouse/pkg/live"
	"github.com/spanhouse/spanhouse/pkg/schema"
	"github.com/spanhouse/spanhouse/pkg/storage"
)

const apiTracesJSON = `{
  "resourceSpans": [{
    "resource": {"attributes": [
      {"key": "service.name", "value": {"stringValue": "chat-api"}}
    ]},
    "scopeSpans": [{
      "spans": [{
        "traceId": "0af7651916cd43dd8448eb211c80319c",
        "spanId": "b7ad6b7169203331",
        "name": "chat completion",
        "kind": 3,
        "startTimeUnixNano": "1714521600000000000",
        "endTimeUnixNano": "1714521601000000000",
        "attributes": [
          {"key": "session.id", "value": {"stringValue": "sess-1"}},
          {"key": "gen_ai.usage.input_tokens", "value": {"intValue": "120"}},
          {"key": "gen_ai.usage.output_tokens", "value": {"intValue": "45"}}
        ]
      }]
    }]
  }]
}`

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	registry := ingest.NewServiceRegistry()
	sessions := aggregate.NewSessionAggregator(aggregate.DefaultSessionConfig(), nil)
	traces := aggregate.NewTraceAggregator(aggregate.DefaultTraceConfig(), nil)
	broadcaster := live.NewBroadcaster(10, nil)
	t.Cleanup(broadcaster.Close)

	handler := ingest.NewHandler(store, registry, sessions, traces, broadcaster, nil, nil)
	planner := schema.NewPlanner(store, nil)
	executor := schema.NewExecutor(store, store, nil)
	sse := live.NewSSEHandler(broadcaster, nil)

	return NewServer(handler, registry, sessions, traces, store, sse, planner, executor, nil, nil), store
}

func doRequest(t *testing.T, routes http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	return rec
}

func ingestSampleTraces(t *testing.T, routes http.Handler) {
	t.Helper()
	rec := doRequest(t, routes, http.MethodPost, "/v1/traces", "application/json", apiTracesJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestExportTracesEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodPost, "/v1/traces", "application/json", apiTracesJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "partialSuccess")

	spans, err := store.QuerySpans(t.Context(), storage.SpanFilter{})
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestExportRejectsUnsupportedContentType(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodPost, "/v1/traces", "text/plain", apiTracesJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Code)
}

func TestExportRejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodPost, "/v1/logs", "application/json", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()
	ingestSampleTraces(t, routes)

	rec := doRequest(t, routes, http.MethodGet, "/api/v1/sessions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []domain.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "sess-1", list.Sessions[0].SessionID)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/sessions/sess-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, int64(165), session.TotalTokens)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/sessions/absent", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/sessions/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.SessionStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.SessionCount)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/sessions?from=not-a-time", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTraceEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()
	ingestSampleTraces(t, routes)

	rec := doRequest(t, routes, http.MethodGet, "/api/v1/traces/0af7651916cd43dd8448eb211c80319c", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trace domain.Trace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trace))
	assert.Equal(t, 1, trace.SpanCount)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/traces/ffff", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchemaPromotionFlow(t *testing.T) {
	server, store := newTestServer(t)
	routes := server.Routes()

	body := `{"targetTable":"spans","changeType":"add_column","targetColumn":"cost_usd","columnType":"Float64","requestedBy":"ops"}`
	rec := doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var planned domain.SchemaPromotion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &planned))
	assert.Equal(t, domain.PromotionPending, planned.Status)
	assert.True(t, strings.HasPrefix(planned.PromotionID, "promo-"))

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/schema/promotions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), planned.PromotionID)

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/schema/promotions/"+planned.PromotionID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions/"+planned.PromotionID+"/apply", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var applied domain.SchemaPromotion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, domain.PromotionApplied, applied.Status)
	assert.Len(t, store.ExecutedDDL(), 1)

	// re-applying a terminal record conflicts
	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions/"+planned.PromotionID+"/apply", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSchemaPromotionValidationErrors(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions", "application/json", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions", "application/json", `{"changeType":"add_column"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"targetTable":"spans","changeType":"drop_column","targetColumn":"x","columnType":"String"}`
	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = `{"targetTable":"spans; DROP TABLE spans","changeType":"add_column","targetColumn":"x","columnType":"String"}`
	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_IDENTIFIER", resp.Code)

	rec = doRequest(t, routes, http.MethodPost, "/api/v1/schema/promotions/promo-missing/apply", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServicesAndStatsEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()
	ingestSampleTraces(t, routes)

	rec := doRequest(t, routes, http.MethodGet, "/api/v1/services", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat-api")

	rec = doRequest(t, routes, http.MethodGet, "/api/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Sessions int `json:"sessions"`
		Traces   int `json:"traces"`
		Services int `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Traces)
	assert.Equal(t, 1, stats.Services)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	routes := server.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/v1/traces", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
