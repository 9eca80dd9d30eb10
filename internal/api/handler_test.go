package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcrm/automation/internal/action"
	"github.com/nexcrm/automation/internal/config"
	"github.com/nexcrm/automation/internal/engine"
	"github.com/nexcrm/automation/internal/rule"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg, err := rule.NewRegistry(rule.NewMemoryStore())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := action.DefaultTable(action.LocalCollaborators(logger))
	eng := engine.New(config.Default().Engine, reg, table, logger)

	srv := httptest.NewServer(New(eng))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, tenant string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func sampleRule(name string) map[string]any {
	return map[string]any{
		"name": name,
		"trigger": map[string]any{
			"type":  "event",
			"event": "lead.created",
		},
		"conditions": map[string]any{
			"field":    "score",
			"operator": "gte",
			"value":    80,
		},
		"actions": []map[string]any{
			{"type": "task", "parameters": map[string]any{"title": "call the lead"}},
		},
		"priority": 10,
		"isActive": true,
	}
}

func TestRulesCRUDOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, srv, "POST", "/api/automation/rules", "t1", sampleRule("hot lead"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "t1", created["tenantId"])

	resp, got := doJSON(t, srv, "GET", "/api/automation/rules/"+id, "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hot lead", got["name"])

	update := sampleRule("renamed")
	resp, updated := doJSON(t, srv, "PUT", "/api/automation/rules/"+id, "t1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "renamed", updated["name"])

	resp, listed := doJSON(t, srv, "GET", "/api/automation/rules", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, listed["count"])

	resp, _ = doJSON(t, srv, "DELETE", "/api/automation/rules/"+id, "t1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, "GET", "/api/automation/rules/"+id, "t1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleEndpointsRequireTenant(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, srv, "GET", "/api/automation/rules", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "X-Tenant-ID")
}

func TestCreateRuleValidationFailure(t *testing.T) {
	srv := newTestServer(t)

	bad := sampleRule("bad")
	bad["actions"] = []map[string]any{}
	resp, body := doJSON(t, srv, "POST", "/api/automation/rules", "t1", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["error"], "action")
}

func TestRulesAreTenantScoped(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, srv, "POST", "/api/automation/rules", "t1", sampleRule("r"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)

	resp, _ = doJSON(t, srv, "GET", "/api/automation/rules/"+id, "t2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBulkCreate(t *testing.T) {
	srv := newTestServer(t)

	bad := sampleRule("broken")
	bad["trigger"] = map[string]any{"type": "event"}
	payload := []map[string]any{sampleRule("a"), bad, sampleRule("b")}

	resp, body := doJSON(t, srv, "POST", "/api/automation/rules/bulk", "t1", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, body["created"], 2)
	failures := body["failures"].([]any)
	require.Len(t, failures, 1)
	fail := failures[0].(map[string]any)
	assert.EqualValues(t, 1, fail["index"])
	assert.Equal(t, "broken", fail["name"])
}

func TestExportStripsMetadata(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/automation/rules", "t1", sampleRule("r"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, "GET", "/api/automation/rules/export", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "automation-rules.json")

	rules := body["rules"].([]any)
	require.Len(t, rules, 1)
	meta := rules[0].(map[string]any)["metadata"].(map[string]any)
	assert.EqualValues(t, 0, meta["executionCount"])
}

func TestTestRuleEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, srv, "POST", "/api/automation/rules", "t1", sampleRule("r"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)

	resp, body := doJSON(t, srv, "POST", fmt.Sprintf("/api/automation/rules/%s/test", id), "t1",
		map[string]any{"payload": map[string]any{"score": 95}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["conditionsMatch"])

	resp, body = doJSON(t, srv, "POST", fmt.Sprintf("/api/automation/rules/%s/test", id), "t1",
		map[string]any{"payload": map[string]any{"score": 12}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["conditionsMatch"])
}

func TestPublishEvent(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, "POST", "/api/automation/events", "t1",
		map[string]any{"name": "lead.created", "payload": map[string]any{"id": "lead-1"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["eventId"])
	assert.Equal(t, true, body["known"])

	resp, body = doJSON(t, srv, "POST", "/api/automation/events", "t1",
		map[string]any{"name": "custom.thing"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, false, body["known"])

	resp, _ = doJSON(t, srv, "POST", "/api/automation/events", "t1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventDefinitions(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, "GET", "/api/automation/events/definitions", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defs := body["definitions"].([]any)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "lead.created")
	assert.Contains(t, names, "deal.stage_changed")
}

func TestMetricsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, "GET", "/api/automation/metrics", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "queueSize")
	assert.Contains(t, body, "isProcessing")

	resp, body = doJSON(t, srv, "GET", "/api/automation/health", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = doJSON(t, srv, "GET", "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestExecutionsLimitValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, srv, "GET", "/api/automation/executions", "t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])

	resp, _ = doJSON(t, srv, "GET", "/api/automation/executions?limit=abc", "t1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
