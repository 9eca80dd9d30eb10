package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexcrm/automation/internal/engine"
	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/rule"
)

const maxBulkSize = 100

// tenantHeader carries the caller's tenant; every data route requires it.
const tenantHeader = "X-Tenant-ID"

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng *engine.Engine
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine) http.Handler {
	h := &Handler{eng: eng}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/automation", func(r chi.Router) {
		r.Use(requireTenant)

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", h.createRule)
			r.Get("/", h.listRules)
			r.Get("/export", h.exportRules)
			r.Post("/bulk", h.bulkCreateRules)

			r.Route("/{ruleId}", func(r chi.Router) {
				r.Get("/", h.getRule)
				r.Put("/", h.updateRule)
				r.Delete("/", h.deleteRule)
				r.Post("/test", h.testRule)
			})
		})

		r.Post("/events", h.publishEvent)
		r.Get("/events/definitions", h.eventDefinitions)
		r.Get("/executions", h.listExecutions)
		r.Get("/metrics", h.engineMetrics)
		r.Get("/health", h.health)
	})

	return r
}

// requireTenant rejects data requests that do not identify a tenant.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(tenantHeader) == "" {
			writeError(w, http.StatusBadRequest, tenantHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tenantID(r *http.Request) string { return r.Header.Get(tenantHeader) }

// POST /api/automation/rules
func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var ru rule.Rule
	if err := json.NewDecoder(r.Body).Decode(&ru); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	ru.TenantID = tenantID(r)

	created, err := h.eng.Registry().Create(&ru)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GET /api/automation/rules
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.eng.Registry().List(tenantID(r))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	if rules == nil {
		rules = []*rule.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GET /api/automation/rules/export — download all rules as a portable
// document, metadata stripped.
func (h *Handler) exportRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.eng.Registry().List(tenantID(r))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	out := make([]*rule.Rule, 0, len(rules))
	for _, ru := range rules {
		c := ru.Clone()
		c.Metadata = rule.Metadata{}
		out = append(out, c)
	}
	w.Header().Set("Content-Disposition", `attachment; filename="automation-rules.json"`)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exportedAt": time.Now().UTC(),
		"rules":      out,
	})
}

// POST /api/automation/rules/bulk — all-or-nothing apart from validation:
// each rule is created independently and failures are reported per index.
func (h *Handler) bulkCreateRules(w http.ResponseWriter, r *http.Request) {
	var rules []*rule.Rule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(rules) == 0 {
		writeError(w, http.StatusBadRequest, "bulk request must contain at least one rule")
		return
	}
	if len(rules) > maxBulkSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bulk size %d exceeds max %d", len(rules), maxBulkSize))
		return
	}

	tenant := tenantID(r)
	created := make([]*rule.Rule, 0, len(rules))
	failures := make([]map[string]interface{}, 0)
	for i, ru := range rules {
		ru.TenantID = tenant
		c, err := h.eng.Registry().Create(ru)
		if err != nil {
			failures = append(failures, map[string]interface{}{
				"index": i,
				"name":  ru.Name,
				"error": err.Error(),
			})
			continue
		}
		created = append(created, c)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"created":  created,
		"failures": failures,
		"total":    len(rules),
	})
}

// GET /api/automation/rules/{ruleId}
func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	ru, err := h.eng.Registry().Get(tenantID(r), chi.URLParam(r, "ruleId"))
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ru)
}

// PUT /api/automation/rules/{ruleId}
func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var ru rule.Rule
	if err := json.NewDecoder(r.Body).Decode(&ru); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	ru.ID = chi.URLParam(r, "ruleId")
	ru.TenantID = tenantID(r)

	updated, err := h.eng.Registry().Update(&ru)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DELETE /api/automation/rules/{ruleId}
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Registry().Delete(tenantID(r), chi.URLParam(r, "ruleId")); err != nil {
		writeRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/automation/rules/{ruleId}/test — dry-run a rule's conditions
// against a sample payload. No actions run, no counters move.
func (h *Handler) testRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	match, err := h.eng.TestRule(tenantID(r), chi.URLParam(r, "ruleId"), body.Payload)
	if err != nil {
		writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conditionsMatch": match,
	})
}

// POST /api/automation/events — ingest one domain event.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string                 `json:"name"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "event name is required")
		return
	}

	id := h.eng.Publish(tenantID(r), body.Name, body.Payload)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"eventId": id,
		"known":   event.Known(body.Name),
	})
}

// GET /api/automation/events/definitions
func (h *Handler) eventDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"definitions": event.Definitions(),
	})
}

// GET /api/automation/executions?limit=N — recent execution records, newest
// first.
func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	recs := h.eng.Collector().Executions(tenantID(r), limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": recs,
		"count":      len(recs),
	})
}

// GET /api/automation/metrics — per-rule aggregates plus queue state.
func (h *Handler) engineMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Collector().Snapshot(tenantID(r)))
}

// GET /api/automation/health — engine-level health with queue visibility.
// Degraded when more than half of the tenant's recorded executions failed.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.eng.Collector().Snapshot(tenantID(r))

	var executions, failures int64
	for _, st := range snap.Rules {
		executions += st.ExecutionCount
		failures += st.FailureCount
	}
	status := "ok"
	var failureRate float64
	if executions > 0 {
		failureRate = float64(failures) / float64(executions)
		if failureRate > 0.5 {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"queueSize":    snap.QueueSize,
		"isProcessing": snap.IsProcessing,
		"executions":   executions,
		"failureRate":  failureRate,
	})
}

// GET /healthz — liveness probe, no tenant required.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
