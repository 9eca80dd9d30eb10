package metrics

import (
	"sync"
	"time"

	"github.com/nexcrm/automation/internal/action"
	"github.com/nexcrm/automation/internal/rule"
)

// Outcome classifies one rule execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success" // all actions succeeded
	OutcomePartial Outcome = "partial" // some succeeded, some failed
	OutcomeFailed  Outcome = "failed"  // all failed
	OutcomeSkipped Outcome = "skipped" // rule deactivated after enqueue
)

// Record is the append-only audit entry for one execution.
type Record struct {
	RuleID     string          `json:"ruleId"`
	TenantID   string          `json:"tenantId"`
	EventName  string          `json:"eventName"`
	StartedAt  time.Time       `json:"startedAt"`
	DurationMs int64           `json:"durationMs"`
	Outcome    Outcome         `json:"outcome"`
	Actions    []action.Result `json:"perActionResults"`
}

// RuleStats are the running aggregates kept per rule. The duration average is
// an exponential moving average so memory stays constant regardless of
// execution count.
type RuleStats struct {
	RuleID         string  `json:"ruleId"`
	ExecutionCount int64   `json:"executionCount"`
	SuccessCount   int64   `json:"successCount"`
	FailureCount   int64   `json:"failureCount"`
	SkippedCount   int64   `json:"skippedCount"`
	AvgDurationMs  float64 `json:"averageExecutionTime"`
}

// Snapshot is the dashboard view for one tenant.
type Snapshot struct {
	Rules        []RuleStats `json:"rules"`
	QueueSize    int         `json:"queueSize"`
	IsProcessing bool        `json:"isProcessing"`
}

// emaAlpha weights new samples in the moving duration average.
const emaAlpha = 0.2

// MetadataSink receives per-rule aggregate updates; the rule registry
// implements it. This is the only path that mutates rule.Metadata.
type MetadataSink interface {
	ApplyExecution(tenantID, ruleID string, apply func(*rule.Metadata)) error
}

// Collector aggregates execution outcomes. Shared between all workers, so
// every access is mutex-guarded.
type Collector struct {
	mu      sync.Mutex
	stats   map[string]map[string]*RuleStats // tenantID → ruleID → stats
	records map[string][]Record              // tenantID → bounded window, newest first

	historyLimit int
	sink         MetadataSink

	queueDepth func() int
	processing func() bool
}

// NewCollector creates a Collector keeping at most historyLimit records per
// tenant. sink may be nil (tests).
func NewCollector(historyLimit int, sink MetadataSink) *Collector {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Collector{
		stats:        make(map[string]map[string]*RuleStats),
		records:      make(map[string][]Record),
		historyLimit: historyLimit,
		sink:         sink,
	}
}

// SetHistory adjusts the per-tenant audit window size. Existing windows are
// trimmed lazily on the next Record.
func (c *Collector) SetHistory(limit int) {
	if limit <= 0 {
		return
	}
	c.mu.Lock()
	c.historyLimit = limit
	c.mu.Unlock()
}

// SetProbes wires the live queue-depth and busy-worker probes used by
// Snapshot. Observability only; nothing reads these for control flow.
func (c *Collector) SetProbes(queueDepth func() int, processing func() bool) {
	c.mu.Lock()
	c.queueDepth = queueDepth
	c.processing = processing
	c.mu.Unlock()
}

// Record folds one execution into the aggregates, the bounded audit window,
// the Prometheus counters, and the rule's stored metadata.
func (c *Collector) Record(rec Record) {
	ExecutionsTotal.WithLabelValues(string(rec.Outcome)).Inc()
	if rec.Outcome != OutcomeSkipped {
		ExecutionDuration.Observe(float64(rec.DurationMs))
	}
	for _, ar := range rec.Actions {
		status := "success"
		if !ar.Success {
			status = "error"
		}
		ActionsExecuted.WithLabelValues(string(ar.Type), status).Inc()
	}

	c.mu.Lock()
	byRule, ok := c.stats[rec.TenantID]
	if !ok {
		byRule = make(map[string]*RuleStats)
		c.stats[rec.TenantID] = byRule
	}
	st, ok := byRule[rec.RuleID]
	if !ok {
		st = &RuleStats{RuleID: rec.RuleID}
		byRule[rec.RuleID] = st
	}
	applyOutcome(st, rec)

	window := append([]Record{rec}, c.records[rec.TenantID]...)
	if len(window) > c.historyLimit {
		window = window[:c.historyLimit]
	}
	c.records[rec.TenantID] = window
	c.mu.Unlock()

	if c.sink != nil && rec.Outcome != OutcomeSkipped {
		started := rec.StartedAt
		// Errors here mean the rule vanished mid-flight; nothing to update.
		_ = c.sink.ApplyExecution(rec.TenantID, rec.RuleID, func(m *rule.Metadata) {
			m.ExecutionCount++
			m.LastExecuted = &started
			switch rec.Outcome {
			case OutcomeSuccess:
				m.SuccessCount++
			case OutcomeFailed, OutcomePartial:
				m.FailureCount++
			}
			m.AvgExecutionMs = ema(m.AvgExecutionMs, float64(rec.DurationMs), m.ExecutionCount)
		})
	}
}

func applyOutcome(st *RuleStats, rec Record) {
	if rec.Outcome == OutcomeSkipped {
		st.SkippedCount++
		return
	}
	st.ExecutionCount++
	switch rec.Outcome {
	case OutcomeSuccess:
		st.SuccessCount++
	case OutcomePartial, OutcomeFailed:
		st.FailureCount++
	}
	st.AvgDurationMs = ema(st.AvgDurationMs, float64(rec.DurationMs), st.ExecutionCount)
}

// ema seeds the average with the first sample, then decays.
func ema(current, sample float64, count int64) float64 {
	if count <= 1 {
		return sample
	}
	return current + emaAlpha*(sample-current)
}

// Snapshot returns the per-rule aggregates for a tenant plus global queue
// state.
func (c *Collector) Snapshot(tenantID string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{}
	for _, st := range c.stats[tenantID] {
		snap.Rules = append(snap.Rules, *st)
	}
	if c.queueDepth != nil {
		snap.QueueSize = c.queueDepth()
	}
	if c.processing != nil {
		snap.IsProcessing = c.processing()
	}
	return snap
}

// Executions returns the bounded audit window for a tenant, newest first.
func (c *Collector) Executions(tenantID string, limit int) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.records[tenantID]
	if limit <= 0 || limit > len(window) {
		limit = len(window)
	}
	out := make([]Record, limit)
	copy(out, window[:limit])
	return out
}
