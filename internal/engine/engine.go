package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexcrm/automation/internal/action"
	"github.com/nexcrm/automation/internal/condition"
	"github.com/nexcrm/automation/internal/config"
	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/metrics"
	"github.com/nexcrm/automation/internal/rule"
)

// Engine wires the registry, event bus, worker pool, scheduler and execution
// collector into one unit with a single lifecycle.
type Engine struct {
	registry  *rule.Registry
	bus       *Bus
	pool      *Pool
	scheduler *Scheduler
	collector *metrics.Collector
	log       *slog.Logger
}

func New(cfg config.EngineConf, reg *rule.Registry, table *action.Table, log *slog.Logger) *Engine {
	collector := metrics.NewCollector(cfg.ExecutionHistory, reg)
	bus := NewBus(reg, cfg.QueueDepth, time.Duration(cfg.EnqueueTimeoutMs)*time.Millisecond, log)
	pool := NewPool(reg, table, collector, cfg.Workers, log)
	pool.SetTunables(
		time.Duration(cfg.ActionTimeoutMs)*time.Millisecond,
		time.Duration(cfg.RetryBaseMs)*time.Millisecond,
		cfg.MaxRetries,
	)

	e := &Engine{
		registry:  reg,
		bus:       bus,
		pool:      pool,
		scheduler: NewScheduler(reg, bus, log),
		collector: collector,
		log:       log,
	}
	collector.SetProbes(bus.QueueDepth, pool.Processing)
	reg.OnScheduleChange(e.scheduler.Sync)
	return e
}

// Start launches the workers and the cron scheduler.
func (e *Engine) Start(ctx context.Context) {
	e.pool.Start(ctx, e.bus)
	e.scheduler.Start()
	e.log.Info("automation engine started", "workers", e.pool.workers, "queue", cap(e.bus.queue))
}

// Shutdown stops intake and drains queued jobs. Scheduler first so no new
// ticks arrive, then the bus closes and workers finish what is queued.
func (e *Engine) Shutdown() {
	e.scheduler.Stop()
	e.bus.Close()
	e.pool.Wait()
	e.log.Info("automation engine stopped")
}

// Publish ingests one domain event and returns its assigned ID.
func (e *Engine) Publish(tenantID, eventName string, payload map[string]any) string {
	return e.bus.Publish(tenantID, eventName, payload)
}

// Emitter returns the typed publish helpers for CRM call sites.
func (e *Engine) Emitter() *event.Emitter {
	return event.NewEmitter(e)
}

// Registry exposes rule CRUD to the API layer.
func (e *Engine) Registry() *rule.Registry { return e.registry }

// Collector exposes execution stats to the API layer.
func (e *Engine) Collector() *metrics.Collector { return e.collector }

// TestRule evaluates a stored rule's conditions against a caller-supplied
// payload without dispatching actions or touching metadata.
func (e *Engine) TestRule(tenantID, ruleID string, payload map[string]any) (bool, error) {
	r, err := e.registry.Get(tenantID, ruleID)
	if err != nil {
		return false, err
	}
	if r.Trigger.Type == rule.TriggerCondition {
		ok, err := condition.Evaluate(r.Trigger.Condition, payload)
		if err != nil || !ok {
			return false, err
		}
	}
	return condition.Evaluate(r.Conditions, payload)
}

// ApplyConf picks up hot-reloadable engine settings. Worker count and queue
// depth are fixed at startup.
func (e *Engine) ApplyConf(cfg config.EngineConf) {
	e.bus.SetEnqueueTimeout(time.Duration(cfg.EnqueueTimeoutMs) * time.Millisecond)
	e.pool.SetTunables(
		time.Duration(cfg.ActionTimeoutMs)*time.Millisecond,
		time.Duration(cfg.RetryBaseMs)*time.Millisecond,
		cfg.MaxRetries,
	)
	e.collector.SetHistory(cfg.ExecutionHistory)
}
