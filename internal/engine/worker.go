package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nexcrm/automation/internal/action"
	"github.com/nexcrm/automation/internal/metrics"
	"github.com/nexcrm/automation/internal/rule"
)

// Pool runs a fixed set of workers over the bus queue. Per (rule, entity)
// execution order is serialized with a keyed lock so two events for the same
// record never interleave a rule's actions.
type Pool struct {
	registry  *rule.Registry
	table     *action.Table
	collector *metrics.Collector
	locks     *keyLocks
	log       *slog.Logger

	workers       int
	busy          atomic.Int64
	actionTimeout atomic.Int64 // milliseconds
	retryBase     atomic.Int64 // milliseconds
	maxRetries    atomic.Int64

	wg sync.WaitGroup
}

func NewPool(reg *rule.Registry, table *action.Table, col *metrics.Collector, workers int, log *slog.Logger) *Pool {
	p := &Pool{
		registry:  reg,
		table:     table,
		collector: col,
		locks:     newKeyLocks(),
		log:       log,
		workers:   workers,
	}
	p.actionTimeout.Store(10_000)
	p.retryBase.Store(1_000)
	p.maxRetries.Store(3)
	return p
}

// SetTunables applies hot-reloadable execution settings.
func (p *Pool) SetTunables(actionTimeout, retryBase time.Duration, maxRetries int) {
	p.actionTimeout.Store(actionTimeout.Milliseconds())
	p.retryBase.Store(retryBase.Milliseconds())
	p.maxRetries.Store(int64(maxRetries))
}

// Start launches the workers. They exit when the bus closes and its queue
// drains, or when ctx is cancelled.
func (p *Pool) Start(ctx context.Context, bus *Bus) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, bus)
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() { p.wg.Wait() }

// Processing reports whether any worker currently holds a job.
func (p *Pool) Processing() bool { return p.busy.Load() > 0 }

func (p *Pool) run(ctx context.Context, id int, bus *Bus) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-bus.jobs():
			if !ok {
				return
			}
			p.busy.Add(1)
			metrics.BusyWorkers.Inc()
			metrics.QueueDepth.Set(float64(bus.QueueDepth()))
			p.execute(ctx, log, job)
			p.busy.Add(-1)
			metrics.BusyWorkers.Dec()
		}
	}
}

func (p *Pool) execute(ctx context.Context, log *slog.Logger, job *Job) {
	rec := metrics.Record{
		RuleID:    job.RuleID,
		TenantID:  job.TenantID,
		EventName: job.Event.Name,
	}

	// Re-fetch: the rule may have been updated or disabled while queued.
	r, err := p.registry.Get(job.TenantID, job.RuleID)
	if err != nil || !r.Active {
		rec.StartedAt = time.Now()
		rec.Outcome = metrics.OutcomeSkipped
		p.collector.Record(rec)
		return
	}

	key := job.RuleID + "/" + job.Event.EntityID
	p.locks.Acquire(key)
	defer p.locks.Release(key)

	rec.StartedAt = time.Now()
	results := make([]action.Result, 0, len(r.Actions))
	failed := 0
	for _, act := range r.Actions {
		res := p.runAction(ctx, log, act, job)
		results = append(results, res)
		if !res.Success {
			failed++
		}
	}
	rec.DurationMs = time.Since(rec.StartedAt).Milliseconds()
	rec.Actions = results

	switch {
	case failed == 0:
		rec.Outcome = metrics.OutcomeSuccess
	case failed == len(results):
		rec.Outcome = metrics.OutcomeFailed
	default:
		rec.Outcome = metrics.OutcomePartial
	}
	if rec.Outcome != metrics.OutcomeSuccess {
		log.Warn("rule execution finished with failures",
			"rule", r.ID, "tenant", r.TenantID, "event", job.Event.Name,
			"outcome", rec.Outcome, "failed", failed, "actions", len(results))
	}
	p.collector.Record(rec)
}

// runAction dispatches one action with in-place exponential-backoff retries.
// Transient errors retry up to the configured limit; permanent errors stop
// immediately.
func (p *Pool) runAction(ctx context.Context, log *slog.Logger, act rule.Action, job *Job) action.Result {
	res := action.Result{ActionID: act.ID, Type: act.Type}
	timeout := time.Duration(p.actionTimeout.Load()) * time.Millisecond

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(p.retryBase.Load()) * time.Millisecond
	bo.Multiplier = 4
	bo.RandomizationFactor = 0

	start := time.Now()
	err := backoff.Retry(func() error {
		res.Attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := p.table.Dispatch(actx, act, job.Event)
		if err == nil {
			return nil
		}
		if action.IsTransient(err) {
			metrics.ActionRetries.Inc()
			log.Warn("action attempt failed, will retry",
				"rule", job.RuleID, "action", string(act.Type), "attempt", res.Attempts, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.maxRetries.Load())), ctx))

	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		log.Error("action failed",
			"rule", job.RuleID, "action", string(act.Type), "attempts", res.Attempts, "err", err)
		return res
	}
	res.Success = true
	return res
}
