package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nexcrm/automation/internal/condition"
	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/metrics"
	"github.com/nexcrm/automation/internal/rule"
)

// Job is one matched (rule, event) pairing awaiting worker processing. It is
// owned exclusively by the worker pool once dequeued.
type Job struct {
	RuleID     string
	TenantID   string
	Event      *event.Event
	EnqueuedAt time.Time
}

// Bus accepts domain events, looks up subscribed rules, and enqueues matched
// pairs onto one bounded queue. Publish is called synchronously from
// request-handling code and returns once every matched job is enqueued (or
// dropped after the backpressure timeout).
type Bus struct {
	registry       *rule.Registry
	queue          chan *Job
	enqueueTimeout atomic.Int64 // milliseconds
	log            *slog.Logger
}

func NewBus(reg *rule.Registry, queueDepth int, enqueueTimeout time.Duration, log *slog.Logger) *Bus {
	b := &Bus{
		registry: reg,
		queue:    make(chan *Job, queueDepth),
		log:      log,
	}
	b.enqueueTimeout.Store(enqueueTimeout.Milliseconds())
	return b
}

// Publish runs the match path for one event: indexed rule lookup, active
// filter, synchronous condition evaluation in priority order, enqueue on
// match. Returns the event ID.
func (b *Bus) Publish(tenantID, eventName string, payload map[string]any) string {
	ev := event.New(tenantID, eventName, payload)
	metrics.EventsPublished.Inc()

	if !event.Known(eventName) {
		b.log.Warn("unknown event name", "event", eventName, "tenant", tenantID)
	}

	rules, err := b.registry.ListByEvent(tenantID, eventName)
	if err != nil {
		b.log.Error("rule lookup failed", "event", eventName, "tenant", tenantID, "err", err)
		return ev.ID
	}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		b.Offer(r, ev)
	}
	metrics.QueueDepth.Set(float64(len(b.queue)))
	return ev.ID
}

// Offer evaluates a single rule against an event and enqueues a job on
// match. Also the entry point for the scheduler's synthetic ticks. Returns
// whether a job was enqueued.
func (b *Bus) Offer(r *rule.Rule, ev *event.Event) bool {
	// Condition-triggered rules carry an extra gate checked before the
	// rule's own condition tree.
	if r.Trigger.Type == rule.TriggerCondition {
		ok, err := condition.Evaluate(r.Trigger.Condition, ev.Payload)
		if err != nil {
			b.failClosed(r, ev, err)
			return false
		}
		if !ok {
			return false
		}
	}

	ok, err := condition.Evaluate(r.Conditions, ev.Payload)
	if err != nil {
		b.failClosed(r, ev, err)
		return false
	}
	if !ok {
		return false
	}

	metrics.RulesMatched.Inc()
	job := &Job{
		RuleID:     r.ID,
		TenantID:   r.TenantID,
		Event:      ev,
		EnqueuedAt: time.Now(),
	}

	select {
	case b.queue <- job:
		return true
	default:
	}

	// Queue full: block the publisher briefly, then drop this one pair and
	// make the drop visible. Never silent.
	timer := time.NewTimer(time.Duration(b.enqueueTimeout.Load()) * time.Millisecond)
	defer timer.Stop()
	select {
	case b.queue <- job:
		return true
	case <-timer.C:
		metrics.JobsDropped.Inc()
		b.log.Warn("job dropped due to backpressure",
			"rule", r.ID, "tenant", r.TenantID, "event", ev.Name)
		return false
	}
}

// failClosed handles a structurally corrupt stored rule at evaluation time:
// logged and treated as non-match instead of crashing the publish path.
func (b *Bus) failClosed(r *rule.Rule, ev *event.Event, err error) {
	b.log.Error("corrupt condition tree, rule fails closed",
		"rule", r.ID, "tenant", r.TenantID, "event", ev.Name, "err", err)
}

// SetEnqueueTimeout adjusts the backpressure timeout (hot-reload).
func (b *Bus) SetEnqueueTimeout(d time.Duration) {
	b.enqueueTimeout.Store(d.Milliseconds())
}

// QueueDepth returns how many jobs are currently queued.
func (b *Bus) QueueDepth() int { return len(b.queue) }

// Close stops accepting jobs; pending jobs remain drainable by the pool.
func (b *Bus) Close() { close(b.queue) }

func (b *Bus) jobs() <-chan *Job { return b.queue }
