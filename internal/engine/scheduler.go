package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/metrics"
	"github.com/nexcrm/automation/internal/rule"
)

// Scheduler owns a cron runner and keeps one entry per active
// schedule-triggered rule. Sync diffs the registry's current set against the
// running entries so rule CRUD takes effect without a restart.
type Scheduler struct {
	registry *rule.Registry
	bus      *Bus
	cron     *cron.Cron
	log      *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // rule ID -> cron entry
	specs   map[string]string       // rule ID -> cron spec currently registered
}

func NewScheduler(reg *rule.Registry, bus *Bus, log *slog.Logger) *Scheduler {
	return &Scheduler{
		registry: reg,
		bus:      bus,
		cron:     cron.New(),
		log:      log,
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
	}
}

func (s *Scheduler) Start() {
	s.Sync()
	s.cron.Start()
}

// Stop halts the cron runner and waits for in-flight fires to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sync reconciles cron entries with the registry's active schedule-triggered
// rules. Called at startup and whenever a schedule rule changes.
func (s *Scheduler) Sync() {
	rules, err := s.registry.ListScheduled()
	if err != nil {
		s.log.Error("scheduled rule listing failed", "err", err)
		return
	}

	want := make(map[string]*rule.Rule, len(rules))
	for _, r := range rules {
		if r.Active {
			want[r.ID] = r
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		r, ok := want[id]
		if ok && s.specs[id] == r.Trigger.Schedule {
			continue
		}
		s.cron.Remove(entryID)
		delete(s.entries, id)
		delete(s.specs, id)
	}

	for id, r := range want {
		if _, ok := s.entries[id]; ok {
			continue
		}
		r := r
		entryID, err := s.cron.AddFunc(r.Trigger.Schedule, func() { s.fire(r.TenantID, r.ID) })
		if err != nil {
			// Validate rejects bad specs at write time, so this is a bug.
			s.log.Error("cron registration failed", "rule", id, "spec", r.Trigger.Schedule, "err", err)
			continue
		}
		s.entries[id] = entryID
		s.specs[id] = r.Trigger.Schedule
	}
}

// fire runs one schedule tick: re-fetch the rule, synthesize a tick event,
// and offer it through the normal match path.
func (s *Scheduler) fire(tenantID, ruleID string) {
	r, err := s.registry.Get(tenantID, ruleID)
	if err != nil || !r.Active {
		return
	}
	metrics.SchedulerTicks.Inc()
	ev := event.New(tenantID, event.ScheduleTick, map[string]any{
		"ruleId":  ruleID,
		"firedAt": time.Now().UTC().Format(time.RFC3339),
	})
	s.bus.Offer(r, ev)
}
