package rule

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// conditionKey indexes condition-triggered rules, which are candidates for
// every event published in their tenant.
const conditionKey = "*"

// Registry is the catalog of rules per tenant. It wraps a Store with an
// in-memory event-name index so the bus can look up candidate rules without
// scanning. Schedule-triggered rules are not indexed here; the scheduler
// re-syncs from the registry whenever a rule changes.
type Registry struct {
	store Store

	mu      sync.RWMutex
	byEvent map[string][]string // tenantID+"/"+eventName (or "*") → rule IDs

	onScheduleChange func()
}

func NewRegistry(store Store) (*Registry, error) {
	reg := &Registry{
		store:   store,
		byEvent: make(map[string][]string),
	}
	if err := reg.rebuildIndex(); err != nil {
		return nil, err
	}
	return reg, nil
}

// OnScheduleChange registers the scheduler's resync hook. Invoked after any
// create/update/delete touching a schedule-triggered rule.
func (reg *Registry) OnScheduleChange(fn func()) {
	reg.mu.Lock()
	reg.onScheduleChange = fn
	reg.mu.Unlock()
}

// rebuildIndex recomputes the whole event index from the store. Called at
// startup; a failure here is fatal to the process.
func (reg *Registry) rebuildIndex() error {
	rules, err := reg.store.ListAll()
	if err != nil {
		return fmt.Errorf("registry: rebuild index: %w", err)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byEvent = make(map[string][]string)
	for _, r := range rules {
		if key, ok := indexKey(r); ok {
			reg.byEvent[key] = append(reg.byEvent[key], r.ID)
		}
	}
	return nil
}

func indexKey(r *Rule) (string, bool) {
	switch r.Trigger.Type {
	case TriggerEvent:
		return r.TenantID + "/" + r.Trigger.Event, true
	case TriggerCondition:
		return r.TenantID + "/" + conditionKey, true
	default:
		return "", false
	}
}

// Create validates and stores a new rule, assigning an ID when absent.
func (reg *Registry) Create(r *Rule) (*Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := Validate(r); err != nil {
		return nil, err
	}
	if err := reg.store.Add(r); err != nil {
		return nil, err
	}
	reg.index(r)
	reg.notifyScheduler(r)
	return r.Clone(), nil
}

// Update validates and replaces an existing rule, rewriting its index entry.
// Metadata is preserved by the store.
func (reg *Registry) Update(r *Rule) (*Rule, error) {
	if err := Validate(r); err != nil {
		return nil, err
	}
	prev, err := reg.store.Get(r.TenantID, r.ID)
	if err != nil {
		return nil, err
	}
	if err := reg.store.Update(r); err != nil {
		return nil, err
	}
	reg.unindex(prev)
	reg.index(r)
	if prev.Trigger.Type == TriggerSchedule || r.Trigger.Type == TriggerSchedule {
		reg.fireScheduleChange()
	}
	return reg.store.Get(r.TenantID, r.ID)
}

func (reg *Registry) Delete(tenantID, id string) error {
	prev, err := reg.store.Get(tenantID, id)
	if err != nil {
		return err
	}
	if err := reg.store.Delete(tenantID, id); err != nil {
		return err
	}
	reg.unindex(prev)
	reg.notifyScheduler(prev)
	return nil
}

func (reg *Registry) Get(tenantID, id string) (*Rule, error) {
	return reg.store.Get(tenantID, id)
}

func (reg *Registry) List(tenantID string) ([]*Rule, error) {
	rules, err := reg.store.List(tenantID)
	if err != nil {
		return nil, err
	}
	sortByPriority(rules)
	return rules, nil
}

// ListByEvent returns candidate rules for an event: event-triggered rules
// indexed under the event name plus all condition-triggered rules, sorted by
// priority ascending with ID as the stable tie-break. Active filtering is the
// caller's job — the bus re-checks isActive at match time so that flipping
// the flag never requires touching the index.
func (reg *Registry) ListByEvent(tenantID, eventName string) ([]*Rule, error) {
	reg.mu.RLock()
	ids := make([]string, 0,
		len(reg.byEvent[tenantID+"/"+eventName])+len(reg.byEvent[tenantID+"/"+conditionKey]))
	ids = append(ids, reg.byEvent[tenantID+"/"+eventName]...)
	ids = append(ids, reg.byEvent[tenantID+"/"+conditionKey]...)
	reg.mu.RUnlock()

	rules := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		r, err := reg.store.Get(tenantID, id)
		if err != nil {
			// Index can briefly trail the store; stale entries are skipped.
			continue
		}
		rules = append(rules, r)
	}
	sortByPriority(rules)
	return rules, nil
}

// ListScheduled returns every schedule-triggered rule across tenants.
func (reg *Registry) ListScheduled() ([]*Rule, error) {
	rules, err := reg.store.ListAll()
	if err != nil {
		return nil, err
	}
	var out []*Rule
	for _, r := range rules {
		if r.Trigger.Type == TriggerSchedule {
			out = append(out, r)
		}
	}
	sortByPriority(out)
	return out, nil
}

// ApplyExecution folds one execution outcome into the rule's metadata.
// This is the only write path for Metadata.
func (reg *Registry) ApplyExecution(tenantID, id string, apply func(*Metadata)) error {
	return reg.store.ApplyMetadata(tenantID, id, apply)
}

func (reg *Registry) index(r *Rule) {
	key, ok := indexKey(r)
	if !ok {
		return
	}
	reg.mu.Lock()
	reg.byEvent[key] = append(reg.byEvent[key], r.ID)
	reg.mu.Unlock()
}

func (reg *Registry) unindex(r *Rule) {
	key, ok := indexKey(r)
	if !ok {
		return
	}
	reg.mu.Lock()
	ids := reg.byEvent[key]
	for i, id := range ids {
		if id == r.ID {
			reg.byEvent[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(reg.byEvent[key]) == 0 {
		delete(reg.byEvent, key)
	}
	reg.mu.Unlock()
}

func (reg *Registry) notifyScheduler(r *Rule) {
	if r.Trigger.Type == TriggerSchedule {
		reg.fireScheduleChange()
	}
}

func (reg *Registry) fireScheduleChange() {
	reg.mu.RLock()
	fn := reg.onScheduleChange
	reg.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func sortByPriority(rules []*Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
