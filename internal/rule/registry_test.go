package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcrm/automation/internal/condition"
)

func eventRule(tenant, name, eventName string, priority int) *Rule {
	return &Rule{
		TenantID: tenant,
		Name:     name,
		Trigger:  Trigger{Type: TriggerEvent, Event: eventName},
		Actions: []Action{
			{Type: ActionTask, Parameters: map[string]any{"title": "follow up"}},
		},
		Priority: priority,
		Active:   true,
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewMemoryStore())
	require.NoError(t, err)
	return reg
}

func TestRegistryCreateAssignsID(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.Create(eventRule("t1", "hot lead", "lead.created", 10))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := reg.Get("t1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hot lead", got.Name)
}

func TestRegistryCreateRejectsInvalid(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(&Rule{TenantID: "t1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRegistryListByEvent(t *testing.T) {
	reg := newTestRegistry(t)

	low, err := reg.Create(eventRule("t1", "low", "lead.created", 50))
	require.NoError(t, err)
	high, err := reg.Create(eventRule("t1", "high", "lead.created", 10))
	require.NoError(t, err)
	_, err = reg.Create(eventRule("t1", "other", "deal.closed", 1))
	require.NoError(t, err)

	got, err := reg.ListByEvent("t1", "lead.created")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID, "lower priority value runs first")
	assert.Equal(t, low.ID, got[1].ID)
}

func TestRegistryListByEventIncludesConditionRules(t *testing.T) {
	reg := newTestRegistry(t)

	gate := &condition.Condition{Field: "score", Operator: condition.OpGt, Value: 80}
	cr := &Rule{
		TenantID: "t1",
		Name:     "any event gate",
		Trigger:  Trigger{Type: TriggerCondition, Condition: gate},
		Actions: []Action{
			{Type: ActionNotification, Parameters: map[string]any{"userId": "u1", "message": "hi"}},
		},
		Active: true,
	}
	created, err := reg.Create(cr)
	require.NoError(t, err)

	for _, ev := range []string{"lead.created", "deal.closed", "task.overdue"} {
		got, err := reg.ListByEvent("t1", ev)
		require.NoError(t, err)
		require.Len(t, got, 1, "condition rule is a candidate for %s", ev)
		assert.Equal(t, created.ID, got[0].ID)
	}
}

func TestRegistryTenantIsolation(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(eventRule("t1", "a", "lead.created", 1))
	require.NoError(t, err)
	_, err = reg.Create(eventRule("t2", "b", "lead.created", 1))
	require.NoError(t, err)

	got, err := reg.ListByEvent("t1", "lead.created")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

func TestRegistryUpdateReindexes(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.Create(eventRule("t1", "r", "lead.created", 1))
	require.NoError(t, err)

	moved := created.Clone()
	moved.Trigger.Event = "deal.closed"
	_, err = reg.Update(moved)
	require.NoError(t, err)

	old, err := reg.ListByEvent("t1", "lead.created")
	require.NoError(t, err)
	assert.Empty(t, old)

	now, err := reg.ListByEvent("t1", "deal.closed")
	require.NoError(t, err)
	require.Len(t, now, 1)
	assert.Equal(t, created.ID, now[0].ID)
}

func TestRegistryUpdatePreservesMetadata(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.Create(eventRule("t1", "r", "lead.created", 1))
	require.NoError(t, err)

	require.NoError(t, reg.ApplyExecution("t1", created.ID, func(m *Metadata) {
		m.ExecutionCount = 7
		m.SuccessCount = 5
	}))

	edited := created.Clone()
	edited.Name = "renamed"
	edited.Metadata = Metadata{} // client payloads never carry authoritative metadata
	updated, err := reg.Update(edited)
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, int64(7), updated.Metadata.ExecutionCount)
	assert.Equal(t, int64(5), updated.Metadata.SuccessCount)
}

func TestRegistryDeleteUnindexes(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.Create(eventRule("t1", "r", "lead.created", 1))
	require.NoError(t, err)
	require.NoError(t, reg.Delete("t1", created.ID))

	_, err = reg.Get("t1", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := reg.ListByEvent("t1", "lead.created")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRegistryScheduleChangeHook(t *testing.T) {
	reg := newTestRegistry(t)

	fired := 0
	reg.OnScheduleChange(func() { fired++ })

	sched := &Rule{
		TenantID: "t1",
		Name:     "nightly",
		Trigger:  Trigger{Type: TriggerSchedule, Schedule: "0 2 * * *"},
		Actions: []Action{
			{Type: ActionWebhook, Parameters: map[string]any{"url": "https://example.com/hook"}},
		},
		Active: true,
	}
	created, err := reg.Create(sched)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	edited := created.Clone()
	edited.Trigger.Schedule = "30 3 * * *"
	_, err = reg.Update(edited)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	require.NoError(t, reg.Delete("t1", created.ID))
	assert.Equal(t, 3, fired)

	// Event-triggered rules never touch the scheduler.
	_, err = reg.Create(eventRule("t1", "plain", "lead.created", 1))
	require.NoError(t, err)
	assert.Equal(t, 3, fired)
}

func TestRegistryListScheduled(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(eventRule("t1", "plain", "lead.created", 1))
	require.NoError(t, err)
	_, err = reg.Create(&Rule{
		TenantID: "t2",
		Name:     "weekly",
		Trigger:  Trigger{Type: TriggerSchedule, Schedule: "0 9 * * 1"},
		Actions: []Action{
			{Type: ActionTask, Parameters: map[string]any{"title": "weekly review"}},
		},
		Active: true,
	})
	require.NoError(t, err)

	got, err := reg.ListScheduled()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "weekly", got[0].Name)
}
