package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	tenantID, name string
	payload        map[string]any
}

type capturePublisher struct {
	events []capturedEvent
}

func (c *capturePublisher) Publish(tenantID, name string, payload map[string]any) string {
	c.events = append(c.events, capturedEvent{tenantID, name, payload})
	return "ev-1"
}

func TestEmitterBuildsDefinedPayloads(t *testing.T) {
	pub := &capturePublisher{}
	em := NewEmitter(pub)

	em.LeadCreated("t1", "lead-1", "Ada", "ada@example.com", "webinar")
	em.DealWon("t1", "deal-1", 9500, "2026-09-01")
	em.TaskOverdue("t1", "task-1", "2026-08-20", 12)

	require.Len(t, pub.events, 3)
	for _, ev := range pub.events {
		assert.Equal(t, "t1", ev.tenantID)
		assert.True(t, Known(ev.name), "emitter %s must map to a registered definition", ev.name)
	}

	lead := pub.events[0]
	assert.Equal(t, "lead.created", lead.name)
	assert.Equal(t, "lead-1", lead.payload["id"])
	assert.Equal(t, "webinar", lead.payload["source"])

	deal := pub.events[1]
	assert.Equal(t, "deal.won", deal.name)
	assert.Equal(t, 9500.0, deal.payload["value"])

	task := pub.events[2]
	assert.Equal(t, "task.overdue", task.name)
	assert.Equal(t, 12, task.payload["daysOverdue"])
}

func TestNewLiftsEntityFields(t *testing.T) {
	ev := New("t1", "deal.won", map[string]any{"id": "deal-9", "value": 100})
	assert.Equal(t, "deal-9", ev.EntityID)
	assert.Equal(t, "deal", ev.EntityType)
	assert.NotEmpty(t, ev.ID)

	unknown := New("t1", "custom.thing", nil)
	assert.Empty(t, unknown.EntityID)
	assert.Empty(t, unknown.EntityType)
}
