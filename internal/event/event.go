package event

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleTick is the synthetic event name published by the scheduler for
// schedule-triggered rules. It carries no entity payload.
const ScheduleTick = "schedule.tick"

// Event is the canonical input model for all domain events flowing through
// the automation engine.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"` // "lead.created", "deal.won", ...
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	TenantID   string         `json:"tenantId"`
	UserID     string         `json:"userId,omitempty"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// New builds an Event with a fresh ID and timestamp. The entity ID is lifted
// out of the payload's "id" field when present so the worker pool can key its
// per-entity ordering locks.
func New(tenantID, name string, payload map[string]any) *Event {
	ev := &Event{
		ID:         uuid.NewString(),
		Name:       name,
		TenantID:   tenantID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}
	if payload != nil {
		if id, ok := payload["id"].(string); ok {
			ev.EntityID = id
		}
	}
	if def, ok := Lookup(name); ok {
		ev.EntityType = def.EntityType
	}
	return ev
}
