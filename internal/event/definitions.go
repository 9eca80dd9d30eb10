package event

import "sort"

// Definition describes a tracked domain event and the logical field set its
// payload carries. Definitions are registered once at startup and immutable
// for the process lifetime; conditions reference schema fields by name.
type Definition struct {
	Name        string            `json:"name"`
	EntityType  string            `json:"entityType"`
	Description string            `json:"description"`
	Schema      map[string]string `json:"schema"`
}

var definitions = map[string]Definition{}

func register(defs ...Definition) {
	for _, d := range defs {
		definitions[d.Name] = d
	}
}

func init() {
	register(
		Definition{
			Name:        "lead.created",
			EntityType:  "lead",
			Description: "New lead created",
			Schema: map[string]string{
				"id": "string", "name": "string", "email": "string",
				"phone": "string", "source": "string", "temperature": "string",
			},
		},
		Definition{
			Name:        "lead.updated",
			EntityType:  "lead",
			Description: "Lead information updated",
			Schema:      map[string]string{"id": "string", "changes": "object"},
		},
		Definition{
			Name:        "lead.stage_changed",
			EntityType:  "lead",
			Description: "Lead moved to a different stage",
			Schema:      map[string]string{"id": "string", "fromStageId": "string", "toStageId": "string"},
		},
		Definition{
			Name:        "deal.created",
			EntityType:  "deal",
			Description: "New deal created",
			Schema:      map[string]string{"id": "string", "title": "string", "value": "number", "stageId": "string"},
		},
		Definition{
			Name:        "deal.stage_changed",
			EntityType:  "deal",
			Description: "Deal moved to a different stage",
			Schema:      map[string]string{"id": "string", "fromStageId": "string", "toStageId": "string"},
		},
		Definition{
			Name:        "deal.won",
			EntityType:  "deal",
			Description: "Deal marked as won",
			Schema:      map[string]string{"id": "string", "value": "number", "wonDate": "string"},
		},
		Definition{
			Name:        "deal.lost",
			EntityType:  "deal",
			Description: "Deal marked as lost",
			Schema:      map[string]string{"id": "string", "reason": "string", "lostDate": "string"},
		},
		Definition{
			Name:        "contact.created",
			EntityType:  "contact",
			Description: "New contact created",
			Schema:      map[string]string{"id": "string", "name": "string", "email": "string", "company": "string"},
		},
		Definition{
			Name:        "task.created",
			EntityType:  "task",
			Description: "New task created",
			Schema:      map[string]string{"id": "string", "title": "string", "assigneeId": "string", "dueDate": "string"},
		},
		Definition{
			Name:        "task.completed",
			EntityType:  "task",
			Description: "Task marked as completed",
			Schema:      map[string]string{"id": "string", "completedDate": "string", "completedBy": "string"},
		},
		Definition{
			Name:        "task.overdue",
			EntityType:  "task",
			Description: "Task is overdue",
			Schema:      map[string]string{"id": "string", "dueDate": "string", "daysOverdue": "number"},
		},
		Definition{
			Name:        ScheduleTick,
			EntityType:  "schedule",
			Description: "Synthetic tick for schedule-triggered rules",
			Schema:      map[string]string{"ruleId": "string", "firedAt": "string"},
		},
	)
}

// Lookup returns the definition for an event name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[name]
	return d, ok
}

// Known reports whether an event name has a registered definition.
func Known(name string) bool {
	_, ok := definitions[name]
	return ok
}

// Definitions returns all registered definitions sorted by name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
