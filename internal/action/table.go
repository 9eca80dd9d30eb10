package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/rule"
)

// Result holds the outcome of executing a single action, including how many
// attempts the retry loop made.
type Result struct {
	ActionID   string          `json:"actionId"`
	Type       rule.ActionType `json:"type"`
	Success    bool            `json:"success"`
	Attempts   int             `json:"attempts"`
	DurationMs int64           `json:"durationMs"`
	Error      string          `json:"error,omitempty"`
}

// Handler executes one action type against an event.
type Handler interface {
	Type() rule.ActionType
	Execute(ctx context.Context, act rule.Action, ev *event.Event) error
}

// Table maps action types to their handlers.
// Safe for concurrent reads; Register should only be called at startup.
type Table struct {
	mu       sync.RWMutex
	handlers map[rule.ActionType]Handler
}

func NewTable() *Table {
	return &Table{handlers: make(map[rule.ActionType]Handler)}
}

// Register adds a handler. Panics on duplicate type to surface
// misconfiguration early.
func (t *Table) Register(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[h.Type()]; exists {
		panic(fmt.Sprintf("action table: duplicate type %q", h.Type()))
	}
	t.handlers[h.Type()] = h
}

// Dispatch routes an action to its handler. An unregistered type is a
// permanent failure — retrying cannot make a handler appear.
func (t *Table) Dispatch(ctx context.Context, act rule.Action, ev *event.Event) error {
	t.mu.RLock()
	h, ok := t.handlers[act.Type]
	t.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("no handler registered for action type %q", act.Type))
	}
	return h.Execute(ctx, act, ev)
}

// Types returns all registered action type strings.
func (t *Table) Types() []rule.ActionType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]rule.ActionType, 0, len(t.handlers))
	for k := range t.handlers {
		out = append(out, k)
	}
	return out
}

// DefaultTable wires the standard handler set over the given collaborators.
func DefaultTable(c Collaborators) *Table {
	t := NewTable()
	t.Register(&EmailHandler{Sender: c.Email})
	t.Register(&TaskHandler{Creator: c.Tasks})
	t.Register(&NotificationHandler{Notifier: c.Notifier})
	t.Register(&WebhookHandler{Caller: c.Webhooks})
	t.Register(&UpdateFieldHandler{Mutator: c.Entities})
	t.Register(&ChangeStageHandler{Mutator: c.Entities})
	return t
}
