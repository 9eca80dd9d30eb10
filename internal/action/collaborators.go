package action

import "context"

// The engine owns only these interfaces; the surrounding CRM provides the
// implementations (SMTP/Gmail transport, task persistence, webhook client,
// entity storage). Handlers in this package are thin adapters over them.

// TaskSpec carries the fields a task-creating action may set.
type TaskSpec struct {
	Title       string
	Description string
	AssigneeID  string
	DueDate     string
	Priority    string
}

type EmailSender interface {
	// Send delivers by template ID or inline subject+body and returns the
	// provider message ID.
	Send(ctx context.Context, to, templateID, subject, body string) (messageID string, err error)
}

type TaskCreator interface {
	Create(ctx context.Context, entityID string, spec TaskSpec) (taskID string, err error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

type WebhookCaller interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (statusCode int, err error)
}

// EntityMutator is the only collaborator that mutates CRM state directly.
// Both operations must be idempotent: applying the same payload twice yields
// the same end state, so a retry after a partial network failure is safe.
type EntityMutator interface {
	UpdateField(ctx context.Context, entityType, entityID, field string, value any) error
	ChangeStage(ctx context.Context, entityType, entityID, stageID string) error
}

// Collaborators bundles every external dependency handlers need.
type Collaborators struct {
	Email    EmailSender
	Tasks    TaskCreator
	Notifier Notifier
	Webhooks WebhookCaller
	Entities EntityMutator
}
