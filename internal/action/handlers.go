package action

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/rule"
)

// Parameter presence and types are validated at rule save time; handlers read
// them with loose casts and treat anything still missing as permanent.

// EmailHandler sends by template ID or inline subject+body.
type EmailHandler struct {
	Sender EmailSender
}

func (h *EmailHandler) Type() rule.ActionType { return rule.ActionEmail }

func (h *EmailHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	p := act.Parameters
	to, _ := p["to"].(string)
	if to == "" {
		// Fall back to the lead/contact email on the event itself.
		to, _ = ev.Payload["email"].(string)
	}
	if to == "" {
		return Permanent(fmt.Errorf("email: no recipient in parameters or event payload"))
	}
	templateID, _ := p["templateId"].(string)
	subject, _ := p["subject"].(string)
	body, _ := p["body"].(string)

	_, err := h.Sender.Send(ctx, to, templateID, subject, body)
	return err
}

// TaskHandler creates a follow-up task attached to the event's entity.
type TaskHandler struct {
	Creator TaskCreator
}

func (h *TaskHandler) Type() rule.ActionType { return rule.ActionTask }

func (h *TaskHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	p := act.Parameters
	spec := TaskSpec{
		Title:       stringParam(p, "title"),
		Description: stringParam(p, "description"),
		AssigneeID:  stringParam(p, "assigneeId"),
		DueDate:     stringParam(p, "dueDate"),
		Priority:    stringParam(p, "priority"),
	}
	if spec.Priority == "" {
		spec.Priority = "medium"
	}
	_, err := h.Creator.Create(ctx, ev.EntityID, spec)
	return err
}

// NotificationHandler delivers an in-app notification to one user.
type NotificationHandler struct {
	Notifier Notifier
}

func (h *NotificationHandler) Type() rule.ActionType { return rule.ActionNotification }

func (h *NotificationHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	userID := stringParam(act.Parameters, "userId")
	message := stringParam(act.Parameters, "message")
	return h.Notifier.Notify(ctx, userID, message)
}

// WebhookHandler posts the triggering event to an external URL. The response
// status classifies the failure: 5xx is transient, 4xx permanent.
type WebhookHandler struct {
	Caller WebhookCaller
}

func (h *WebhookHandler) Type() rule.ActionType { return rule.ActionWebhook }

func (h *WebhookHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	url := stringParam(act.Parameters, "url")

	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Event-Name": ev.Name,
		"X-Event-Id":   ev.ID,
	}
	if extra, ok := act.Parameters["headers"].(map[string]any); ok {
		for k, v := range extra {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return Permanent(fmt.Errorf("webhook: encode event: %w", err))
	}

	status, err := h.Caller.Post(ctx, url, body, headers)
	if err != nil {
		return Transient(err)
	}
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500 || status == 429:
		return Transient(fmt.Errorf("webhook %s: status %d", url, status))
	default:
		return Permanent(fmt.Errorf("webhook %s: status %d", url, status))
	}
}

// UpdateFieldHandler sets one field on the event's entity. Idempotent by
// contract of EntityMutator.
type UpdateFieldHandler struct {
	Mutator EntityMutator
}

func (h *UpdateFieldHandler) Type() rule.ActionType { return rule.ActionUpdateField }

func (h *UpdateFieldHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	if ev.EntityID == "" {
		return Permanent(fmt.Errorf("update_field: event carries no entity id"))
	}
	field := stringParam(act.Parameters, "field")
	return h.Mutator.UpdateField(ctx, ev.EntityType, ev.EntityID, field, act.Parameters["value"])
}

// ChangeStageHandler moves the event's entity to another pipeline stage.
type ChangeStageHandler struct {
	Mutator EntityMutator
}

func (h *ChangeStageHandler) Type() rule.ActionType { return rule.ActionChangeStage }

func (h *ChangeStageHandler) Execute(ctx context.Context, act rule.Action, ev *event.Event) error {
	if ev.EntityID == "" {
		return Permanent(fmt.Errorf("change_stage: event carries no entity id"))
	}
	stageID := stringParam(act.Parameters, "stageId")
	return h.Mutator.ChangeStage(ctx, ev.EntityType, ev.EntityID, stageID)
}

func stringParam(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}
