package action

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LocalCollaborators returns a collaborator set that only logs. Useful for
// development and for running the server without the surrounding CRM; real
// deployments inject the CRM's implementations instead.
func LocalCollaborators(log *slog.Logger) Collaborators {
	return Collaborators{
		Email:    &logEmail{log: log},
		Tasks:    &logTasks{log: log},
		Notifier: &logNotifier{log: log},
		Webhooks: &logWebhooks{log: log},
		Entities: &logEntities{log: log},
	}
}

type logEmail struct{ log *slog.Logger }

func (c *logEmail) Send(ctx context.Context, to, templateID, subject, body string) (string, error) {
	c.log.Info("email sent", "to", to, "templateId", templateID, "subject", subject)
	return uuid.NewString(), nil
}

type logTasks struct{ log *slog.Logger }

func (c *logTasks) Create(ctx context.Context, entityID string, spec TaskSpec) (string, error) {
	id := uuid.NewString()
	c.log.Info("task created", "taskId", id, "entityId", entityID, "title", spec.Title)
	return id, nil
}

type logNotifier struct{ log *slog.Logger }

func (c *logNotifier) Notify(ctx context.Context, userID, message string) error {
	c.log.Info("notification sent", "userId", userID, "message", message)
	return nil
}

type logWebhooks struct{ log *slog.Logger }

func (c *logWebhooks) Post(ctx context.Context, url string, body []byte, headers map[string]string) (int, error) {
	c.log.Info("webhook posted", "url", url, "bytes", len(body))
	return 200, nil
}

type logEntities struct{ log *slog.Logger }

func (c *logEntities) UpdateField(ctx context.Context, entityType, entityID, field string, value any) error {
	c.log.Info("field updated", "entityType", entityType, "entityId", entityID, "field", field, "value", value)
	return nil
}

func (c *logEntities) ChangeStage(ctx context.Context, entityType, entityID, stageID string) error {
	c.log.Info("stage changed", "entityType", entityType, "entityId", entityID, "stageId", stageID)
	return nil
}
