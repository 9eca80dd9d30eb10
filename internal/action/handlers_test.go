package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcrm/automation/internal/event"
	"github.com/nexcrm/automation/internal/rule"
)

type fakeSender struct {
	to, templateID, subject string
	err                     error
}

func (f *fakeSender) Send(ctx context.Context, to, templateID, subject, body string) (string, error) {
	f.to, f.templateID, f.subject = to, templateID, subject
	return "msg-1", f.err
}

type fakeCaller struct {
	url     string
	headers map[string]string
	status  int
	err     error
}

func (f *fakeCaller) Post(ctx context.Context, url string, body []byte, headers map[string]string) (int, error) {
	f.url, f.headers = url, headers
	return f.status, f.err
}

type fakeMutator struct {
	entityType, entityID, field, stageID string
	value                                any
}

func (f *fakeMutator) UpdateField(ctx context.Context, entityType, entityID, field string, value any) error {
	f.entityType, f.entityID, f.field, f.value = entityType, entityID, field, value
	return nil
}

func (f *fakeMutator) ChangeStage(ctx context.Context, entityType, entityID, stageID string) error {
	f.entityType, f.entityID, f.stageID = entityType, entityID, stageID
	return nil
}

func TestEmailHandlerRecipientFallback(t *testing.T) {
	sender := &fakeSender{}
	h := &EmailHandler{Sender: sender}
	ev := event.New("t1", "lead.created", map[string]any{"email": "lead@example.com"})

	err := h.Execute(context.Background(), rule.Action{
		Type:       rule.ActionEmail,
		Parameters: map[string]any{"templateId": "welcome"},
	}, ev)
	require.NoError(t, err)
	assert.Equal(t, "lead@example.com", sender.to)
	assert.Equal(t, "welcome", sender.templateID)

	err = h.Execute(context.Background(), rule.Action{
		Type:       rule.ActionEmail,
		Parameters: map[string]any{"to": "owner@example.com", "templateId": "welcome"},
	}, ev)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", sender.to, "explicit parameter wins")
}

func TestEmailHandlerNoRecipientIsPermanent(t *testing.T) {
	h := &EmailHandler{Sender: &fakeSender{}}
	ev := event.New("t1", "lead.created", map[string]any{})

	err := h.Execute(context.Background(), rule.Action{
		Type:       rule.ActionEmail,
		Parameters: map[string]any{"templateId": "welcome"},
	}, ev)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestWebhookHandlerStatusClassification(t *testing.T) {
	ev := event.New("t1", "deal.closed", map[string]any{"id": "deal-1"})
	act := rule.Action{
		Type:       rule.ActionWebhook,
		Parameters: map[string]any{"url": "https://example.com/h", "headers": map[string]any{"X-Token": "abc"}},
	}

	tests := []struct {
		name          string
		status        int
		err           error
		wantErr       bool
		wantTransient bool
	}{
		{"2xx ok", 200, nil, false, false},
		{"transport error", 0, errors.New("dial tcp: refused"), true, true},
		{"500 transient", 500, nil, true, true},
		{"429 transient", 429, nil, true, true},
		{"404 permanent", 404, nil, true, false},
		{"401 permanent", 401, nil, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{status: tt.status, err: tt.err}
			h := &WebhookHandler{Caller: caller}
			err := h.Execute(context.Background(), act, ev)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "https://example.com/h", caller.url)
				assert.Equal(t, "deal.closed", caller.headers["X-Event-Name"])
				assert.Equal(t, "abc", caller.headers["X-Token"])
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestUpdateFieldHandler(t *testing.T) {
	mut := &fakeMutator{}
	h := &UpdateFieldHandler{Mutator: mut}
	ev := event.New("t1", "lead.created", map[string]any{"id": "lead-9"})

	err := h.Execute(context.Background(), rule.Action{
		Type:       rule.ActionUpdateField,
		Parameters: map[string]any{"field": "status", "value": "qualified"},
	}, ev)
	require.NoError(t, err)
	assert.Equal(t, "lead-9", mut.entityID)
	assert.Equal(t, "status", mut.field)
	assert.Equal(t, "qualified", mut.value)
}

func TestEntityHandlersRequireEntityID(t *testing.T) {
	mut := &fakeMutator{}
	ev := event.New("t1", "lead.created", map[string]any{})

	err := (&UpdateFieldHandler{Mutator: mut}).Execute(context.Background(), rule.Action{
		Parameters: map[string]any{"field": "status", "value": 1},
	}, ev)
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	err = (&ChangeStageHandler{Mutator: mut}).Execute(context.Background(), rule.Action{
		Parameters: map[string]any{"stageId": "won"},
	}, ev)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestTableDispatchUnknownTypeIsPermanent(t *testing.T) {
	tbl := NewTable()
	ev := event.New("t1", "lead.created", map[string]any{})

	err := tbl.Dispatch(context.Background(), rule.Action{Type: "sms"}, ev)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestTableRegisterDuplicatePanics(t *testing.T) {
	tbl := NewTable()
	tbl.Register(&WebhookHandler{Caller: &fakeCaller{status: 200}})
	assert.Panics(t, func() {
		tbl.Register(&WebhookHandler{Caller: &fakeCaller{status: 200}})
	})
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.False(t, IsTransient(Permanent(errors.New("x"))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("unclassified")), "unknown errors default to permanent")
}
