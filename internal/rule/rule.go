package rule

import (
	"time"

	"github.com/nexcrm/automation/internal/condition"
)

// TriggerType discriminates how a rule becomes eligible for evaluation.
type TriggerType string

const (
	TriggerEvent     TriggerType = "event"
	TriggerSchedule  TriggerType = "schedule"
	TriggerCondition TriggerType = "condition"
)

// Trigger is a tagged variant: Event carries an event name, Schedule a cron
// expression, Condition an extra gate evaluated against every event.
type Trigger struct {
	Type      TriggerType          `json:"type"`
	Event     string               `json:"event,omitempty"`
	Schedule  string               `json:"schedule,omitempty"`
	Condition *condition.Condition `json:"condition,omitempty"`
}

// ActionType enumerates the side effects a rule can perform.
type ActionType string

const (
	ActionEmail        ActionType = "email"
	ActionTask         ActionType = "task"
	ActionNotification ActionType = "notification"
	ActionWebhook      ActionType = "webhook"
	ActionUpdateField  ActionType = "update_field"
	ActionChangeStage  ActionType = "change_stage"
)

// Action is one ordered step in a rule's pipeline. Parameters are
// action-type-specific and validated against a schema at save time.
type Action struct {
	ID         string         `json:"id"`
	Type       ActionType     `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

// Metadata holds execution aggregates. It is mutated only by the metrics
// path, never by the CRUD path.
type Metadata struct {
	ExecutionCount int64      `json:"executionCount"`
	SuccessCount   int64      `json:"successCount"`
	FailureCount   int64      `json:"failureCount"`
	LastExecuted   *time.Time `json:"lastExecuted,omitempty"`
	AvgExecutionMs float64    `json:"averageExecutionTime"`
	Tags           []string   `json:"tags,omitempty"`
}

// Rule is a named trigger+condition+action bundle owned by one tenant.
// Lower Priority values run first.
type Rule struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenantId"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Trigger     Trigger              `json:"trigger"`
	Conditions  *condition.Condition `json:"conditions,omitempty"`
	Actions     []Action             `json:"actions"`
	Priority    int                  `json:"priority"`
	Active      bool                 `json:"isActive"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	Metadata    Metadata             `json:"metadata"`
}

// Clone returns a deep-enough copy for handing out of the registry: callers
// may mutate top-level fields without racing the index. Condition trees and
// parameters are treated as immutable once stored.
func (r *Rule) Clone() *Rule {
	cp := *r
	cp.Actions = make([]Action, len(r.Actions))
	copy(cp.Actions, r.Actions)
	if r.Metadata.Tags != nil {
		cp.Metadata.Tags = append([]string(nil), r.Metadata.Tags...)
	}
	return &cp
}
