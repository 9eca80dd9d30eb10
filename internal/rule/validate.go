package rule

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/nexcrm/automation/internal/condition"
)

// ErrInvalid marks configuration errors detected at save time. Writes that
// fail validation are rejected; nothing invalid reaches the event bus.
var ErrInvalid = errors.New("invalid rule")

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// paramCheck validates one action type's parameter map.
type paramCheck func(p map[string]any) error

// actionSchemas maps each action type to its save-time parameter schema.
var actionSchemas = map[ActionType]paramCheck{
	ActionEmail: func(p map[string]any) error {
		if hasString(p, "templateId") {
			return nil
		}
		if hasString(p, "subject") && hasString(p, "body") {
			return nil
		}
		return fmt.Errorf("email requires templateId or subject+body")
	},
	ActionTask: func(p map[string]any) error {
		return requireStrings(p, "title")
	},
	ActionNotification: func(p map[string]any) error {
		return requireStrings(p, "userId", "message")
	},
	ActionWebhook: func(p map[string]any) error {
		return requireStrings(p, "url")
	},
	ActionUpdateField: func(p map[string]any) error {
		if err := requireStrings(p, "field"); err != nil {
			return err
		}
		if _, ok := p["value"]; !ok {
			return fmt.Errorf("missing parameter %q", "value")
		}
		return nil
	},
	ActionChangeStage: func(p map[string]any) error {
		return requireStrings(p, "stageId")
	},
}

// Validate performs the full save-time check: identity, trigger shape,
// condition tree structure, and per-action-type parameter schemas.
// All failures wrap ErrInvalid.
func Validate(r *Rule) error {
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", ErrInvalid)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}

	switch r.Trigger.Type {
	case TriggerEvent:
		if r.Trigger.Event == "" {
			return fmt.Errorf("%w: event trigger requires an event name", ErrInvalid)
		}
	case TriggerSchedule:
		if r.Trigger.Schedule == "" {
			return fmt.Errorf("%w: schedule trigger requires a cron expression", ErrInvalid)
		}
		if _, err := cronParser.Parse(r.Trigger.Schedule); err != nil {
			return fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalid, r.Trigger.Schedule, err)
		}
	case TriggerCondition:
		if r.Trigger.Condition == nil {
			return fmt.Errorf("%w: condition trigger requires a condition", ErrInvalid)
		}
		if err := condition.Validate(r.Trigger.Condition); err != nil {
			return fmt.Errorf("%w: trigger condition: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalid, r.Trigger.Type)
	}

	if err := condition.Validate(r.Conditions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrInvalid)
	}
	for i, act := range r.Actions {
		check, ok := actionSchemas[act.Type]
		if !ok {
			return fmt.Errorf("%w: actions[%d]: unknown action type %q", ErrInvalid, i, act.Type)
		}
		if err := check(act.Parameters); err != nil {
			return fmt.Errorf("%w: actions[%d] (%s): %v", ErrInvalid, i, act.Type, err)
		}
	}
	return nil
}

func hasString(p map[string]any, key string) bool {
	s, ok := p[key].(string)
	return ok && s != ""
}

func requireStrings(p map[string]any, keys ...string) error {
	for _, k := range keys {
		if !hasString(p, k) {
			return fmt.Errorf("missing parameter %q", k)
		}
	}
	return nil
}
