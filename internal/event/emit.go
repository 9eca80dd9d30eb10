package event

// Publisher is the sink side of the engine; the typed emitters below are the
// convenience surface the surrounding CRM calls instead of assembling payload
// maps by hand. Each returns the assigned event ID.
type Publisher interface {
	Publish(tenantID, name string, payload map[string]any) string
}

// Emitter wraps a Publisher with one method per tracked CRM event.
type Emitter struct {
	pub Publisher
}

func NewEmitter(pub Publisher) *Emitter {
	return &Emitter{pub: pub}
}

func (e *Emitter) LeadCreated(tenantID, leadID, name, email, source string) string {
	return e.pub.Publish(tenantID, "lead.created", map[string]any{
		"id": leadID, "name": name, "email": email, "source": source,
	})
}

func (e *Emitter) LeadStageChanged(tenantID, leadID, fromStageID, toStageID string) string {
	return e.pub.Publish(tenantID, "lead.stage_changed", map[string]any{
		"id": leadID, "fromStageId": fromStageID, "toStageId": toStageID,
	})
}

func (e *Emitter) DealCreated(tenantID, dealID, title string, value float64, stageID string) string {
	return e.pub.Publish(tenantID, "deal.created", map[string]any{
		"id": dealID, "title": title, "value": value, "stageId": stageID,
	})
}

func (e *Emitter) DealStageChanged(tenantID, dealID, fromStageID, toStageID string) string {
	return e.pub.Publish(tenantID, "deal.stage_changed", map[string]any{
		"id": dealID, "fromStageId": fromStageID, "toStageId": toStageID,
	})
}

func (e *Emitter) DealWon(tenantID, dealID string, value float64, wonDate string) string {
	return e.pub.Publish(tenantID, "deal.won", map[string]any{
		"id": dealID, "value": value, "wonDate": wonDate,
	})
}

func (e *Emitter) DealLost(tenantID, dealID, reason, lostDate string) string {
	return e.pub.Publish(tenantID, "deal.lost", map[string]any{
		"id": dealID, "reason": reason, "lostDate": lostDate,
	})
}

func (e *Emitter) ContactCreated(tenantID, contactID, name, email, company string) string {
	return e.pub.Publish(tenantID, "contact.created", map[string]any{
		"id": contactID, "name": name, "email": email, "company": company,
	})
}

func (e *Emitter) TaskCreated(tenantID, taskID, title, assigneeID, dueDate string) string {
	return e.pub.Publish(tenantID, "task.created", map[string]any{
		"id": taskID, "title": title, "assigneeId": assigneeID, "dueDate": dueDate,
	})
}

func (e *Emitter) TaskCompleted(tenantID, taskID, completedDate, completedBy string) string {
	return e.pub.Publish(tenantID, "task.completed", map[string]any{
		"id": taskID, "completedDate": completedDate, "completedBy": completedBy,
	})
}

func (e *Emitter) TaskOverdue(tenantID, taskID, dueDate string, daysOverdue int) string {
	return e.pub.Publish(tenantID, "task.overdue", map[string]any{
		"id": taskID, "dueDate": dueDate, "daysOverdue": daysOverdue,
	})
}
