package entity

import "time"

// BlockingCondition names the delivery step a reminder is chasing
type BlockingCondition string

const (
	ConditionShipping            BlockingCondition = "shipping"
	ConditionCustoms             BlockingCondition = "customs"
	ConditionDelivery            BlockingCondition = "delivery"
	ConditionCancellationWarning BlockingCondition = "cancellation_warning"
)

// IsDelivery returns true for the conditions driven by reminder escalation
func (c BlockingCondition) IsDelivery() bool {
	return c == ConditionShipping || c == ConditionCustoms || c == ConditionDelivery
}

// ReminderEntry is the escalation schedule of one document and condition
type ReminderEntry struct {
	DocNumber    string            `json:"document_number"`
	Condition    BlockingCondition `json:"condition"`
	IntervalDays float64           `json:"interval_days"`
	NextDue      time.Time         `json:"next_due"`
	SentCount    int               `json:"sent_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// IsDue returns true when the reminder should fire at now
func (r *ReminderEntry) IsDue(now time.Time) bool {
	return !r.NextDue.After(now)
}
