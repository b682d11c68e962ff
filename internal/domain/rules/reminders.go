package rules

import (
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

// ReminderPolicy controls delivery reminder escalation
type ReminderPolicy struct {
	InitialDays float64
	FloorDays   float64
}

// DefaultReminderPolicy starts at five business days and halves down to one
func DefaultReminderPolicy() ReminderPolicy {
	return ReminderPolicy{InitialDays: 5, FloorDays: 1}
}

// Next returns the interval following interval
func (p ReminderPolicy) Next(interval float64) float64 {
	next := interval / 2
	if next < p.FloorDays {
		return p.FloorDays
	}
	return next
}

// BlockingCondition returns the first unfinished delivery step of an ordered
// document, in priority shipping, customs, delivery. Empty when all are done.
func BlockingCondition(doc *entity.Document) entity.BlockingCondition {
	switch {
	case !doc.Shipped.IsYes():
		return entity.ConditionShipping
	case doc.CustomsRequired.IsYes() && !doc.CustomsCleared.IsYes():
		return entity.ConditionCustoms
	case !doc.GoodsLanded.IsYes():
		return entity.ConditionDelivery
	}
	return ""
}
