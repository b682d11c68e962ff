package port

import "context"

// Notification template keys
const (
	TemplateStatusChange        = "STATUS_CHANGE"
	TemplateCancellationWarning = "CANCELLATION_WARNING"
	TemplateDeliveryReminder    = "DELIVERY_REMINDER"
)

// Notifier delivers a templated message to a list of recipients
type Notifier interface {
	Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error
}

// AuthZ answers role membership for an already authenticated actor
type AuthZ interface {
	HasRole(ctx context.Context, actor, role string) bool
}
