package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// Fanout delivers every notification through each of its notifiers. One
// failing transport does not stop the others.
type Fanout struct {
	notifiers []port.Notifier
}

// NewFanout creates a notifier over notifiers, skipping nil entries
func NewFanout(notifiers ...port.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len returns the number of transports
func (f *Fanout) Len() int {
	return len(f.notifiers)
}

// Send implements port.Notifier
func (f *Fanout) Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error {
	var errs []error
	for i, n := range f.notifiers {
		if err := n.Send(ctx, templateKey, fields, recipients); err != nil {
			errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes rendered notifications to the log. It is the transport
// used when neither Lark nor NATS is configured.
type LogNotifier struct {
	renderer *Renderer
	logger   *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(renderer *Renderer, logger *zap.Logger) *LogNotifier {
	return &LogNotifier{renderer: renderer, logger: logger}
}

// Send implements port.Notifier
func (n *LogNotifier) Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error {
	msg, err := n.renderer.Render(templateKey, fields)
	if err != nil {
		return err
	}
	n.logger.Info("Notification",
		zap.String("template", msg.Template),
		zap.Strings("recipients", recipients),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// Verify interface compliance
var (
	_ port.Notifier = (*Fanout)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
