package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/notify"
)

// receiveIDTypeEmail addresses users by their Lark account email
const receiveIDTypeEmail = "email"

// MessageSender is the part of MessageAPI the notifier needs
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Notifier implements port.Notifier with Lark IM text messages, one per recipient
type Notifier struct {
	sender   MessageSender
	renderer *notify.Renderer
	logger   *zap.Logger
}

// NewNotifier creates a Lark notifier
func NewNotifier(sender MessageSender, renderer *notify.Renderer, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		renderer: renderer,
		logger:   logger,
	}
}

// Send renders the template and messages every recipient. Delivery continues
// past individual failures; the joined error names each failed recipient.
func (n *Notifier) Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error {
	msg, err := n.renderer.Render(templateKey, fields)
	if err != nil {
		return err
	}

	content, err := json.Marshal(map[string]string{"text": msg.Subject + "\n\n" + msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	var errs []error
	for _, to := range recipients {
		if to == "" {
			continue
		}
		if _, err := n.sender.SendMessage(ctx, receiveIDTypeEmail, to, "text", string(content)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}

	if len(errs) > 0 {
		n.logger.Error("Lark notification partially failed",
			zap.String("template", templateKey),
			zap.Int("failed", len(errs)),
			zap.Int("recipients", len(recipients)))
		return errors.Join(errs...)
	}

	n.logger.Info("Lark notification sent",
		zap.String("template", templateKey),
		zap.Int("recipients", len(recipients)))
	return nil
}

// Verify interface compliance
var (
	_ port.Notifier = (*Notifier)(nil)
	_ MessageSender = (*MessageAPI)(nil)
)
