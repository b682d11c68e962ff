// Package messaging publishes notifications on NATS so other services
// (mailers, chat bridges, dashboards) can deliver or record them.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/notify"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "procurement.notifications"

// Config holds NATS connection settings
type Config struct {
	URL           string
	SubjectPrefix string
	ClientName    string
}

// Publisher is satisfied by *nats.Conn
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notification is the JSON payload published for every message
type Notification struct {
	Template   string            `json:"template"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Fields     map[string]string `json:"fields"`
	Recipients []string          `json:"recipients"`
	SentAt     time.Time         `json:"sent_at"`
}

// Connect dials the NATS server with reconnect logging
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	name := cfg.ClientName
	if name == "" {
		name = "procurement-tracker"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", cfg.URL))
	return conn, nil
}

// Notifier implements port.Notifier by publishing one message per notification
// on <prefix>.<template key in lower case>
type Notifier struct {
	publisher Publisher
	renderer  *notify.Renderer
	prefix    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotifier creates a NATS notifier
func NewNotifier(publisher Publisher, renderer *notify.Renderer, prefix string, logger *zap.Logger) *Notifier {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Notifier{
		publisher: publisher,
		renderer:  renderer,
		prefix:    strings.TrimSuffix(prefix, "."),
		logger:    logger,
		now:       time.Now,
	}
}

// Subject returns the subject a template is published on
func (n *Notifier) Subject(templateKey string) string {
	return n.prefix + "." + strings.ToLower(templateKey)
}

// Send implements port.Notifier
func (n *Notifier) Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := n.renderer.Render(templateKey, fields)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Notification{
		Template:   templateKey,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Fields:     fields,
		Recipients: recipients,
		SentAt:     n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := n.Subject(templateKey)
	if err := n.publisher.Publish(subject, data); err != nil {
		n.logger.Error("Failed to publish notification", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.Notifier = (*Notifier)(nil)
	_ Publisher     = (*nats.Conn)(nil)
)
