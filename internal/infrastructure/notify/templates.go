// Package notify renders notification templates and fans messages out to
// the configured transports.
package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/garyjia/procurement-tracker/internal/application/port"
)

// Message is a rendered notification
type Message struct {
	Template string
	Subject  string
	Body     string
}

type messageTemplate struct {
	subject *template.Template
	body    *template.Template
}

var defaultTemplates = map[string][2]string{
	port.TemplateStatusChange: {
		`{{.kind}} {{.document_number}} is now {{.new_status}}`,
		`{{.kind}} {{.document_number}} moved from {{.old_status}} to {{.new_status}} by {{.actor}} at {{.timestamp}}.
{{- if .description}}
Item: {{.description}}{{end}}
{{- if .vendor}}
Vendor: {{.vendor}}{{end}}
{{- if .notes}}
Notes: {{.notes}}{{end}}`,
	},
	port.TemplateCancellationWarning: {
		`{{.kind}} {{.document_number}} will be canceled soon`,
		`{{.kind}} {{.document_number}} is {{.overdue_days}} business days past its expected landing date {{.expected_landing_date}}.
It will be canceled automatically at {{.cancel_after_days}} business days unless delivery is recorded.
{{- if .vendor}}
Vendor: {{.vendor}}{{end}}`,
	},
	port.TemplateDeliveryReminder: {
		`Reminder: {{.kind}} {{.document_number}} is waiting on {{.condition}}`,
		`{{.kind}} {{.document_number}} is still waiting on {{.condition}} (reminder {{.reminder_count}}).
{{- if .expected_landing_date}}
Expected landing date: {{.expected_landing_date}}{{end}}
{{- if .vendor}}
Vendor: {{.vendor}}{{end}}`,
	},
}

// Renderer turns a template key and its fields into a Message
type Renderer struct {
	templates map[string]messageTemplate
}

// NewRenderer parses the built-in templates
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]messageTemplate, len(defaultTemplates))}
	for key, t := range defaultTemplates {
		if err := r.Register(key, t[0], t[1]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a template
func (r *Renderer) Register(key, subject, body string) error {
	s, err := template.New(key + ".subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return fmt.Errorf("parse %s subject: %w", key, err)
	}
	b, err := template.New(key + ".body").Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("parse %s body: %w", key, err)
	}
	r.templates[key] = messageTemplate{subject: s, body: b}
	return nil
}

// Render executes the template named key
func (r *Renderer) Render(key string, fields map[string]string) (Message, error) {
	t, ok := r.templates[key]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", key)
	}

	var subject, body bytes.Buffer
	if err := t.subject.Execute(&subject, fields); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", key, err)
	}
	if err := t.body.Execute(&body, fields); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", key, err)
	}

	return Message{
		Template: key,
		Subject:  strings.TrimSpace(subject.String()),
		Body:     strings.TrimSpace(body.String()),
	}, nil
}
