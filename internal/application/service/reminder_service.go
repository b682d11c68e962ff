package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// ReminderConfig controls delivery reminder escalation
type ReminderConfig struct {
	Policy                rules.ReminderPolicy
	ProcurementRecipients []string
}

// ReminderResult summarises one sweep
type ReminderResult struct {
	Scanned   int      `json:"scanned"`
	Scheduled []string `json:"scheduled"`
	Sent      []string `json:"sent"`
	Cleared   []string `json:"cleared"`
	Failed    int      `json:"failed"`
}

// ReminderService chases ordered documents until their goods land
type ReminderService struct {
	store     port.DocumentStore
	reminders port.ReminderStore
	notifier  port.Notifier
	config    ReminderConfig
	logger    Logger
	now       func() time.Time
}

// NewReminderService creates a new ReminderService
func NewReminderService(
	store port.DocumentStore,
	reminders port.ReminderStore,
	notifier port.Notifier,
	config ReminderConfig,
	logger Logger,
) *ReminderService {
	if config.Policy.InitialDays <= 0 {
		config.Policy = rules.DefaultReminderPolicy()
	}
	return &ReminderService{
		store:     store,
		reminders: reminders,
		notifier:  notifier,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source
func (s *ReminderService) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep schedules, sends and clears delivery reminders for every ordered document
func (s *ReminderService) Sweep(ctx context.Context) (*ReminderResult, error) {
	now := s.now()
	result := &ReminderResult{}

	for _, kind := range []domainwf.Kind{domainwf.KindPR, domainwf.KindPO} {
		docs, err := s.store.ListByStatus(ctx, kind, domainwf.OrderedStatus(kind))
		if err != nil {
			return result, fmt.Errorf("list %s documents: %w", kind, err)
		}

		for _, doc := range docs {
			result.Scanned++
			if err := s.process(ctx, doc, now, result); err != nil {
				result.Failed++
				s.logger.Error("Reminder processing failed", "document_number", doc.Number, "error", err)
			}
		}
	}

	s.logger.Info("Reminder sweep finished",
		"scanned", result.Scanned,
		"scheduled", len(result.Scheduled),
		"sent", len(result.Sent),
		"cleared", len(result.Cleared),
		"failed", result.Failed,
	)
	return result, nil
}

func (s *ReminderService) process(ctx context.Context, doc *entity.Document, now time.Time, result *ReminderResult) error {
	entries, err := s.reminders.ListByDocument(ctx, doc.Number)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}

	condition := rules.BlockingCondition(doc)

	var current *entity.ReminderEntry
	hadDelivery := false
	for _, e := range entries {
		if !e.Condition.IsDelivery() {
			continue
		}
		hadDelivery = true
		if e.Condition == condition {
			current = e
			continue
		}
		if err := s.reminders.Delete(ctx, doc.Number, e.Condition); err != nil {
			return fmt.Errorf("delete %s reminder: %w", e.Condition, err)
		}
	}

	if condition == "" {
		if hadDelivery {
			result.Cleared = append(result.Cleared, doc.Number)
		}
		return nil
	}

	if current == nil {
		// a changed condition restarts from now, a fresh order from its order date
		anchor := now
		if !hadDelivery && !doc.OrderedDate.IsZero() {
			anchor = doc.OrderedDate
		}
		current = &entity.ReminderEntry{
			DocNumber:    doc.Number,
			Condition:    condition,
			IntervalDays: s.config.Policy.InitialDays,
			NextDue:      rules.AddBusinessDays(anchor, s.config.Policy.InitialDays),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.reminders.Upsert(ctx, current); err != nil {
			return fmt.Errorf("schedule reminder: %w", err)
		}
		result.Scheduled = append(result.Scheduled, doc.Number)
	}

	if !current.IsDue(now) {
		return nil
	}

	recipients := rules.Recipients([]string{doc.Requester}, s.config.ProcurementRecipients)
	fields := map[string]string{
		"document_number":       doc.Number,
		"kind":                  string(doc.Kind),
		"condition":             string(condition),
		"vendor":                doc.Vendor,
		"description":           doc.Description,
		"expected_landing_date": formatDate(doc.ExpectedLandingDate),
		"reminder_count":        strconv.Itoa(current.SentCount + 1),
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, port.TemplateDeliveryReminder, fields, recipients); err != nil {
			return fmt.Errorf("send reminder: %w", err)
		}
	}

	current.SentCount++
	current.IntervalDays = s.config.Policy.Next(current.IntervalDays)
	current.NextDue = rules.AddBusinessDays(now, current.IntervalDays)
	current.UpdatedAt = now
	if err := s.reminders.Upsert(ctx, current); err != nil {
		return fmt.Errorf("reschedule reminder: %w", err)
	}

	result.Sent = append(result.Sent, doc.Number)
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(rules.DateLayout)
}
