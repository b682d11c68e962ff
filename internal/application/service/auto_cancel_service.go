package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefaultSystemActor is the actor recorded for automated transitions
const DefaultSystemActor = "system"

// AutoCancelConfig holds the overdue thresholds in business days
type AutoCancelConfig struct {
	WarningDays           int
	CancelAfterDays       int
	SystemActor           string
	ProcurementRecipients []string
}

// DefaultAutoCancelConfig warns after 30 and cancels after 40 overdue business days
func DefaultAutoCancelConfig() AutoCancelConfig {
	return AutoCancelConfig{
		WarningDays:     30,
		CancelAfterDays: 40,
		SystemActor:     DefaultSystemActor,
	}
}

// AutoCancelResult summarises one sweep
type AutoCancelResult struct {
	Scanned  int      `json:"scanned"`
	Warned   []string `json:"warned"`
	Canceled []string `json:"canceled"`
	Failed   int      `json:"failed"`
}

// AutoCancelService cancels ordered documents whose goods never landed
type AutoCancelService struct {
	store     port.DocumentStore
	reminders port.ReminderStore
	notifier  port.Notifier
	engine    workflow.WorkflowEngine
	config    AutoCancelConfig
	logger    Logger
	now       func() time.Time
}

// NewAutoCancelService creates a new AutoCancelService
func NewAutoCancelService(
	store port.DocumentStore,
	reminders port.ReminderStore,
	notifier port.Notifier,
	engine workflow.WorkflowEngine,
	config AutoCancelConfig,
	logger Logger,
) *AutoCancelService {
	defaults := DefaultAutoCancelConfig()
	if config.WarningDays <= 0 {
		config.WarningDays = defaults.WarningDays
	}
	if config.CancelAfterDays <= 0 {
		config.CancelAfterDays = defaults.CancelAfterDays
	}
	if config.SystemActor == "" {
		config.SystemActor = defaults.SystemActor
	}
	return &AutoCancelService{
		store:     store,
		reminders: reminders,
		notifier:  notifier,
		engine:    engine,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source
func (s *AutoCancelService) SetClock(now func() time.Time) {
	s.now = now
}

// Sweep scans every ordered document once. Per-document failures are logged
// and counted; only a failure to list documents aborts the sweep.
func (s *AutoCancelService) Sweep(ctx context.Context) (*AutoCancelResult, error) {
	now := s.now()
	result := &AutoCancelResult{}

	for _, kind := range []domainwf.Kind{domainwf.KindPR, domainwf.KindPO} {
		ordered := domainwf.OrderedStatus(kind)
		docs, err := s.store.ListByStatus(ctx, kind, ordered)
		if err != nil {
			return result, fmt.Errorf("list %s documents: %w", kind, err)
		}

		for _, doc := range docs {
			if doc.Status != ordered || doc.ExpectedLandingDate.IsZero() {
				continue
			}
			result.Scanned++

			overdue := rules.BusinessDaysBetween(doc.ExpectedLandingDate, now)
			switch {
			case overdue >= s.config.CancelAfterDays:
				if err := s.cancel(ctx, doc, overdue); err != nil {
					result.Failed++
					s.logger.Error("Auto-cancel failed", "document_number", doc.Number, "error", err)
					continue
				}
				result.Canceled = append(result.Canceled, doc.Number)
			case overdue >= s.config.WarningDays:
				sent, err := s.warn(ctx, doc, overdue, now)
				if err != nil {
					result.Failed++
					s.logger.Error("Cancellation warning failed", "document_number", doc.Number, "error", err)
					continue
				}
				if sent {
					result.Warned = append(result.Warned, doc.Number)
				}
			}
		}
	}

	s.logger.Info("Auto-cancel sweep finished",
		"scanned", result.Scanned,
		"warned", len(result.Warned),
		"canceled", len(result.Canceled),
		"failed", result.Failed,
	)
	return result, nil
}

func (s *AutoCancelService) cancel(ctx context.Context, doc *entity.Document, overdue int) error {
	note := fmt.Sprintf("Auto-canceled: %d business days overdue from expected landing date %s",
		overdue, doc.ExpectedLandingDate.Format(rules.DateLayout))

	_, err := s.engine.RequestTransition(ctx, workflow.TransitionRequest{
		DocNumber:      doc.Number,
		NewStatus:      domainwf.StatusCanceled,
		Notes:          note,
		Actor:          s.config.SystemActor,
		SkipValidation: true,
		ExpectedStatus: doc.Status,
	})
	if err != nil {
		return fmt.Errorf("cancel %s: %w", doc.Number, err)
	}

	s.logger.Info("Document auto-canceled",
		"document_number", doc.Number,
		"overdue_days", overdue,
	)
	return nil
}

// warn sends the cancellation warning once per document
func (s *AutoCancelService) warn(ctx context.Context, doc *entity.Document, overdue int, now time.Time) (bool, error) {
	entries, err := s.reminders.ListByDocument(ctx, doc.Number)
	if err != nil {
		return false, fmt.Errorf("list reminders: %w", err)
	}
	for _, e := range entries {
		if e.Condition == entity.ConditionCancellationWarning {
			return false, nil
		}
	}

	recipients := rules.Recipients([]string{doc.Requester}, s.config.ProcurementRecipients)
	fields := map[string]string{
		"document_number":       doc.Number,
		"kind":                  string(doc.Kind),
		"status":                string(doc.Status),
		"vendor":                doc.Vendor,
		"description":           doc.Description,
		"expected_landing_date": doc.ExpectedLandingDate.Format(rules.DateLayout),
		"overdue_days":          strconv.Itoa(overdue),
		"cancel_after_days":     strconv.Itoa(s.config.CancelAfterDays),
	}
	if s.notifier == nil {
		return false, errors.New("no notifier configured")
	}
	if err := s.notifier.Send(ctx, port.TemplateCancellationWarning, fields, recipients); err != nil {
		return false, fmt.Errorf("send warning: %w", err)
	}

	err = s.reminders.Upsert(ctx, &entity.ReminderEntry{
		DocNumber: doc.Number,
		Condition: entity.ConditionCancellationWarning,
		NextDue:   now,
		SentCount: 1,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return true, fmt.Errorf("record warning: %w", err)
	}
	return true, nil
}
