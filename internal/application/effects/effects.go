// Package effects holds the post-transition processing run after a status
// change is committed. Handlers are registered on the dispatcher in a fixed
// order and each reads the document fresh from the store.
package effects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Handler names, in registration order
const (
	NameQueuePositions     = "queue_positions"
	NamePOConversion       = "po_conversion"
	NameDeliveryTracking   = "delivery_tracking"
	NameReminderClear      = "reminder_clear"
	NameStatusNotification = "status_notification"
	NameCompletion         = "completion"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Deps are the collaborators of the post-transition handlers
type Deps struct {
	Store     port.DocumentStore
	Reminders port.ReminderStore
	Vendors   port.VendorDirectory
	Notifier  port.Notifier
	Logger    Logger
	Policy    rules.Policy
	// ProcurementRecipients is the distribution list copied on every status change
	ProcurementRecipients []string
	Now                   func() time.Time
}

type handlers struct {
	deps       Deps
	completion *rules.CompletionCalculator
}

// Register subscribes the post-transition handlers on d in their fixed order
func Register(d dispatcher.Dispatcher, deps Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if deps.Policy.QuotesThreshold.IsZero() && deps.Policy.AdjudicationThreshold.IsZero() {
		deps.Policy = rules.DefaultPolicy()
	}

	h := &handlers{
		deps:       deps,
		completion: rules.NewCompletionCalculator(rules.NewRequiredFieldValidator(deps.Policy)),
	}

	d.SubscribeNamed(event.TypeStatusChanged, NameQueuePositions, h.queuePositions)
	d.SubscribeNamed(event.TypeStatusChanged, NamePOConversion, h.poConversion)
	d.SubscribeCritical(event.TypeStatusChanged, NameDeliveryTracking, h.deliveryTracking)
	d.SubscribeNamed(event.TypeStatusChanged, NameReminderClear, h.reminderClear)
	d.SubscribeNamed(event.TypeStatusChanged, NameStatusNotification, h.statusNotification)
	d.SubscribeNamed(event.TypeStatusChanged, NameCompletion, h.recomputeCompletion)
}

// queuePositions renumbers the In Queue documents of the kind when the
// event entered or left the queue
func (h *handlers) queuePositions(ctx context.Context, evt *event.Event) error {
	if !evt.Entered(workflow.StatusInQueue) && !evt.Left(workflow.StatusInQueue) {
		return nil
	}

	queued, err := h.deps.Store.ListByStatus(ctx, evt.Kind, workflow.StatusInQueue)
	if err != nil {
		return fmt.Errorf("list queued documents: %w", err)
	}

	var errs []error
	for i, doc := range rules.QueueOrder(queued) {
		position := i + 1
		if doc.QueuePosition == position {
			continue
		}
		if err := h.deps.Store.UpdateTracking(ctx, doc.Number, entity.TrackingUpdate{QueuePosition: &position}); err != nil {
			errs = append(errs, fmt.Errorf("update queue position of %s: %w", doc.Number, err))
		}
	}
	return errors.Join(errs...)
}

// poConversion allocates the purchase order of a PR that became ready.
// An existing PO is linked rather than duplicated.
func (h *handlers) poConversion(ctx context.Context, evt *event.Event) error {
	if evt.Kind != workflow.KindPR || !evt.Entered(workflow.StatusPRReady) {
		return nil
	}

	pr, _, err := h.deps.Store.FindByNumber(ctx, evt.DocNumber)
	if err != nil {
		return fmt.Errorf("load requisition: %w", err)
	}

	poNumber := pr.LinkedNumber
	if poNumber == "" {
		poNumber = entity.PurchaseOrderNumber(pr.Number)
	}

	_, _, err = h.deps.Store.FindByNumber(ctx, poNumber)
	switch {
	case errors.Is(err, port.ErrNotFound):
		po := entity.NewPurchaseOrder(pr, poNumber, h.deps.Now())
		po.LastModifiedBy = evt.Actor
		if err := h.deps.Store.AppendRow(ctx, workflow.KindPO, po); err != nil && !errors.Is(err, port.ErrDuplicate) {
			return fmt.Errorf("append purchase order %s: %w", poNumber, err)
		}
		h.deps.Logger.Info("Purchase order allocated",
			"document_number", pr.Number,
			"po_number", poNumber,
		)
	case err != nil:
		return fmt.Errorf("look up purchase order %s: %w", poNumber, err)
	}

	if pr.LinkedNumber == poNumber {
		return nil
	}
	if err := h.deps.Store.UpdateTracking(ctx, pr.Number, entity.TrackingUpdate{LinkedNumber: &poNumber}); err != nil {
		return fmt.Errorf("link requisition to %s: %w", poNumber, err)
	}
	return nil
}

// deliveryTracking initialises the delivery flags of a document that was ordered
func (h *handlers) deliveryTracking(ctx context.Context, evt *event.Event) error {
	if !evt.NewStatus.IsOrdered() {
		return nil
	}

	doc, _, err := h.deps.Store.FindByNumber(ctx, evt.DocNumber)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	no := entity.FlagNo
	ordered := h.deps.Now()
	update := entity.TrackingUpdate{
		Shipped:     &no,
		GoodsLanded: &no,
		OrderedDate: &ordered,
	}
	if doc.CustomsRequired.IsYes() {
		update.CustomsCleared = &no
	}

	if err := h.deps.Store.UpdateTracking(ctx, doc.Number, update); err != nil {
		return fmt.Errorf("initialise delivery tracking: %w", err)
	}
	return nil
}

// reminderClear drops every reminder schedule of a closed document
func (h *handlers) reminderClear(ctx context.Context, evt *event.Event) error {
	if !evt.NewStatus.IsTerminal() || h.deps.Reminders == nil {
		return nil
	}
	if err := h.deps.Reminders.DeleteByDocument(ctx, evt.DocNumber); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}
	return nil
}

// statusNotification tells procurement, the requester and the approver
func (h *handlers) statusNotification(ctx context.Context, evt *event.Event) error {
	if h.deps.Notifier == nil {
		return nil
	}

	doc, _, err := h.deps.Store.FindByNumber(ctx, evt.DocNumber)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	recipients := rules.Recipients(h.deps.ProcurementRecipients, []string{doc.Requester, doc.ApproverRef})
	if len(recipients) == 0 {
		return nil
	}

	fields := map[string]string{
		"document_number": doc.Number,
		"kind":            string(doc.Kind),
		"old_status":      string(evt.OldStatus),
		"new_status":      string(evt.NewStatus),
		"actor":           evt.Actor,
		"notes":           evt.GetPayloadString("notes"),
		"description":     doc.Description,
		"vendor":          doc.Vendor,
		"timestamp":       evt.Timestamp.Format(entity.NoteTimeLayout),
	}

	if err := h.deps.Notifier.Send(ctx, port.TemplateStatusChange, fields, recipients); err != nil {
		return fmt.Errorf("send status notification: %w", err)
	}
	return nil
}

// recomputeCompletion persists the completion percentage and days open
func (h *handlers) recomputeCompletion(ctx context.Context, evt *event.Event) error {
	doc, _, err := h.deps.Store.FindByNumber(ctx, evt.DocNumber)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	approved := false
	if h.deps.Vendors != nil && doc.Vendor != "" {
		approved, err = h.deps.Vendors.IsApproved(ctx, doc.Vendor)
		if err != nil {
			h.deps.Logger.Error("Vendor lookup failed, treating as not approved",
				"document_number", doc.Number,
				"vendor", doc.Vendor,
				"error", err,
			)
			approved = false
		}
	}

	pct := h.completion.Compute(doc, approved)
	days := rules.DaysOpen(doc.SubmittedAt, h.deps.Now())
	if err := h.deps.Store.UpdateTracking(ctx, doc.Number, entity.TrackingUpdate{CompletionPct: &pct, DaysOpen: &days}); err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
