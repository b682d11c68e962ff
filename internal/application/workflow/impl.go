package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/lock"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	store   port.DocumentStore
	audit   port.AuditLog
	vendors port.VendorDirectory
	authz   port.AuthZ
	locker  lock.Locker

	table      *domainwf.Table
	required   *rules.RequiredFieldValidator
	business   *rules.BusinessRuleValidator
	dispatcher dispatcher.Dispatcher
	observer   Observer
	logger     Logger
	role       string
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the dispatcher that runs post-transition processing
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithTable replaces the default transition table
func WithTable(t *domainwf.Table) EngineOption {
	return func(e *engineImpl) {
		e.table = t
	}
}

// WithPolicy sets the thresholds used by the validators
func WithPolicy(p rules.Policy) EngineOption {
	return func(e *engineImpl) {
		e.required = rules.NewRequiredFieldValidator(p)
		e.business = rules.NewBusinessRuleValidator(p)
	}
}

// WithObserver sets a metrics observer
func WithObserver(o Observer) EngineOption {
	return func(e *engineImpl) {
		e.observer = o
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithRole overrides the role checked before every transition
func WithRole(role string) EngineOption {
	return func(e *engineImpl) {
		e.role = role
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	store port.DocumentStore,
	audit port.AuditLog,
	vendors port.VendorDirectory,
	authz port.AuthZ,
	locker lock.Locker,
	opts ...EngineOption,
) WorkflowEngine {
	policy := rules.DefaultPolicy()
	e := &engineImpl{
		store:    store,
		audit:    audit,
		vendors:  vendors,
		authz:    authz,
		locker:   locker,
		table:    domainwf.DefaultTable(),
		required: rules.NewRequiredFieldValidator(policy),
		business: rules.NewBusinessRuleValidator(policy),
		logger:   nopLogger{},
		role:     ProcurementRole,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// committed carries the outcome of the locked section
type committed struct {
	doc    *entity.Document
	record *entity.StatusChangeRecord
}

// RequestTransition validates and applies a status change
func (e *engineImpl) RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	req.DocNumber = strings.TrimSpace(req.DocNumber)

	if !e.authz.HasRole(ctx, req.Actor, e.role) {
		e.observe("", "", req.NewStatus, domainwf.ErrorUnauthorized)
		return nil, domainwf.NewUnauthorized(req.DocNumber, req.Actor, e.role)
	}

	c, err := e.commit(ctx, req)
	if err != nil {
		e.logger.Error("Transition rejected",
			"document_number", req.DocNumber,
			"new_status", req.NewStatus,
			"actor", req.Actor,
			"error", err,
		)
		return nil, err
	}

	e.observe(c.record.Kind, c.record.OldStatus, c.record.NewStatus, "")
	e.logger.Info("Status changed",
		"document_number", c.doc.Number,
		"kind", c.doc.Kind,
		"old_status", c.record.OldStatus,
		"new_status", c.record.NewStatus,
		"actor", req.Actor,
		"skip_validation", req.SkipValidation,
	)

	result := &TransitionResult{
		Success:   true,
		DocNumber: c.doc.Number,
		Kind:      c.doc.Kind,
		OldStatus: c.record.OldStatus,
		Status:    c.record.NewStatus,
		Timestamp: c.record.Timestamp,
		AuditID:   c.record.ID,
	}

	result.Warnings = e.dispatch(ctx, c)
	return result, nil
}

// commit runs steps that must happen under the document lock
func (e *engineImpl) commit(ctx context.Context, req TransitionRequest) (*committed, error) {
	waitStart := time.Now()
	release, err := e.locker.Acquire(ctx, req.DocNumber)
	if e.observer != nil {
		e.observer.LockWaited(time.Since(waitStart))
	}
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			e.observe("", "", req.NewStatus, domainwf.ErrorLockTimeout)
			return nil, domainwf.NewLockTimeout(req.DocNumber, err)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	doc, ref, err := e.store.FindByNumber(ctx, req.DocNumber)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			e.observe("", "", req.NewStatus, domainwf.ErrorNotFound)
			return nil, domainwf.NewNotFound(req.DocNumber)
		}
		e.observe("", "", req.NewStatus, domainwf.ErrorPersistenceFailure)
		return nil, domainwf.NewPersistenceFailure(req.DocNumber, fmt.Errorf("find document: %w", err))
	}

	from := doc.Status
	now := e.now()

	if err := e.validate(ctx, doc, req, now); err != nil {
		e.observe(doc.Kind, from, req.NewStatus, domainwf.KindOf(err))
		return nil, err
	}

	record := &entity.StatusChangeRecord{
		ID:        uuid.NewString(),
		Timestamp: now,
		Actor:     req.Actor,
		Action:    entity.ActionStatusChange,
		DocNumber: doc.Number,
		Kind:      doc.Kind,
		Details:   fmt.Sprintf("%s: %s -> %s", doc.Kind, from, req.NewStatus),
		OldStatus: from,
		NewStatus: req.NewStatus,
		Notes:     strings.TrimSpace(req.Notes),
	}

	updated := doc.Clone()
	updated.Status = req.NewStatus
	updated.Notes = entity.AppendNote(doc.Notes, now, req.Actor, req.Notes)
	updated.LastModified = now
	updated.LastModifiedBy = req.Actor
	if from == domainwf.StatusInQueue && req.NewStatus != domainwf.StatusInQueue {
		updated.QueuePosition = 0
	}

	if err := e.store.ReplaceRow(ctx, ref, updated); err != nil {
		e.observe(doc.Kind, from, req.NewStatus, domainwf.ErrorPersistenceFailure)
		return nil, domainwf.NewPersistenceFailure(doc.Number, fmt.Errorf("replace row: %w", err))
	}

	if err := e.audit.Append(ctx, record); err != nil {
		e.logger.Error("Failed to append audit record",
			"document_number", doc.Number,
			"audit_id", record.ID,
			"error", err,
		)
	}

	return &committed{doc: updated, record: record}, nil
}

// validate runs the table, required-field and business-rule gates in order
func (e *engineImpl) validate(ctx context.Context, doc *entity.Document, req TransitionRequest, now time.Time) error {
	if !e.table.Knows(doc.Kind, req.NewStatus) {
		return domainwf.NewInvalidTransition(doc.Number, doc.Status, req.NewStatus, e.table.Allowed(doc.Kind, doc.Status))
	}
	if req.ExpectedStatus != "" && doc.Status != req.ExpectedStatus {
		return domainwf.NewInvalidTransition(doc.Number, doc.Status, req.NewStatus, e.table.Allowed(doc.Kind, doc.Status))
	}
	if req.SkipValidation {
		return nil
	}

	if !e.table.CanTransition(doc.Kind, doc.Status, req.NewStatus) {
		return domainwf.NewInvalidTransition(doc.Number, doc.Status, req.NewStatus, e.table.Allowed(doc.Kind, doc.Status))
	}

	approved := e.vendorApproved(ctx, doc)

	if missing := e.required.Validate(doc, req.NewStatus, approved); len(missing) > 0 {
		return domainwf.NewMissingFields(doc.Number, req.NewStatus, missing)
	}

	if err := e.business.Validate(doc, req.NewStatus, approved, now); err != nil {
		var violation *rules.RuleViolation
		if errors.As(err, &violation) {
			return domainwf.NewBusinessRuleViolation(doc.Number, violation.Rule, violation.Message)
		}
		return domainwf.NewBusinessRuleViolation(doc.Number, "", err.Error())
	}

	return nil
}

// vendorApproved looks up the vendor once per request. Lookup failures
// count as not approved.
func (e *engineImpl) vendorApproved(ctx context.Context, doc *entity.Document) bool {
	if e.vendors == nil || strings.TrimSpace(doc.Vendor) == "" {
		return false
	}
	approved, err := e.vendors.IsApproved(ctx, doc.Vendor)
	if err != nil {
		e.logger.Error("Vendor lookup failed, treating as not approved",
			"document_number", doc.Number,
			"vendor", doc.Vendor,
			"error", err,
		)
		return false
	}
	return approved
}

// dispatch runs post-transition processing and returns surfaced failures
func (e *engineImpl) dispatch(ctx context.Context, c *committed) []string {
	if e.dispatcher == nil {
		return nil
	}

	evt := event.NewStatusChanged(c.doc.Number, c.doc.Kind, c.record.OldStatus, c.record.NewStatus, c.record.Actor, c.record.Timestamp).
		WithPayload("notes", c.record.Notes).
		WithPayload("audit_id", c.record.ID)

	report, err := e.dispatcher.Dispatch(ctx, evt)
	if err != nil {
		e.logger.Error("Post-transition dispatch failed",
			"document_number", c.doc.Number,
			"error", err,
		)
		return []string{domainwf.NewSideEffectFailure(c.doc.Number, "dispatch", err).Error()}
	}

	var warnings []string
	for _, f := range report.Failures {
		if !f.Critical {
			continue
		}
		warnings = append(warnings, domainwf.NewSideEffectFailure(c.doc.Number, f.Handler, f.Err).Error())
	}
	return warnings
}

func (e *engineImpl) observe(kind domainwf.Kind, from, to domainwf.Status, failure domainwf.ErrorKind) {
	if e.observer == nil {
		return
	}
	outcome := "success"
	if failure != "" {
		outcome = string(failure)
	}
	e.observer.TransitionObserved(string(kind), string(from), string(to), outcome)
}

// AllowedTransitions returns the current status and its permitted targets
func (e *engineImpl) AllowedTransitions(ctx context.Context, docNumber string) (domainwf.Status, []domainwf.Status, error) {
	doc, _, err := e.store.FindByNumber(ctx, strings.TrimSpace(docNumber))
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return "", nil, domainwf.NewNotFound(docNumber)
		}
		return "", nil, fmt.Errorf("find document: %w", err)
	}
	return doc.Status, e.table.Allowed(doc.Kind, doc.Status), nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
