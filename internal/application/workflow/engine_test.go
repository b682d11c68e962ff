package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/lock"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/event"
	"github.com/garyjia/procurement-tracker/internal/domain/rules"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Mock implementations

type memStore struct {
	mu      sync.Mutex
	docs    map[string]*entity.Document
	version map[string]int64
	findErr error
	putErr  error
	puts    int
}

func newMemStore(docs ...*entity.Document) *memStore {
	s := &memStore{docs: map[string]*entity.Document{}, version: map[string]int64{}}
	for _, d := range docs {
		s.docs[d.Number] = d.Clone()
		s.version[d.Number] = 1
	}
	return s
}

func (s *memStore) FindByNumber(ctx context.Context, number string) (*entity.Document, port.RowRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, port.RowRef{}, s.findErr
	}
	d, ok := s.docs[number]
	if !ok {
		return nil, port.RowRef{}, port.ErrNotFound
	}
	return d.Clone(), port.RowRef{ID: 1, Version: s.version[number]}, nil
}

func (s *memStore) ReplaceRow(ctx context.Context, ref port.RowRef, doc *entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.version[doc.Number] != ref.Version {
		return port.ErrStaleRow
	}
	s.docs[doc.Number] = doc.Clone()
	s.version[doc.Number]++
	s.puts++
	return nil
}

func (s *memStore) AppendRow(ctx context.Context, kind domainwf.Kind, doc *entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Number] = doc.Clone()
	s.version[doc.Number] = 1
	return nil
}

func (s *memStore) ListByStatus(ctx context.Context, kind domainwf.Kind, statuses ...domainwf.Status) ([]*entity.Document, error) {
	return nil, nil
}

func (s *memStore) UpdateTracking(ctx context.Context, number string, update entity.TrackingUpdate) error {
	return nil
}

func (s *memStore) get(number string) *entity.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[number].Clone()
}

type memAudit struct {
	mu      sync.Mutex
	records []*entity.StatusChangeRecord
	err     error
}

func (a *memAudit) Append(ctx context.Context, r *entity.StatusChangeRecord) error {
	if a.err != nil {
		return a.err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
	return nil
}

func (a *memAudit) ListByDocument(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records, nil
}

func (a *memAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

type mockVendors struct {
	approved map[string]bool
	err      error
	calls    int
}

func (v *mockVendors) IsApproved(ctx context.Context, vendor string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.approved[vendor], nil
}

type mockAuthZ struct {
	allowed map[string]bool
}

func (a mockAuthZ) HasRole(ctx context.Context, actor, role string) bool {
	return role == ProcurementRole && a.allowed[actor]
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) TransitionObserved(kind, from, to, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) LockWaited(time.Duration) {}

// Fixtures

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func queuedPR() *entity.Document {
	return &entity.Document{
		Number:      "PR-100",
		Kind:        domainwf.KindPR,
		Status:      domainwf.StatusInQueue,
		Amount:      decimal.NewNullDecimal(decimal.NewFromInt(1200)),
		Vendor:      "Acme",
		Requester:   "ana@example.com",
		Description: "Bench power supply",
		SubmittedAt: fixedNow.AddDate(0, 0, -3),
		Notes:       "[2026-02-27 09:00] ana: created",
	}
}

func submittedPR() *entity.Document {
	d := queuedPR()
	d.Status = domainwf.StatusSubmitted
	return d
}

type fixture struct {
	store    *memStore
	audit    *memAudit
	vendors  *mockVendors
	observer *recordingObserver
	engine   WorkflowEngine
}

func newFixture(t *testing.T, docs []*entity.Document, opts ...EngineOption) *fixture {
	t.Helper()
	locker, err := lock.New(lock.ModeDocument, 200*time.Millisecond)
	require.NoError(t, err)

	f := &fixture{
		store:    newMemStore(docs...),
		audit:    &memAudit{},
		vendors:  &mockVendors{approved: map[string]bool{"Acme": true}},
		observer: &recordingObserver{},
	}
	opts = append([]EngineOption{
		WithClock(func() time.Time { return fixedNow }),
		WithObserver(f.observer),
	}, opts...)
	f.engine = NewEngine(f.store, f.audit, f.vendors,
		mockAuthZ{allowed: map[string]bool{"bob": true, "carol": true}}, locker, opts...)
	return f
}

// Tests

func TestRequestTransition_Unauthorized(t *testing.T) {
	f := newFixture(t, []*entity.Document{queuedPR()})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusRejected, Actor: "mallory",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domainwf.ErrUnauthorized))
	assert.Equal(t, domainwf.StatusInQueue, f.store.get("PR-100").Status)
	assert.Equal(t, 0, f.audit.count())
}

func TestRequestTransition_NotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-404", NewStatus: domainwf.StatusRejected, Actor: "bob",
	})

	assert.Equal(t, domainwf.ErrorNotFound, domainwf.KindOf(err))
}

func TestRequestTransition_InvalidTransitionLeavesRowUntouched(t *testing.T) {
	f := newFixture(t, []*entity.Document{queuedPR()})
	before := f.store.get("PR-100")

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusCompleted, Actor: "bob", Notes: "skip ahead",
	})

	require.Error(t, err)
	var te *domainwf.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domainwf.ErrorInvalidTransition, te.Kind)
	assert.Contains(t, te.Allowed, domainwf.StatusPRReady)
	assert.Contains(t, te.Allowed, domainwf.StatusCanceled)
	assert.Equal(t, before, f.store.get("PR-100"))
	assert.Equal(t, 0, f.store.puts)
	assert.Equal(t, 0, f.audit.count())
}

func TestRequestTransition_SameStatusRejected(t *testing.T) {
	f := newFixture(t, []*entity.Document{queuedPR()})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob",
	})

	assert.Equal(t, domainwf.ErrorInvalidTransition, domainwf.KindOf(err))
}

func TestRequestTransition_MissingFieldsListsAll(t *testing.T) {
	doc := queuedPR()
	doc.Amount = decimal.NewNullDecimal(decimal.NewFromInt(60000))
	doc.Vendor = "Unknown Ltd"
	f := newFixture(t, []*entity.Document{doc})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusPRReady, Actor: "bob",
	})

	var te *domainwf.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domainwf.ErrorMissingFields, te.Kind)
	assert.ElementsMatch(t, []string{
		rules.FieldApprover, rules.FieldDeadline,
		rules.FieldQuotesLink, rules.FieldQuotesDate,
		rules.FieldAdjudicationNotes, rules.FieldAdjudicationDate,
	}, te.MissingFields)
	assert.Equal(t, 1, f.vendors.calls)
}

func TestRequestTransition_BusinessRuleRejectsFarLandingDate(t *testing.T) {
	doc := queuedPR()
	doc.ApproverRef = "dan@example.com"
	doc.Deadline = fixedNow.AddDate(0, 1, 0)
	doc.ProofOfPurchaseLink = "https://files.example.com/pop.pdf"
	doc.PaymentDate = fixedNow
	doc.ExpectedLandingDate = fixedNow.AddDate(0, 7, 0)
	f := newFixture(t, []*entity.Document{doc})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusOrdered, Actor: "bob",
	})

	var te *domainwf.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domainwf.ErrorBusinessRuleViolation, te.Kind)
	assert.Equal(t, rules.RuleLandingDateTooFar, te.Rule)
	assert.Equal(t, domainwf.StatusInQueue, f.store.get("PR-100").Status)
}

func TestRequestTransition_Success(t *testing.T) {
	f := newFixture(t, []*entity.Document{submittedPR()})

	result, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob", Notes: "looks complete",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domainwf.StatusSubmitted, result.OldStatus)
	assert.Equal(t, domainwf.StatusInQueue, result.Status)
	assert.Empty(t, result.Warnings)

	stored := f.store.get("PR-100")
	assert.Equal(t, domainwf.StatusInQueue, stored.Status)
	assert.Equal(t, fixedNow, stored.LastModified)
	assert.Equal(t, "bob", stored.LastModifiedBy)
	assert.Equal(t, "[2026-02-27 09:00] ana: created\n[2026-03-02 10:00] bob: looks complete", stored.Notes)

	require.Equal(t, 1, f.audit.count())
	rec := f.audit.records[0]
	assert.Equal(t, result.AuditID, rec.ID)
	assert.Equal(t, entity.ActionStatusChange, rec.Action)
	assert.Equal(t, domainwf.StatusSubmitted, rec.OldStatus)
	assert.Equal(t, domainwf.StatusInQueue, rec.NewStatus)
	assert.Equal(t, []string{"success"}, f.observer.outcomes)
}

func TestRequestTransition_LeavingQueueClearsPosition(t *testing.T) {
	doc := queuedPR()
	doc.QueuePosition = 3
	f := newFixture(t, []*entity.Document{doc})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusRejected, Actor: "bob",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.store.get("PR-100").QueuePosition)
}

func TestRequestTransition_SkipValidation(t *testing.T) {
	f := newFixture(t, []*entity.Document{submittedPR()})

	result, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusCompleted, Actor: "bob", SkipValidation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusCompleted, result.Status)

	_, err = f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusPOApproved, Actor: "bob", SkipValidation: true,
	})
	assert.Equal(t, domainwf.ErrorInvalidTransition, domainwf.KindOf(err))
}

func TestRequestTransition_AuditFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, []*entity.Document{submittedPR()})
	f.audit.err = errors.New("sheet locked")

	result, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domainwf.StatusInQueue, f.store.get("PR-100").Status)
}

func TestRequestTransition_PersistenceFailure(t *testing.T) {
	f := newFixture(t, []*entity.Document{submittedPR()})
	f.store.putErr = errors.New("disk full")

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob",
	})

	assert.True(t, errors.Is(err, domainwf.ErrPersistence))
	assert.Equal(t, 0, f.audit.count())
}

func TestRequestTransition_VendorLookupFailureTreatedAsNotApproved(t *testing.T) {
	doc := queuedPR()
	doc.Amount = decimal.NewNullDecimal(decimal.NewFromInt(8000))
	doc.ApproverRef = "dan@example.com"
	doc.Deadline = fixedNow.AddDate(0, 1, 0)
	f := newFixture(t, []*entity.Document{doc})
	f.vendors.err = errors.New("directory offline")

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusPRReady, Actor: "bob",
	})

	var te *domainwf.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domainwf.ErrorMissingFields, te.Kind)
	assert.Equal(t, []string{rules.FieldQuotesLink, rules.FieldQuotesDate}, te.MissingFields)
}

func TestRequestTransition_ConcurrentRequestsOneWins(t *testing.T) {
	f := newFixture(t, []*entity.Document{submittedPR()})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, errs[i] = f.engine.RequestTransition(context.Background(), TransitionRequest{
				DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: actor,
			})
		}(i, actor)
	}
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domainwf.KindOf(err) == domainwf.ErrorInvalidTransition:
			invalid++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, 1, f.audit.count())
}

func TestRequestTransition_LockTimeout(t *testing.T) {
	locker, err := lock.New(lock.ModeDocument, 20*time.Millisecond)
	require.NoError(t, err)
	release, err := locker.Acquire(context.Background(), "PR-100")
	require.NoError(t, err)
	defer release()

	store := newMemStore(submittedPR())
	engine := NewEngine(store, &memAudit{}, &mockVendors{}, mockAuthZ{allowed: map[string]bool{"bob": true}}, locker)

	_, err = engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob",
	})

	assert.True(t, errors.Is(err, domainwf.ErrLockTimeout))
	assert.Equal(t, domainwf.StatusSubmitted, store.get("PR-100").Status)
}

func TestRequestTransition_DispatchesStatusChanged(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	var got *event.Event
	d.SubscribeNamed(event.TypeStatusChanged, "capture", func(ctx context.Context, evt *event.Event) error {
		got = evt
		return nil
	})

	f := newFixture(t, []*entity.Document{submittedPR()}, WithDispatcher(d))
	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob", Notes: "ok",
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "PR-100", got.DocNumber)
	assert.Equal(t, domainwf.StatusSubmitted, got.OldStatus)
	assert.Equal(t, domainwf.StatusInQueue, got.NewStatus)
	assert.Equal(t, "ok", got.GetPayloadString("notes"))
}

func TestRequestTransition_CriticalEffectFailureSurfacesAsWarning(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()
	d.SubscribeCritical(event.TypeStatusChanged, "delivery_tracking", func(ctx context.Context, evt *event.Event) error {
		return errors.New("tracking columns locked")
	})
	d.SubscribeNamed(event.TypeStatusChanged, "status_notification", func(ctx context.Context, evt *event.Event) error {
		return errors.New("smtp down")
	})

	f := newFixture(t, []*entity.Document{submittedPR()}, WithDispatcher(d))
	result, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber: "PR-100", NewStatus: domainwf.StatusInQueue, Actor: "bob",
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "delivery_tracking")
}

func TestAllowedTransitions(t *testing.T) {
	f := newFixture(t, []*entity.Document{queuedPR()})

	current, allowed, err := f.engine.AllowedTransitions(context.Background(), "PR-100")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusInQueue, current)
	assert.Equal(t, []domainwf.Status{
		domainwf.StatusCanceled,
		domainwf.StatusOrdered,
		domainwf.StatusPRReady,
		domainwf.StatusRejected,
		domainwf.StatusRevisionRequired,
	}, allowed)

	_, _, err = f.engine.AllowedTransitions(context.Background(), "PR-404")
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))
}

func TestRequestTransition_ExpectedStatusGuardsSkipValidation(t *testing.T) {
	f := newFixture(t, []*entity.Document{queuedPR()})

	_, err := f.engine.RequestTransition(context.Background(), TransitionRequest{
		DocNumber:      "PR-100",
		NewStatus:      domainwf.StatusCanceled,
		Actor:          "bob",
		SkipValidation: true,
		ExpectedStatus: domainwf.StatusOrdered,
	})

	assert.Equal(t, domainwf.ErrorInvalidTransition, domainwf.KindOf(err))
	assert.Equal(t, domainwf.StatusInQueue, f.store.get("PR-100").Status)
}
