package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	domainwf "github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

// Mock implementations

type mockLogger struct{}

func (mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type memStore struct {
	mu      sync.Mutex
	docs    map[string]*entity.Document
	order   []string
	listErr error
}

func newMemStore(docs ...*entity.Document) *memStore {
	s := &memStore{docs: map[string]*entity.Document{}}
	for _, d := range docs {
		s.docs[d.Number] = d.Clone()
		s.order = append(s.order, d.Number)
	}
	return s
}

func (s *memStore) FindByNumber(ctx context.Context, number string) (*entity.Document, port.RowRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[number]
	if !ok {
		return nil, port.RowRef{}, port.ErrNotFound
	}
	return d.Clone(), port.RowRef{ID: 1, Version: 1}, nil
}

func (s *memStore) ReplaceRow(ctx context.Context, ref port.RowRef, doc *entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Number] = doc.Clone()
	return nil
}

func (s *memStore) AppendRow(ctx context.Context, kind domainwf.Kind, doc *entity.Document) error {
	return s.ReplaceRow(ctx, port.RowRef{}, doc)
}

func (s *memStore) ListByStatus(ctx context.Context, kind domainwf.Kind, statuses ...domainwf.Status) ([]*entity.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*entity.Document
	for _, n := range s.order {
		d := s.docs[n]
		for _, st := range statuses {
			if d.Kind == kind && d.Status == st {
				out = append(out, d.Clone())
			}
		}
	}
	return out, nil
}

func (s *memStore) UpdateTracking(ctx context.Context, number string, update entity.TrackingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	update.Apply(s.docs[number])
	return nil
}

func (s *memStore) set(doc *entity.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Number] = doc.Clone()
}

type memReminders struct {
	entries map[string]*entity.ReminderEntry
}

func newMemReminders() *memReminders {
	return &memReminders{entries: map[string]*entity.ReminderEntry{}}
}

func reminderKey(number string, c entity.BlockingCondition) string {
	return number + "/" + string(c)
}

func (r *memReminders) ListByDocument(ctx context.Context, number string) ([]*entity.ReminderEntry, error) {
	var out []*entity.ReminderEntry
	for _, e := range r.entries {
		if e.DocNumber == number {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memReminders) Upsert(ctx context.Context, entry *entity.ReminderEntry) error {
	c := *entry
	r.entries[reminderKey(entry.DocNumber, entry.Condition)] = &c
	return nil
}

func (r *memReminders) Delete(ctx context.Context, number string, condition entity.BlockingCondition) error {
	delete(r.entries, reminderKey(number, condition))
	return nil
}

func (r *memReminders) DeleteByDocument(ctx context.Context, number string) error {
	for k, e := range r.entries {
		if e.DocNumber == number {
			delete(r.entries, k)
		}
	}
	return nil
}

func (r *memReminders) get(number string, c entity.BlockingCondition) *entity.ReminderEntry {
	return r.entries[reminderKey(number, c)]
}

type sentMessage struct {
	template   string
	fields     map[string]string
	recipients []string
}

type mockNotifier struct {
	sent []sentMessage
	err  error
}

func (n *mockNotifier) Send(ctx context.Context, templateKey string, fields map[string]string, recipients []string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{template: templateKey, fields: fields, recipients: recipients})
	return nil
}

// mockEngine applies requests straight to the store
type mockEngine struct {
	store    *memStore
	requests []workflow.TransitionRequest
	err      error
}

func (m *mockEngine) RequestTransition(ctx context.Context, req workflow.TransitionRequest) (*workflow.TransitionResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	doc, _, err := m.store.FindByNumber(ctx, req.DocNumber)
	if err != nil {
		return nil, err
	}
	old := doc.Status
	doc.Status = req.NewStatus
	m.store.set(doc)
	return &workflow.TransitionResult{Success: true, DocNumber: doc.Number, OldStatus: old, Status: req.NewStatus}, nil
}

func (m *mockEngine) AllowedTransitions(ctx context.Context, number string) (domainwf.Status, []domainwf.Status, error) {
	return "", nil, nil
}

func orderedPR(number string, landing time.Time) *entity.Document {
	return &entity.Document{
		Number:              number,
		Kind:                domainwf.KindPR,
		Status:              domainwf.StatusOrdered,
		Requester:           "ana@example.com",
		Vendor:              "Acme",
		ExpectedLandingDate: landing,
		Shipped:             entity.FlagNo,
		GoodsLanded:         entity.FlagNo,
	}
}

// AutoCancelService

func TestAutoCancelService_CancelsAfterThreshold(t *testing.T) {
	landing := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store := newMemStore(orderedPR("PR-1", landing))
	engine := &mockEngine{store: store}
	svc := NewAutoCancelService(store, newMemReminders(), &mockNotifier{}, engine, AutoCancelConfig{}, mockLogger{})
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC) })

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"PR-1"}, result.Canceled)
	require.Len(t, engine.requests, 1)
	req := engine.requests[0]
	assert.Equal(t, domainwf.StatusCanceled, req.NewStatus)
	assert.True(t, req.SkipValidation)
	assert.Equal(t, DefaultSystemActor, req.Actor)
	assert.Equal(t, domainwf.StatusOrdered, req.ExpectedStatus)
	assert.Equal(t, "Auto-canceled: 41 business days overdue from expected landing date 2026-01-05", req.Notes)
}

func TestAutoCancelService_WarnsOnce(t *testing.T) {
	// 2026-01-05 + 31 business days
	landing := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC)

	store := newMemStore(orderedPR("PR-1", landing))
	reminders := newMemReminders()
	notifier := &mockNotifier{}
	engine := &mockEngine{store: store}
	svc := NewAutoCancelService(store, reminders, notifier, engine, AutoCancelConfig{
		ProcurementRecipients: []string{"procurement@example.com"},
	}, mockLogger{})
	svc.SetClock(func() time.Time { return now })

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PR-1"}, result.Warned)
	assert.Empty(t, result.Canceled)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, port.TemplateCancellationWarning, notifier.sent[0].template)
	assert.Equal(t, "31", notifier.sent[0].fields["overdue_days"])
	assert.Equal(t, []string{"ana@example.com", "procurement@example.com"}, notifier.sent[0].recipients)
	assert.NotNil(t, reminders.get("PR-1", entity.ConditionCancellationWarning))

	result, err = svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Warned)
	assert.Len(t, notifier.sent, 1)
	assert.Empty(t, engine.requests)
}

func TestAutoCancelService_IgnoresRecentAndUndated(t *testing.T) {
	now := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	store := newMemStore(
		orderedPR("PR-1", now.AddDate(0, 0, -7)),
		orderedPR("PR-2", time.Time{}),
	)
	engine := &mockEngine{store: store}
	svc := NewAutoCancelService(store, newMemReminders(), &mockNotifier{}, engine, AutoCancelConfig{}, mockLogger{})
	svc.SetClock(func() time.Time { return now })

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Empty(t, result.Canceled)
	assert.Empty(t, result.Warned)
}

func TestAutoCancelService_FailuresCounted(t *testing.T) {
	landing := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	store := newMemStore(orderedPR("PR-1", landing))
	engine := &mockEngine{store: store, err: errors.New("lock wait timed out")}
	svc := NewAutoCancelService(store, newMemReminders(), &mockNotifier{}, engine, AutoCancelConfig{}, mockLogger{})
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC) })

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, result.Canceled)
}

func TestAutoCancelService_ListFailureAborts(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db closed")
	svc := NewAutoCancelService(store, newMemReminders(), &mockNotifier{}, &mockEngine{store: store}, AutoCancelConfig{}, mockLogger{})

	_, err := svc.Sweep(context.Background())
	assert.Error(t, err)
}

// ReminderService

func TestReminderService_IntervalSequence(t *testing.T) {
	orderedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	doc := orderedPR("PR-1", orderedAt.AddDate(0, 1, 0))
	doc.OrderedDate = orderedAt
	store := newMemStore(doc)
	reminders := newMemReminders()
	notifier := &mockNotifier{}
	svc := NewReminderService(store, reminders, notifier, ReminderConfig{
		ProcurementRecipients: []string{"procurement@example.com"},
	}, mockLogger{})

	now := orderedAt
	svc.SetClock(func() time.Time { return now })
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PR-1"}, result.Scheduled)
	assert.Empty(t, result.Sent)

	entry := reminders.get("PR-1", entity.ConditionShipping)
	require.NotNil(t, entry)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), entry.NextDue)

	intervals := []float64{entry.IntervalDays}
	for i := 0; i < 4; i++ {
		now = entry.NextDue
		_, err := svc.Sweep(context.Background())
		require.NoError(t, err)
		entry = reminders.get("PR-1", entity.ConditionShipping)
		intervals = append(intervals, entry.IntervalDays)
	}

	assert.Equal(t, []float64{5, 2.5, 1.25, 1, 1}, intervals)
	assert.Equal(t, 4, entry.SentCount)
	require.Len(t, notifier.sent, 4)
	assert.Equal(t, port.TemplateDeliveryReminder, notifier.sent[0].template)
	assert.Equal(t, "shipping", notifier.sent[0].fields["condition"])
}

func TestReminderService_ConditionChangeRestarts(t *testing.T) {
	orderedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	doc := orderedPR("PR-1", orderedAt.AddDate(0, 1, 0))
	doc.OrderedDate = orderedAt
	doc.CustomsRequired = entity.FlagYes
	doc.CustomsCleared = entity.FlagNo
	store := newMemStore(doc)
	reminders := newMemReminders()
	reminders.entries[reminderKey("PR-1", entity.ConditionShipping)] = &entity.ReminderEntry{
		DocNumber: "PR-1", Condition: entity.ConditionShipping, IntervalDays: 1.25, SentCount: 2,
		NextDue: orderedAt.AddDate(0, 0, 10),
	}

	doc.Shipped = entity.FlagYes
	store.set(doc)

	now := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)
	svc := NewReminderService(store, reminders, &mockNotifier{}, ReminderConfig{}, mockLogger{})
	svc.SetClock(func() time.Time { return now })

	_, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Nil(t, reminders.get("PR-1", entity.ConditionShipping))
	customs := reminders.get("PR-1", entity.ConditionCustoms)
	require.NotNil(t, customs)
	assert.Equal(t, 5.0, customs.IntervalDays)
	assert.Equal(t, 0, customs.SentCount)
	assert.Equal(t, time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC), customs.NextDue)
}

func TestReminderService_AllDoneClearsEntries(t *testing.T) {
	doc := orderedPR("PR-1", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	doc.Shipped = entity.FlagYes
	doc.GoodsLanded = entity.FlagYes
	store := newMemStore(doc)
	reminders := newMemReminders()
	reminders.entries[reminderKey("PR-1", entity.ConditionDelivery)] = &entity.ReminderEntry{
		DocNumber: "PR-1", Condition: entity.ConditionDelivery, IntervalDays: 2.5,
	}
	reminders.entries[reminderKey("PR-1", entity.ConditionCancellationWarning)] = &entity.ReminderEntry{
		DocNumber: "PR-1", Condition: entity.ConditionCancellationWarning,
	}

	svc := NewReminderService(store, reminders, &mockNotifier{}, ReminderConfig{}, mockLogger{})
	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"PR-1"}, result.Cleared)
	assert.Nil(t, reminders.get("PR-1", entity.ConditionDelivery))
	assert.NotNil(t, reminders.get("PR-1", entity.ConditionCancellationWarning))
}

func TestReminderService_SendFailureKeepsSchedule(t *testing.T) {
	orderedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	doc := orderedPR("PR-1", orderedAt.AddDate(0, 1, 0))
	doc.OrderedDate = orderedAt
	store := newMemStore(doc)
	reminders := newMemReminders()
	notifier := &mockNotifier{err: errors.New("lark unavailable")}
	svc := NewReminderService(store, reminders, notifier, ReminderConfig{}, mockLogger{})
	svc.SetClock(func() time.Time { return time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC) })

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	entry := reminders.get("PR-1", entity.ConditionShipping)
	require.NotNil(t, entry)
	assert.Equal(t, 5.0, entry.IntervalDays)
	assert.Equal(t, 0, entry.SentCount)
}

// DocumentService

type memAudit struct {
	records []*entity.StatusChangeRecord
}

func (a *memAudit) Append(ctx context.Context, r *entity.StatusChangeRecord) error {
	a.records = append(a.records, r)
	return nil
}

func (a *memAudit) ListByDocument(ctx context.Context, number string) ([]*entity.StatusChangeRecord, error) {
	var out []*entity.StatusChangeRecord
	for _, r := range a.records {
		if r.DocNumber == number {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestDocumentService(t *testing.T) {
	store := newMemStore(orderedPR("PR-1", time.Time{}))
	audit := &memAudit{records: []*entity.StatusChangeRecord{
		{ID: "a", DocNumber: "PR-1", OldStatus: domainwf.StatusSubmitted, NewStatus: domainwf.StatusInQueue},
		{ID: "b", DocNumber: "PR-2"},
	}}
	svc := NewDocumentService(store, audit)

	doc, err := svc.Get(context.Background(), "PR-1")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusOrdered, doc.Status)

	history, err := svc.History(context.Background(), "PR-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].ID)

	_, err = svc.Get(context.Background(), "PR-9")
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))
	_, err = svc.History(context.Background(), "PR-9")
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))
}
