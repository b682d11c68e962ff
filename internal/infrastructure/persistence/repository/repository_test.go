package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "procurement.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, zap.NewNop()).Up()
	require.NoError(t, err)
	return db.DB
}

func sampleDocument(number string, status workflow.Status) *entity.Document {
	return &entity.Document{
		Number:              number,
		Kind:                workflow.KindPR,
		Status:              status,
		Amount:              decimal.NewNullDecimal(decimal.RequireFromString("5250.75")),
		Currency:            "USD",
		Vendor:              "Acme",
		Requester:           "ana@example.com",
		Description:         "Lab chairs",
		SubmittedAt:         time.Date(2026, 2, 2, 9, 30, 0, 0, time.UTC),
		ExpectedLandingDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Urgent:              entity.FlagYes,
		Notes:               "[2026-02-02 09:30] ana: created",
	}
}

func TestDocumentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())

	doc := sampleDocument("PR-1", workflow.StatusSubmitted)
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, doc))

	got, ref, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ref.Version)
	assert.Equal(t, doc, got)
	assert.True(t, got.Amount.Valid)
	assert.True(t, got.Amount.Decimal.Equal(decimal.RequireFromString("5250.75")))
}

func TestDocumentRepository_NullAmount(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())

	doc := sampleDocument("PR-1", workflow.StatusSubmitted)
	doc.Amount = decimal.NullDecimal{}
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, doc))

	got, _, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.False(t, got.Amount.Valid)
}

func TestDocumentRepository_NotFoundAndDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())

	_, _, err := repo.FindByNumber(ctx, "PR-404")
	assert.ErrorIs(t, err, port.ErrNotFound)

	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusSubmitted)))
	err = repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusSubmitted))
	assert.ErrorIs(t, err, port.ErrDuplicate)

	err = repo.UpdateTracking(ctx, "PR-404", entity.TrackingUpdate{DaysOpen: intPtr(1)})
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestDocumentRepository_ReplaceRowChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusSubmitted)))

	doc, ref, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)

	doc.Status = workflow.StatusInQueue
	doc.LastModifiedBy = "bob"
	require.NoError(t, repo.ReplaceRow(ctx, ref, doc))

	// second write with the old ref is stale
	doc.Status = workflow.StatusRejected
	assert.ErrorIs(t, repo.ReplaceRow(ctx, ref, doc), port.ErrStaleRow)

	got, newRef, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusInQueue, got.Status)
	assert.Equal(t, "bob", got.LastModifiedBy)
	assert.Equal(t, ref.Version+1, newRef.Version)

	assert.ErrorIs(t, repo.ReplaceRow(ctx, port.RowRef{ID: 99, Version: 1}, doc), port.ErrNotFound)
}

func TestDocumentRepository_UpdateTrackingIsColumnScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusOrdered)))

	_, before, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)

	no := entity.FlagNo
	ordered := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateTracking(ctx, "PR-1", entity.TrackingUpdate{
		Shipped:       &no,
		GoodsLanded:   &no,
		OrderedDate:   &ordered,
		CompletionPct: intPtr(80),
	}))

	got, after, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, entity.FlagNo, got.Shipped)
	assert.Equal(t, entity.FlagNo, got.GoodsLanded)
	assert.Equal(t, entity.FlagUnset, got.CustomsCleared)
	assert.Equal(t, ordered, got.OrderedDate)
	assert.Equal(t, 80, got.CompletionPct)
	assert.Equal(t, workflow.StatusOrdered, got.Status)
	assert.Equal(t, before.Version, after.Version)

	assert.NoError(t, repo.UpdateTracking(ctx, "PR-1", entity.TrackingUpdate{}))
}

func TestDocumentRepository_ReplaceRowKeepsTrackingWrittenAfterRead(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusPRReady)))

	doc, ref, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)

	linked := "PO-1"
	no := entity.FlagNo
	require.NoError(t, repo.UpdateTracking(ctx, "PR-1", entity.TrackingUpdate{
		LinkedNumber:  &linked,
		Shipped:       &no,
		CompletionPct: intPtr(70),
	}))

	doc.Status = workflow.StatusOrdered
	doc.QueuePosition = 0
	require.NoError(t, repo.ReplaceRow(ctx, ref, doc))

	got, _, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusOrdered, got.Status)
	assert.Equal(t, "PO-1", got.LinkedNumber)
	assert.Equal(t, entity.FlagNo, got.Shipped)
	assert.Equal(t, 70, got.CompletionPct)
}

func TestDocumentRepository_ReplaceRowClearsQueuePosition(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusInQueue)))
	require.NoError(t, repo.UpdateTracking(ctx, "PR-1", entity.TrackingUpdate{QueuePosition: intPtr(3)}))

	doc, ref, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	require.Equal(t, 3, doc.QueuePosition)

	doc.Status = workflow.StatusPRReady
	doc.QueuePosition = 0
	require.NoError(t, repo.ReplaceRow(ctx, ref, doc))

	got, _, err := repo.FindByNumber(ctx, "PR-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.QueuePosition)
}

func TestDocumentRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(setupDB(t), zap.NewNop())

	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-1", workflow.StatusInQueue)))
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-2", workflow.StatusSubmitted)))
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPR, sampleDocument("PR-3", workflow.StatusInQueue)))
	po := sampleDocument("PO-1", workflow.StatusInQueue)
	po.Kind = workflow.KindPO
	require.NoError(t, repo.AppendRow(ctx, workflow.KindPO, po))

	docs, err := repo.ListByStatus(ctx, workflow.KindPR, workflow.StatusInQueue)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "PR-1", docs[0].Number)
	assert.Equal(t, "PR-3", docs[1].Number)

	docs, err = repo.ListByStatus(ctx, workflow.KindPR, workflow.StatusInQueue, workflow.StatusSubmitted)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(setupDB(t), zap.NewNop())

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for i, to := range []workflow.Status{workflow.StatusInQueue, workflow.StatusPRReady} {
		require.NoError(t, repo.Append(ctx, &entity.StatusChangeRecord{
			ID:        []string{"a", "b"}[i],
			Timestamp: at.Add(time.Duration(i) * time.Hour),
			Actor:     "bob",
			Action:    entity.ActionStatusChange,
			DocNumber: "PR-1",
			Kind:      workflow.KindPR,
			OldStatus: workflow.StatusSubmitted,
			NewStatus: to,
		}))
	}
	require.NoError(t, repo.Append(ctx, &entity.StatusChangeRecord{ID: "c", DocNumber: "PR-2", Timestamp: at}))

	records, err := repo.ListByDocument(ctx, "PR-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, workflow.StatusPRReady, records[1].NewStatus)
	assert.Equal(t, at.Add(time.Hour), records[1].Timestamp)

	assert.Error(t, repo.Append(ctx, &entity.StatusChangeRecord{ID: "a", DocNumber: "PR-1", Timestamp: at}))
}

func TestReminderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewReminderRepository(setupDB(t), zap.NewNop())

	due := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	entry := &entity.ReminderEntry{
		DocNumber:    "PR-1",
		Condition:    entity.ConditionShipping,
		IntervalDays: 5,
		NextDue:      due,
		CreatedAt:    due.AddDate(0, 0, -7),
		UpdatedAt:    due.AddDate(0, 0, -7),
	}
	require.NoError(t, repo.Upsert(ctx, entry))

	entry.IntervalDays = 2.5
	entry.SentCount = 1
	require.NoError(t, repo.Upsert(ctx, entry))
	require.NoError(t, repo.Upsert(ctx, &entity.ReminderEntry{DocNumber: "PR-1", Condition: entity.ConditionCancellationWarning}))

	entries, err := repo.ListByDocument(ctx, "PR-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entity.ConditionCancellationWarning, entries[0].Condition)
	assert.Equal(t, 2.5, entries[1].IntervalDays)
	assert.Equal(t, 1, entries[1].SentCount)
	assert.Equal(t, due, entries[1].NextDue)

	require.NoError(t, repo.Delete(ctx, "PR-1", entity.ConditionShipping))
	entries, err = repo.ListByDocument(ctx, "PR-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, repo.DeleteByDocument(ctx, "PR-1"))
	entries, err = repo.ListByDocument(ctx, "PR-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVendorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewVendorRepository(setupDB(t), zap.NewNop())

	require.NoError(t, repo.SetApproved(ctx, "Acme", true))
	require.NoError(t, repo.SetApproved(ctx, "Globex", false))

	ok, err := repo.IsApproved(ctx, "acme ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsApproved(ctx, "Globex")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IsApproved(ctx, "Initech")
	require.NoError(t, err)
	assert.False(t, ok)
}

func intPtr(v int) *int { return &v }
