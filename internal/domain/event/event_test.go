package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

func TestType(t *testing.T) {
	assert.Equal(t, "document.status_changed", TypeStatusChanged.String())
	assert.True(t, TypeDocumentCreated.IsValid())
	assert.False(t, Type("instance.created").IsValid())
}

func TestNewStatusChanged(t *testing.T) {
	at := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	evt := NewStatusChanged("PR-1", workflow.KindPR, workflow.StatusSubmitted, workflow.StatusInQueue, "ana", at)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, evt.ID, evt.CorrelationID)
	assert.Equal(t, TypeStatusChanged, evt.Type)
	assert.Equal(t, at, evt.Timestamp)
	assert.True(t, evt.Entered(workflow.StatusInQueue))
	assert.False(t, evt.Left(workflow.StatusInQueue))
	assert.True(t, evt.Left(workflow.StatusSubmitted))

	other := NewStatusChanged("PR-1", workflow.KindPR, workflow.StatusSubmitted, workflow.StatusInQueue, "ana", at)
	assert.NotEqual(t, evt.ID, other.ID)
}

func TestEvent_WithPayload(t *testing.T) {
	evt := NewStatusChanged("PO-1", workflow.KindPO, workflow.StatusPOApproved, workflow.StatusPOOrdered, "sys", time.Now())

	enriched := evt.WithPayload("notes", "rush")

	assert.Equal(t, "rush", enriched.GetPayloadString("notes"))
	assert.Empty(t, evt.GetPayloadString("notes"))
	assert.Equal(t, evt.ID, enriched.ID)
	assert.Empty(t, enriched.GetPayloadString("missing"))
}
