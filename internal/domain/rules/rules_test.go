package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/domain/entity"
	"github.com/garyjia/procurement-tracker/internal/domain/workflow"
)

var today = time.Date(2026, 10, 14, 10, 30, 0, 0, time.UTC) // Wednesday

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func queuedPR(v int64) *entity.Document {
	return &entity.Document{
		Number:      "PR-2026-0001",
		Kind:        workflow.KindPR,
		Status:      workflow.StatusInQueue,
		Amount:      amount(v),
		Currency:    "USD",
		Vendor:      "Acme Industrial",
		Requester:   "req@corp.example",
		Description: "bearing kit",
		SubmittedAt: today.AddDate(0, 0, -10),
	}
}

func TestRequiredFieldValidator_Validate(t *testing.T) {
	v := NewRequiredFieldValidator(DefaultPolicy())

	t.Run("lists every missing field in catalogue order", func(t *testing.T) {
		doc := &entity.Document{Kind: workflow.KindPR, Status: workflow.StatusSubmitted, Description: "  "}

		missing := v.Validate(doc, workflow.StatusInQueue, false)

		assert.Equal(t, []string{FieldRequester, FieldDescription, FieldAmount, FieldVendor}, missing)
	})

	t.Run("blank after trim counts as missing", func(t *testing.T) {
		doc := queuedPR(100)
		doc.ApproverRef = " \t"
		doc.Deadline = today

		assert.Equal(t, []string{FieldApprover}, v.Validate(doc, workflow.StatusPRReady, true))
	})

	t.Run("60000 requires quotes and adjudication", func(t *testing.T) {
		doc := queuedPR(60000)
		doc.ApproverRef = "boss@corp.example"
		doc.Deadline = today.AddDate(0, 1, 0)

		missing := v.Validate(doc, workflow.StatusPRReady, true)

		assert.Equal(t, []string{FieldQuotesLink, FieldQuotesDate, FieldAdjudicationNotes, FieldAdjudicationDate}, missing)
	})

	t.Run("quotes only for unapproved vendor above 5000", func(t *testing.T) {
		doc := queuedPR(6000)
		doc.ApproverRef = "boss@corp.example"
		doc.Deadline = today

		assert.Equal(t, []string{FieldQuotesLink, FieldQuotesDate}, v.Validate(doc, workflow.StatusPRReady, false))
		assert.Empty(t, v.Validate(doc, workflow.StatusPRReady, true))
	})

	t.Run("conditional sets only on gate statuses", func(t *testing.T) {
		doc := queuedPR(90000)
		doc.LandedDate = today

		assert.Empty(t, v.Validate(doc, workflow.StatusCompleted, false))
	})

	t.Run("ordered requires proof of purchase and dates", func(t *testing.T) {
		doc := queuedPR(100)
		doc.Kind = workflow.KindPO

		assert.Equal(t,
			[]string{FieldProofOfPurchaseLink, FieldPaymentDate, FieldExpectedLandingDate},
			v.Validate(doc, workflow.StatusPOOrdered, true))
	})

	t.Run("direct order from the queue still gated on quotes", func(t *testing.T) {
		doc := queuedPR(60000)

		missing := v.Validate(doc, workflow.StatusOrdered, true)

		assert.Subset(t, missing, []string{FieldQuotesLink, FieldQuotesDate, FieldAdjudicationNotes, FieldAdjudicationDate})
		assert.Subset(t, missing, []string{FieldProofOfPurchaseLink, FieldPaymentDate, FieldExpectedLandingDate})
	})

	t.Run("status without requirements", func(t *testing.T) {
		assert.Empty(t, v.Validate(&entity.Document{}, workflow.StatusRejected, false))
	})
}

func TestBusinessRuleValidator_Validate(t *testing.T) {
	v := NewBusinessRuleValidator(DefaultPolicy())

	t.Run("quotes link above 5000 for unapproved vendor", func(t *testing.T) {
		err := v.Validate(queuedPR(5001), workflow.StatusPRReady, false, today)

		var violation *RuleViolation
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, RuleQuotesRequired, violation.Rule)
	})

	t.Run("exactly 5000 passes", func(t *testing.T) {
		assert.NoError(t, v.Validate(queuedPR(5000), workflow.StatusPRReady, false, today))
	})

	t.Run("approved vendor below 50000 passes", func(t *testing.T) {
		assert.NoError(t, v.Validate(queuedPR(20000), workflow.StatusPRReady, true, today))
	})

	t.Run("above 50000 needs quotes then adjudication", func(t *testing.T) {
		doc := queuedPR(50001)

		var violation *RuleViolation
		require.ErrorAs(t, v.Validate(doc, workflow.StatusPRReady, true, today), &violation)
		assert.Equal(t, RuleQuotesRequired, violation.Rule)

		doc.QuotesLink = "https://files.example/q.pdf"
		require.ErrorAs(t, v.Validate(doc, workflow.StatusPRReady, true, today), &violation)
		assert.Equal(t, RuleAdjudicationRequired, violation.Rule)

		doc.AdjudicationNotes = "board approved"
		assert.NoError(t, v.Validate(doc, workflow.StatusPRReady, true, today))
	})

	t.Run("landing date seven months ahead is rejected", func(t *testing.T) {
		doc := queuedPR(100)
		doc.Status = workflow.StatusOrdered
		doc.ExpectedLandingDate = today.AddDate(0, 7, 0)

		for _, target := range []workflow.Status{workflow.StatusOrdered, workflow.StatusPOOrdered} {
			var violation *RuleViolation
			require.ErrorAs(t, v.Validate(doc, target, true, today), &violation)
			assert.Equal(t, RuleLandingDateTooFar, violation.Rule)
		}
	})

	t.Run("landing date exactly six months ahead passes", func(t *testing.T) {
		doc := queuedPR(100)
		doc.ExpectedLandingDate = today.AddDate(0, 6, 0)

		assert.NoError(t, v.Validate(doc, workflow.StatusPOOrdered, true, today))
	})

	t.Run("landing date missing", func(t *testing.T) {
		var violation *RuleViolation
		require.ErrorAs(t, v.Validate(queuedPR(100), workflow.StatusPOOrdered, true, today), &violation)
		assert.Equal(t, RuleLandingDateMissing, violation.Rule)
	})

	t.Run("other targets have no rules", func(t *testing.T) {
		assert.NoError(t, v.Validate(queuedPR(900000), workflow.StatusRejected, false, today))
	})
}

func TestCompletionCalculator(t *testing.T) {
	calc := NewCompletionCalculator(NewRequiredFieldValidator(DefaultPolicy()))

	t.Run("submitted document counts queue fields", func(t *testing.T) {
		doc := &entity.Document{Kind: workflow.KindPR, Status: workflow.StatusSubmitted, Requester: "r@corp.example"}

		assert.Equal(t, 25, calc.Compute(doc, true))
	})

	t.Run("queued document counts next gate", func(t *testing.T) {
		doc := queuedPR(100)

		// 4 of 6: requester, description, amount, vendor filled; approver, deadline blank
		assert.Equal(t, 67, calc.Compute(doc, true))
	})

	t.Run("conditional fields raise the denominator", func(t *testing.T) {
		doc := queuedPR(60000)

		assert.Equal(t, []string{
			FieldRequester, FieldDescription, FieldAmount, FieldVendor, FieldApprover, FieldDeadline,
			FieldQuotesLink, FieldQuotesDate, FieldAdjudicationNotes, FieldAdjudicationDate,
		}, calc.RequiredFields(doc, true))
		assert.Equal(t, 40, calc.Compute(doc, true))
	})

	t.Run("always within bounds", func(t *testing.T) {
		statuses := []workflow.Status{
			workflow.StatusSubmitted, workflow.StatusInQueue, workflow.StatusPRReady,
			workflow.StatusOrdered, workflow.StatusCompleted, workflow.StatusCanceled,
		}
		for _, s := range statuses {
			for _, doc := range []*entity.Document{{Kind: workflow.KindPR}, queuedPR(70000)} {
				doc.Status = s
				pct := calc.Compute(doc, false)
				assert.GreaterOrEqual(t, pct, 0)
				assert.LessOrEqual(t, pct, 100)
			}
		}
	})

	t.Run("fully populated completed PO", func(t *testing.T) {
		doc := queuedPR(100)
		doc.Kind = workflow.KindPO
		doc.Status = workflow.StatusCompleted
		doc.ApproverRef = "boss@corp.example"
		doc.POApprovedDate = today
		doc.ProofOfPurchaseLink = "https://files.example/pop.pdf"
		doc.PaymentDate = today
		doc.ExpectedLandingDate = today
		doc.LandedDate = today

		assert.Equal(t, 100, calc.Compute(doc, true))
	})
}

func TestQueueOrder(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &entity.Document{Number: "A", SubmittedAt: base.Add(3 * time.Hour)}
	b := &entity.Document{Number: "B", SubmittedAt: base.Add(1 * time.Hour)}
	c := &entity.Document{Number: "C", SubmittedAt: base.Add(5 * time.Hour), Urgent: entity.FlagYes}
	d := &entity.Document{Number: "D", SubmittedAt: base.Add(1 * time.Hour)}

	ordered := QueueOrder([]*entity.Document{a, b, c, d})

	numbers := make([]string, len(ordered))
	for i, doc := range ordered {
		numbers[i] = doc.Number
	}
	assert.Equal(t, []string{"C", "B", "D", "A"}, numbers)
}

func TestBusinessDaysBetween(t *testing.T) {
	monday := time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{"same day", monday.Add(2 * time.Hour), 0},
		{"before", monday.AddDate(0, 0, -3), 0},
		{"friday", monday.AddDate(0, 0, 4), 4},
		{"over a weekend", monday.AddDate(0, 0, 7), 5},
		{"eight weeks", monday.AddDate(0, 0, 56), 40},
		{"forty one", time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BusinessDaysBetween(monday, tt.to))
		})
	}
}

func TestAddBusinessDays(t *testing.T) {
	thursday := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC), AddBusinessDays(thursday, 5))
	assert.Equal(t, time.Date(2026, 1, 9, 9, 0, 0, 0, time.UTC), AddBusinessDays(thursday, 1))
	assert.Equal(t, time.Date(2026, 1, 12, 21, 0, 0, 0, time.UTC), AddBusinessDays(thursday, 2.5))
	assert.Equal(t, time.Date(2026, 1, 9, 15, 0, 0, 0, time.UTC), AddBusinessDays(thursday, 1.25))
	assert.Equal(t, thursday, AddBusinessDays(thursday, 0))
}

func TestReminderPolicy_Next(t *testing.T) {
	p := DefaultReminderPolicy()

	interval := p.InitialDays
	var seq []float64
	for i := 0; i < 5; i++ {
		seq = append(seq, interval)
		interval = p.Next(interval)
	}

	assert.Equal(t, []float64{5, 2.5, 1.25, 1, 1}, seq)
}

func TestBlockingCondition(t *testing.T) {
	doc := &entity.Document{CustomsRequired: entity.FlagYes}
	assert.Equal(t, entity.ConditionShipping, BlockingCondition(doc))

	doc.Shipped = entity.FlagYes
	assert.Equal(t, entity.ConditionCustoms, BlockingCondition(doc))

	doc.CustomsCleared = entity.FlagYes
	assert.Equal(t, entity.ConditionDelivery, BlockingCondition(doc))

	doc.GoodsLanded = entity.FlagYes
	assert.Equal(t, entity.BlockingCondition(""), BlockingCondition(doc))

	noCustoms := &entity.Document{Shipped: entity.FlagYes}
	assert.Equal(t, entity.ConditionDelivery, BlockingCondition(noCustoms))
}

func TestRecipients(t *testing.T) {
	got := Recipients(
		[]string{"proc@corp.example", " ", "Team@corp.example"},
		[]string{"req@corp.example", "PROC@corp.example"},
		[]string{""},
	)

	assert.Equal(t, []string{"proc@corp.example", "Team@corp.example", "req@corp.example"}, got)
}
