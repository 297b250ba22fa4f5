package service_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveBoq seeds two activities worth 6000 and 4000.
func liveBoq(t *testing.T, f *fixture.Fixture) *boqdomain.Project {
	t.Helper()
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	return f.LiveBoq(t, customer,
		fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 60, Cost: 100},
		fixture.Line{Activity: "Finishing", Product: concrete, MasterQty: 40, Cost: 100},
	)
}

func TestPreviewDerivesAmount(t *testing.T) {
	f := fixture.New(t)
	p := liveBoq(t, f)

	w, err := f.AdvancePayments.Preview(f.Ctx, domain.Request{BoqID: p.ID, Percentage: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.LineTypeOriginal, w.LineType)
	assert.Len(t, w.Lines, 2)
	assert.InDelta(t, 10000, w.LinesTotal, 1e-9)
	assert.InDelta(t, 1000, w.Amount, 1e-9)

	w, err = f.AdvancePayments.Preview(f.Ctx, domain.Request{
		BoqID:          p.ID,
		Method:         domain.MethodAmount,
		Amount:         1500,
		SubActivityIDs: []snowflake.ID{p.Activities[0].SubActivities[0].ID},
	})
	require.NoError(t, err)
	assert.InDelta(t, 6000, w.LinesTotal, 1e-9)
	assert.InDelta(t, 25, w.Percentage, 1e-9)

	_, err = f.AdvancePayments.Preview(f.Ctx, domain.Request{BoqID: p.ID, Percentage: 150})
	assert.ErrorIs(t, err, domain.ErrPercentageRange)
}

func TestConfirmInvoicesAndBooksAdvance(t *testing.T) {
	f := fixture.New(t)
	p := liveBoq(t, f)

	res, err := f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Percentage: 20})
	require.NoError(t, err)

	invoice := res.Invoice
	require.NotNil(t, invoice)
	assert.Equal(t, "Advance Payment - "+p.Name, invoice.Ref)
	assert.Equal(t, integrationdomain.MoveTypeOutInvoice, invoice.MoveType)
	assert.Equal(t, p.CustomerID, invoice.PartnerID)
	assert.InDelta(t, 2000, invoice.AmountTotal, 1e-9)

	stored, err := f.Integration.GetInvoice(f.Ctx, fixture.OrgID, invoice.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "Advance Payment (Original) - 20.0%", stored.Lines[0].Name)
	assert.Equal(t, 1.0, stored.Lines[0].Quantity)

	boq, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2000, boq.AdvanceOriginalAmount, 1e-9)
	assert.Equal(t, 20.0, boq.AdvanceOriginalPercent)
	assert.InDelta(t, 2000, boq.OutstandingAdvanceOriginal(), 1e-9)

	// A second advance accumulates the amount and replaces the percentage.
	_, err = f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Method: domain.MethodAmount, Amount: 500})
	require.NoError(t, err)
	boq, err = f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2500, boq.AdvanceOriginalAmount, 1e-9)
	assert.Equal(t, 5.0, boq.AdvanceOriginalPercent)

	var outbox int64
	require.NoError(t, f.DB.Model(&events.Event{}).Where("topic = ?", events.TopicAdvanceInvoiced).Count(&outbox).Error)
	assert.EqualValues(t, 2, outbox)

	var audits int64
	require.NoError(t, f.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", "boq.advance_payment.invoiced").Count(&audits).Error)
	assert.EqualValues(t, 2, audits)
}

func TestConfirmPreconditions(t *testing.T) {
	f := fixture.New(t)
	p := liveBoq(t, f)

	_, err := f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Method: domain.MethodAmount})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Percentage: 10, SubActivityIDs: []snowflake.ID{}})
	assert.ErrorIs(t, err, domain.ErrNoLineSelected)

	// No variation lines exist, so the variation total is zero and no
	// amount can be derived from a percentage.
	_, err = f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, LineType: domain.LineTypeVariation, Percentage: 10})
	assert.ErrorIs(t, err, domain.ErrNoLineSelected)

	_, err = f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Method: domain.MethodAmount, Amount: -5})
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)

	var invoices int64
	require.NoError(t, f.DB.Model(&integrationdomain.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices)

	boq, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, boq.AdvanceOriginalAmount)
}

func TestFailedConfirmLeavesNoInvoice(t *testing.T) {
	f := fixture.New(t)
	p := liveBoq(t, f)

	// the advance event can no longer be written
	require.NoError(t, f.DB.Migrator().DropTable(&events.Event{}))

	f.BoqLoads.Reset()
	_, err := f.AdvancePayments.Confirm(f.Ctx, domain.Request{BoqID: p.ID, Percentage: 20})
	require.Error(t, err)
	f.RequireLockedLoads(t)

	var invoices int64
	require.NoError(t, f.DB.Model(&integrationdomain.Invoice{}).Where("ref = ?", "Advance Payment - "+p.Name).Count(&invoices).Error)
	assert.Zero(t, invoices)

	boq, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, boq.AdvanceOriginalAmount)
}
