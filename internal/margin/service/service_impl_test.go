package service_test

import (
	"testing"

	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/margin/domain"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyRepricesDraftBoq(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	p := f.DraftBoq(t, customer,
		fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100},
		fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100, Margin: 30},
	)

	noOverride := false
	f.BoqLoads.Reset()
	res, err := f.Margins.Apply(f.Ctx, domain.Request{BoqID: p.ID, MarginPercent: 10, Override: &noOverride})
	require.NoError(t, err)
	f.RequireLockedLoads(t)
	assert.Equal(t, "Margin of 10.0% has been applied to All Activities and Sub-activities.", res.Message)
	assert.Equal(t, 1, res.SubActivitiesUpdated)

	boq, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, boq.MarginPercent)
	subs := boq.Activities[0].SubActivities
	require.Len(t, subs, 2)
	assert.Equal(t, 10.0, subs[0].MarginPercent)
	assert.InDelta(t, 110, subs[0].UnitPrice, 1e-9)
	assert.Equal(t, 30.0, subs[1].MarginPercent)
	assert.InDelta(t, 1100+1300, boq.Total, 1e-9)

	res, err = f.Margins.Apply(f.Ctx, domain.Request{BoqID: p.ID, MarginPercent: 20, Scope: domain.ScopeSubActivitiesOnly})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ActivitiesUpdated)
	assert.Equal(t, 2, res.SubActivitiesUpdated)
	assert.InDelta(t, 2400, res.Boq.Total, 1e-9)

	var outbox int64
	require.NoError(t, f.DB.Model(&events.Event{}).Where("topic = ?", events.TopicMarginApplied).Count(&outbox).Error)
	assert.EqualValues(t, 2, outbox)
}

func TestApplyRejections(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	line := fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100}

	draft := f.DraftBoq(t, customer, line)
	_, err := f.Margins.Apply(f.Ctx, domain.Request{BoqID: draft.ID, MarginPercent: 101})
	assert.ErrorIs(t, err, domain.ErrMarginRange)
	_, err = f.Margins.Apply(f.Ctx, domain.Request{BoqID: draft.ID, MarginPercent: 10, Scope: "everything"})
	assert.ErrorIs(t, err, domain.ErrInvalidScope)

	live := f.LiveBoq(t, customer, line)
	_, err = f.Margins.Apply(f.Ctx, domain.Request{BoqID: live.ID, MarginPercent: 10})
	assert.ErrorIs(t, err, boqdomain.ErrStructureLocked)

	boq, err := f.Boq.Get(f.Ctx, live.ID)
	require.NoError(t, err)
	assert.Zero(t, boq.MarginPercent)
}
