package service_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAppliesDefaults(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")

	p, err := f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: customer})
	require.NoError(t, err)
	assert.Equal(t, "BOQ/00001", p.Name)
	assert.Equal(t, domain.TypeClient, p.Type)
	assert.Equal(t, domain.StatusDraft, p.Status)
	assert.Equal(t, "IDR", p.Currency)
	assert.Equal(t, "RET 5%", p.RetentionRule)

	sub, err := f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: customer, Type: domain.TypeSubcontract})
	require.NoError(t, err)
	assert.Equal(t, "SBOQ/00001", sub.Name)
}

func TestCreateRejectsUnknownCustomer(t *testing.T) {
	f := fixture.New(t)

	_, err := f.Boq.Create(f.Ctx, domain.CreateRequest{})
	assert.ErrorIs(t, err, domain.ErrCustomerRequired)

	_, err = f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: snowflake.ID(999)})
	assert.ErrorIs(t, err, domain.ErrCustomerRequired)
	assert.True(t, apperror.IsValidation(err))
}

func TestSubActivityDefaultsAndRollup(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)

	p, err := f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: customer, MarginPercent: 20})
	require.NoError(t, err)

	activity, err := f.Boq.AddActivity(f.Ctx, p.ID, domain.ActivityInput{Name: "Structure"})
	require.NoError(t, err)
	assert.Equal(t, 10, activity.Sequence)
	assert.Equal(t, 20.0, activity.MarginPercent)

	sub, err := f.Boq.AddSubActivity(f.Ctx, activity.ID, domain.SubActivityInput{
		ProductID:   concrete.ID,
		Description: "K-300",
		MasterQty:   10,
		CurrentQty:  4,
		AdditionalCosts: []domain.AdditionalCostInput{
			{Name: "Transport", Cost: 10},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Concrete - K-300", sub.Name)
	assert.Equal(t, domain.ActivityTypeMaterial, sub.ActivityType)
	assert.Equal(t, 100.0, sub.ProductCost)
	assert.Equal(t, 20.0, sub.MarginPercent)
	assert.InDelta(t, 132.0, sub.UnitPrice, 1e-9)

	stored, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Activities, 1)
	require.Len(t, stored.Activities[0].SubActivities, 1)
	require.Len(t, stored.Activities[0].SubActivities[0].AdditionalCosts, 1)
	assert.InDelta(t, 1320.0, stored.Total, 1e-9)
	assert.InDelta(t, 528.0, stored.TotalCurrent, 1e-9)
	assert.InDelta(t, 40.0, stored.OnsiteProgressPercent, 1e-9)
	assert.InDelta(t, 66.0, stored.RetentionAmountTotal, 1e-9)
}

func TestOverBilledUpdateIsRejected(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 10,
		Cost:      100,
	})
	sub := p.Activities[0].SubActivities[0]

	qty := 10.01
	_, err := f.Boq.UpdateSubActivity(f.Ctx, sub.ID, domain.SubActivityUpdate{CurrentQty: &qty})
	assert.ErrorIs(t, err, domain.ErrOverBilled)

	negative := -1.0
	_, err = f.Boq.UpdateSubActivity(f.Ctx, sub.ID, domain.SubActivityUpdate{CurrentQty: &negative})
	assert.ErrorIs(t, err, domain.ErrNegativeQuantity)

	stored, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, stored.Activities[0].SubActivities[0].CurrentQty)
}

func TestSubmitRequiresPricedActivities(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")

	p, err := f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: customer})
	require.NoError(t, err)

	_, err = f.Boq.Submit(f.Ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNoActivities)
	assert.True(t, apperror.IsUser(err))

	_, err = f.Boq.AddActivity(f.Ctx, p.ID, domain.ActivityInput{Name: "Empty"})
	require.NoError(t, err)
	_, err = f.Boq.Submit(f.Ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNoOrderLines)
}

func TestQuotationFlow(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	rebar := f.Product(t, "REB", "Rebar", 50)

	p := f.DraftBoq(t, customer,
		fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100, Margin: 10},
		fixture.Line{Activity: "Structure", Product: rebar, MasterQty: 4, Cost: 50},
		fixture.Line{Activity: "Finishing", Product: rebar, MasterQty: 0, Cost: 50},
	)

	submitted, err := f.Boq.Submit(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SaleOrderID)

	order, err := f.Integration.GetOrder(f.Ctx, fixture.OrgID, *submitted.SaleOrderID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, order.Origin)
	assert.Equal(t, integrationdomain.OrderStatusDraft, order.Status)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "Structure", order.Lines[0].Name)
	assert.InDelta(t, 1300.0, order.Lines[0].UnitPrice, 1e-9)

	_, err = f.Boq.Submit(f.Ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	live, err := f.Boq.HandleOrderConfirmed(f.Ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, live.Status)
	assert.NotNil(t, live.AnalyticAccountID)
	assert.NotNil(t, live.ExternalProjectID)

	var published int64
	require.NoError(t, f.DB.Model(&events.Event{}).Where("topic = ?", events.TopicBoqApproved).Count(&published).Error)
	assert.EqualValues(t, 1, published)

	var transitions int64
	require.NoError(t, f.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", "boq.in_progress").Count(&transitions).Error)
	assert.EqualValues(t, 1, transitions)
}

func TestApproveWithoutQuotation(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 1,
		Cost:      100,
	})

	approved, err := f.Boq.Approve(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.NotNil(t, approved.AnalyticAccountID)

	_, err = f.Boq.Approve(f.Ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLiveStructureIsLocked(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	p := f.LiveBoq(t, customer, fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100})
	activity := p.Activities[0]
	sub := activity.SubActivities[0]

	master := 20.0
	_, err := f.Boq.UpdateSubActivity(f.Ctx, sub.ID, domain.SubActivityUpdate{MasterQty: &master})
	assert.ErrorIs(t, err, domain.ErrStructureLocked)

	_, err = f.Boq.AddSubActivity(f.Ctx, activity.ID, domain.SubActivityInput{ProductID: concrete.ID, MasterQty: 1})
	assert.ErrorIs(t, err, domain.ErrStructureLocked)

	assert.ErrorIs(t, f.Boq.RemoveActivity(f.Ctx, activity.ID), domain.ErrStructureLocked)

	current := 3.0
	updated, err := f.Boq.UpdateSubActivity(f.Ctx, sub.ID, domain.SubActivityUpdate{CurrentQty: &current})
	require.NoError(t, err)
	assert.Equal(t, 3.0, updated.CurrentQty)

	_, err = f.Boq.MarkDone(f.Ctx, p.ID)
	require.NoError(t, err)
	_, err = f.Boq.UpdateSubActivity(f.Ctx, sub.ID, domain.SubActivityUpdate{CurrentQty: &current})
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestRemoveCascadesInDraft(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	concrete := f.Product(t, "CON", "Concrete", 100)
	p := f.DraftBoq(t, customer,
		fixture.Line{Activity: "Structure", Product: concrete, MasterQty: 10, Cost: 100},
		fixture.Line{Activity: "Finishing", Product: concrete, MasterQty: 2, Cost: 100},
	)

	sub, err := f.Boq.AddAdditionalCost(f.Ctx, p.Activities[0].SubActivities[0].ID, domain.AdditionalCostInput{Name: "Crane", Cost: 5})
	require.NoError(t, err)
	require.Len(t, sub.AdditionalCosts, 1)
	assert.InDelta(t, 105.0, sub.UnitPrice, 1e-9)

	sub, err = f.Boq.RemoveAdditionalCost(f.Ctx, sub.AdditionalCosts[0].ID)
	require.NoError(t, err)
	assert.Empty(t, sub.AdditionalCosts)
	assert.InDelta(t, 100.0, sub.UnitPrice, 1e-9)

	require.NoError(t, f.Boq.RemoveActivity(f.Ctx, p.Activities[1].ID))
	stored, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, stored.Activities, 1)
	assert.InDelta(t, 1000.0, stored.Total, 1e-9)

	var orphans int64
	require.NoError(t, f.DB.Model(&domain.SubActivity{}).Where("boq_id = ?", p.ID).Count(&orphans).Error)
	assert.EqualValues(t, 1, orphans)
}

func TestListPaginates(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	for i := 0; i < 3; i++ {
		_, err := f.Boq.Create(f.Ctx, domain.CreateRequest{CustomerID: customer})
		require.NoError(t, err)
	}

	req := domain.ListRequest{}
	req.PageSize = 2
	first, err := f.Boq.List(f.Ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Projects, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "BOQ/00003", first.Projects[0].Name)

	req.PageToken = first.NextPageToken
	second, err := f.Boq.List(f.Ctx, req)
	require.NoError(t, err)
	require.Len(t, second.Projects, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "BOQ/00001", second.Projects[0].Name)

	req.PageToken = "not-base64"
	_, err = f.Boq.List(f.Ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestCostTypesAreUniquePerCompany(t *testing.T) {
	f := fixture.New(t)

	ct, err := f.Boq.CreateCostType(f.Ctx, domain.CreateCostTypeRequest{Name: "Transport", Code: "trn"})
	require.NoError(t, err)
	assert.Equal(t, "TRN", ct.Code)

	_, err = f.Boq.CreateCostType(f.Ctx, domain.CreateCostTypeRequest{Name: "Transport", Code: "TRX"})
	assert.ErrorIs(t, err, domain.ErrCostTypeExists)

	types, err := f.Boq.ListCostTypes(f.Ctx)
	require.NoError(t, err)
	require.Len(t, types, 1)
}

func TestWritesLoadAggregateUnderRowLock(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 1,
		Cost:      100,
	})

	f.BoqLoads.Reset()
	_, err := f.Boq.AddActivity(f.Ctx, p.ID, domain.ActivityInput{Name: "Finishing"})
	require.NoError(t, err)
	f.RequireLockedLoads(t)

	f.BoqLoads.Reset()
	_, err = f.Boq.Submit(f.Ctx, p.ID)
	require.NoError(t, err)
	f.RequireLockedLoads(t)
}

func TestRejectedOrderConfirmationLeavesQuotationDraft(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 2,
		Cost:      100,
	})
	submitted, err := f.Boq.Submit(f.Ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.DB.Model(&domain.Project{}).Where("id = ?", p.ID).Update("margin_percent", -1).Error)

	_, err = f.Boq.HandleOrderConfirmed(f.Ctx, *submitted.SaleOrderID)
	assert.ErrorIs(t, err, domain.ErrNegativeMargin)

	order, err := f.Integration.GetOrder(f.Ctx, fixture.OrgID, *submitted.SaleOrderID)
	require.NoError(t, err)
	assert.Equal(t, integrationdomain.OrderStatusDraft, order.Status)

	stored, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, stored.Status)
}

func TestOrderWithoutBoqIsStillConfirmed(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")

	order, err := f.Integration.CreateOrder(f.Ctx, integrationdomain.CreateOrderRequest{
		OrgID:     fixture.OrgID,
		PartnerID: customer,
		Lines:     []integrationdomain.LineRequest{{Name: "Survey", Quantity: 1, UnitPrice: 250}},
	})
	require.NoError(t, err)

	project, err := f.Boq.HandleOrderConfirmed(f.Ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, project)

	confirmed, err := f.Integration.GetOrder(f.Ctx, fixture.OrgID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, integrationdomain.OrderStatusConfirmed, confirmed.Status)
}

func TestFailedApprovalRollsBackProvisioning(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 1,
		Cost:      100,
	})

	// the approval event can no longer be written
	require.NoError(t, f.DB.Migrator().DropTable(&events.Event{}))

	_, err := f.Boq.Approve(f.Ctx, p.ID)
	require.Error(t, err)

	var accounts, projects int64
	require.NoError(t, f.DB.Model(&integrationdomain.AnalyticAccount{}).Count(&accounts).Error)
	require.NoError(t, f.DB.Model(&integrationdomain.ExternalProject{}).Count(&projects).Error)
	assert.Zero(t, accounts)
	assert.Zero(t, projects)

	stored, err := f.Boq.Get(f.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, stored.Status)
	assert.Nil(t, stored.AnalyticAccountID)
}
