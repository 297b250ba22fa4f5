package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/testutil/fixture"
	"github.com/smallbiznis/boqledger/internal/variation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

type scenario struct {
	f     *fixture.Fixture
	ctx   context.Context
	boq   *boqdomain.Project
	sub   *boqdomain.SubActivity
	rebar snowflake.ID
}

// setup seeds a live BOQ with one sub-activity of 10 units at cost 100
// (total 1000) and a second product for added lines.
func setup(t *testing.T) scenario {
	t.Helper()
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.LiveBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 10,
		Cost:      100,
	})
	rebar := f.Product(t, "REB", "Rebar", 50)
	return scenario{
		f:     f,
		ctx:   auditcontext.WithActor(f.Ctx, auditcontext.ActorTypeUser, "u-approver"),
		boq:   p,
		sub:   p.Activities[0].SubActivities[0],
		rebar: rebar.ID,
	}
}

func (s scenario) draft(t *testing.T, lines ...domain.LineInput) *domain.Variation {
	t.Helper()
	v, err := s.f.Variations.Create(s.ctx, domain.CreateRequest{
		BoqID:       s.boq.ID,
		Description: "Client requested a thicker slab",
		Approvers:   []string{"u-approver"},
	})
	require.NoError(t, err)
	for _, line := range lines {
		v, err = s.f.Variations.AddLine(s.ctx, v.ID, line)
		require.NoError(t, err)
	}
	return v
}

func (s scenario) approved(t *testing.T, lines ...domain.LineInput) *domain.Variation {
	t.Helper()
	v := s.draft(t, lines...)
	v, err := s.f.Variations.Submit(s.ctx, v.ID)
	require.NoError(t, err)
	v, err = s.f.Variations.Approve(s.ctx, v.ID)
	require.NoError(t, err)
	return v
}

func TestCreateAssignsReference(t *testing.T) {
	s := setup(t)
	v := s.draft(t)
	assert.Equal(t, "VO/00001", v.Name)
	assert.Equal(t, domain.StatusDraft, v.Status)
	assert.Equal(t, domain.DefaultCategory, v.Category)
	assert.Equal(t, "u-approver", v.RequestedBy)

	_, err := s.f.Variations.Create(s.ctx, domain.CreateRequest{BoqID: s.boq.ID})
	assert.ErrorIs(t, err, domain.ErrDescriptionRequired)
}

func TestEditLineSnapshotsTarget(t *testing.T) {
	s := setup(t)
	v := s.draft(t, domain.LineInput{
		ActionType:          domain.ActionEdit,
		TargetSubActivityID: &s.sub.ID,
		NewQty:              ptr(12.0),
	})

	require.Len(t, v.Lines, 1)
	line := v.Lines[0]
	assert.Equal(t, "Edit: Concrete", line.DisplayName)
	assert.Equal(t, 10.0, line.OriginalQty)
	assert.Equal(t, 100.0, line.OriginalCost)
	assert.InDelta(t, 1000, line.OriginalTotal, 1e-9)
	assert.Equal(t, 12.0, line.NewQty)
	assert.Equal(t, 100.0, line.NewCost)
	assert.InDelta(t, 200, line.VariationAmount, 1e-9)
	assert.InDelta(t, 200, v.TotalVariationAmount, 1e-9)
}

func TestApplyRequiresApproval(t *testing.T) {
	s := setup(t)
	v := s.draft(t, domain.LineInput{
		ActionType:          domain.ActionEdit,
		TargetSubActivityID: &s.sub.ID,
		NewQty:              ptr(12.0),
	})
	v, err := s.f.Variations.Submit(s.ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSubmitted, v.Status)

	_, err = s.f.Variations.Apply(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrNotApproved)
	assert.True(t, apperror.IsUser(err))

	boq, err := s.f.Boq.Get(s.f.Ctx, s.boq.ID)
	require.NoError(t, err)
	require.Len(t, boq.Activities, 1)
	require.Len(t, boq.Activities[0].SubActivities, 1)
	assert.Equal(t, 10.0, boq.Activities[0].SubActivities[0].MasterQty)
	assert.False(t, boq.Activities[0].SubActivities[0].IsVariation)

	stored, err := s.f.Variations.Get(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, stored.Status)
}

func TestApplyLocksBoqInsideTransaction(t *testing.T) {
	s := setup(t)
	v := s.approved(t, domain.LineInput{
		ActionType:       domain.ActionAdd,
		TargetActivityID: &s.boq.Activities[0].ID,
		ProductID:        &s.rebar,
		NewQty:           ptr(4.0),
		NewCost:          ptr(50.0),
	})

	s.f.BoqLoads.Reset()
	applied, err := s.f.Variations.Apply(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, applied.Status)
	s.f.RequireLockedLoads(t)

	boq, err := s.f.Boq.Get(s.f.Ctx, s.boq.ID)
	require.NoError(t, err)
	require.Len(t, boq.Activities[0].SubActivities, 2)
	assert.True(t, boq.Activities[0].SubActivities[1].IsVariation)
}

func TestApplyWritesEveryLineCategory(t *testing.T) {
	s := setup(t)
	v := s.approved(t,
		domain.LineInput{
			ActionType:          domain.ActionEdit,
			TargetSubActivityID: &s.sub.ID,
			NewQty:              ptr(12.0),
			NewMargin:           ptr(0.0),
		},
		domain.LineInput{
			ActionType:       domain.ActionAdd,
			TargetActivityID: &s.boq.Activities[0].ID,
			ProductID:        &s.rebar,
			Description:      ptr("D13"),
			NewQty:           ptr(5.0),
			NewCost:          ptr(100.0),
		},
		domain.LineInput{
			ActionType:   domain.ActionNewActivity,
			ActivityName: "Roof",
			ProductID:    &s.rebar,
			ActivityType: boqdomain.ActivityTypeLabor,
			NewQty:       ptr(2.0),
			NewCost:      ptr(50.0),
			NewMargin:    ptr(10.0),
		},
	)
	assert.Equal(t, []string{"u-approver"}, []string(v.ApprovedBy))
	require.NotNil(t, v.ApprovalDate)
	assert.Equal(t, "Add to Structure: Rebar", v.Lines[1].DisplayName)
	assert.Equal(t, "New Activity: Roof", v.Lines[2].DisplayName)
	assert.InDelta(t, 200+500+110, v.TotalVariationAmount, 1e-9)

	v, err := s.f.Variations.Apply(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, v.Status)
	require.NotNil(t, v.AppliedAt)

	boq, err := s.f.Boq.Get(s.f.Ctx, s.boq.ID)
	require.NoError(t, err)
	require.Len(t, boq.Activities, 2)

	structure := boq.Activities[0]
	require.Len(t, structure.SubActivities, 2)
	edited := structure.SubActivities[0]
	assert.Equal(t, 12.0, edited.MasterQty)
	assert.Equal(t, 100.0, edited.ProductCost)
	assert.True(t, edited.IsVariation)
	require.NotNil(t, edited.SourceVariationID)
	assert.Equal(t, v.ID, *edited.SourceVariationID)

	added := structure.SubActivities[1]
	assert.Equal(t, "Rebar - D13", added.Name)
	assert.Equal(t, 5.0, added.MasterQty)
	assert.Equal(t, 100.0, added.ProductCost)
	assert.True(t, added.IsVariation)
	assert.Equal(t, 20, added.Sequence)

	roof := boq.Activities[1]
	assert.Equal(t, "Roof", roof.Name)
	assert.Equal(t, "Added by variation "+v.Name, roof.Description)
	require.Len(t, roof.SubActivities, 1)
	assert.Equal(t, boqdomain.ActivityTypeLabor, roof.SubActivities[0].ActivityType)
	assert.InDelta(t, 55, roof.SubActivities[0].UnitPrice, 1e-9)

	assert.InDelta(t, 1200+500+110, boq.Total, 1e-9)

	var event events.Event
	require.NoError(t, s.f.DB.Where("topic = ?", events.TopicVariationApplied).Take(&event).Error)
	assert.Equal(t, "Variation "+v.Name+" has been successfully applied to BOQ "+boq.Name+".", event.Payload["message"])

	var audits int64
	require.NoError(t, s.f.DB.Model(&auditdomain.AuditLog{}).Where("action = ?", "variation.applied").Count(&audits).Error)
	assert.EqualValues(t, 1, audits)

	_, err = s.f.Variations.Apply(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestApplyThatOverBillsIsRejected(t *testing.T) {
	s := setup(t)
	s.f.SetCurrentQty(t, s.sub, 8)

	v := s.approved(t, domain.LineInput{
		ActionType:          domain.ActionEdit,
		TargetSubActivityID: &s.sub.ID,
		NewQty:              ptr(5.0),
	})

	_, err := s.f.Variations.Apply(s.ctx, v.ID)
	assert.ErrorIs(t, err, boqdomain.ErrOverBilled)

	boq, err := s.f.Boq.Get(s.f.Ctx, s.boq.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, boq.Activities[0].SubActivities[0].MasterQty)

	stored, err := s.f.Variations.Get(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestSubmitPreconditions(t *testing.T) {
	s := setup(t)
	v := s.draft(t)

	_, err := s.f.Variations.Submit(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrNoChanges)

	v, err = s.f.Variations.AddLine(s.ctx, v.ID, domain.LineInput{
		ActionType:   domain.ActionNewActivity,
		ActivityName: "Roof",
		NewQty:       ptr(1.0),
	})
	require.NoError(t, err)

	v, err = s.f.Variations.SetApprovers(s.ctx, v.ID, nil)
	require.NoError(t, err)
	_, err = s.f.Variations.Submit(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrApproverRequired)

	_, err = s.f.Variations.SetApprovers(s.ctx, v.ID, []string{" u-1 ", "u-1", ""})
	require.NoError(t, err)
	v, err = s.f.Variations.MarkToSubmit(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusToSubmit, v.Status)
	v, err = s.f.Variations.Submit(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, []string(v.Approvers))

	_, err = s.f.Variations.SetApprovers(s.ctx, v.ID, []string{})
	assert.ErrorIs(t, err, domain.ErrApproverRequired)

	_, err = s.f.Variations.AddLine(s.ctx, v.ID, domain.LineInput{ActionType: domain.ActionNewActivity, ActivityName: "Late"})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestApproveRequiresActor(t *testing.T) {
	s := setup(t)
	v := s.draft(t, domain.LineInput{ActionType: domain.ActionNewActivity, ActivityName: "Roof"})
	v, err := s.f.Variations.Submit(s.ctx, v.ID)
	require.NoError(t, err)

	_, err = s.f.Variations.Approve(s.f.Ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrActorRequired)
}

func TestRefuseAndCancel(t *testing.T) {
	s := setup(t)
	v := s.draft(t, domain.LineInput{ActionType: domain.ActionNewActivity, ActivityName: "Roof"})

	_, err := s.f.Variations.Refuse(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	v, err = s.f.Variations.Submit(s.ctx, v.ID)
	require.NoError(t, err)
	v, err = s.f.Variations.Refuse(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefused, v.Status)

	_, err = s.f.Variations.Cancel(s.ctx, v.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestLineValidationOnWrite(t *testing.T) {
	s := setup(t)
	v := s.draft(t)

	_, err := s.f.Variations.AddLine(s.ctx, v.ID, domain.LineInput{ActionType: domain.ActionEdit})
	assert.ErrorIs(t, err, domain.ErrTargetSubActivityRequired)

	_, err = s.f.Variations.AddLine(s.ctx, v.ID, domain.LineInput{
		ActionType:          domain.ActionEdit,
		TargetSubActivityID: &s.sub.ID,
		NewMargin:           ptr(120.0),
	})
	assert.ErrorIs(t, err, domain.ErrMarginRange)

	stored, err := s.f.Variations.Get(s.ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Lines)
}

func TestReferencedSubActivityCannotBeRemoved(t *testing.T) {
	f := fixture.New(t)
	customer := f.Customer(t, "PT Maju")
	p := f.DraftBoq(t, customer, fixture.Line{
		Activity:  "Structure",
		Product:   f.Product(t, "CON", "Concrete", 100),
		MasterQty: 10,
		Cost:      100,
	})
	sub := p.Activities[0].SubActivities[0]

	_, err := f.Variations.Create(f.Ctx, domain.CreateRequest{BoqID: p.ID, Description: "Change"})
	require.NoError(t, err)
	list, err := f.Variations.List(f.Ctx, domain.ListRequest{BoqID: p.ID.String()})
	require.NoError(t, err)
	require.Len(t, list.Variations, 1)

	_, err = f.Variations.AddLine(f.Ctx, list.Variations[0].ID, domain.LineInput{
		ActionType:          domain.ActionEdit,
		TargetSubActivityID: &sub.ID,
	})
	require.NoError(t, err)

	err = f.Boq.RemoveSubActivity(f.Ctx, sub.ID)
	assert.ErrorIs(t, err, boqdomain.ErrReferenceImmutable)
}
