package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestTotalVariationAmount(t *testing.T) {
	v := &Variation{
		Description: "Extra slab",
		Lines: []*Line{
			{
				ActionType:          ActionEdit,
				TargetSubActivityID: ptr(snowflake.ID(1)),
				ActivityType:        boqdomain.ActivityTypeMaterial,
				OriginalQty:         10,
				OriginalCost:        100,
				OriginalTotal:       1000,
				NewQty:              12,
				NewCost:             100,
			},
			{
				ActionType:       ActionAdd,
				TargetActivityID: ptr(snowflake.ID(2)),
				ActivityType:     boqdomain.ActivityTypeLabor,
				NewQty:           5,
				NewCost:          100,
			},
		},
	}
	require.NoError(t, v.Reconcile())

	assert.InDelta(t, 1200, v.Lines[0].NewTotal, 1e-9)
	assert.InDelta(t, 200, v.Lines[0].VariationAmount, 1e-9)
	assert.InDelta(t, 2, v.Lines[0].QtyVariation, 1e-9)
	assert.InDelta(t, 500, v.Lines[1].NewTotal, 1e-9)
	assert.InDelta(t, 700, v.TotalVariationAmount, 1e-9)
}

func TestNewUnitPriceAppliesMargin(t *testing.T) {
	l := &Line{NewQty: 2, NewCost: 100, NewMargin: 10}
	l.Recompute()
	assert.InDelta(t, 110, l.NewUnitPrice, 1e-9)
	assert.InDelta(t, 220, l.NewTotal, 1e-9)
}

func TestLineValidate(t *testing.T) {
	valid := func() *Line {
		return &Line{
			ActionType:          ActionEdit,
			TargetSubActivityID: ptr(snowflake.ID(1)),
			ActivityType:        boqdomain.ActivityTypeMaterial,
		}
	}
	tests := []struct {
		name   string
		mutate func(l *Line)
		want   error
	}{
		{name: "valid", mutate: func(l *Line) {}},
		{name: "edit without target", mutate: func(l *Line) { l.TargetSubActivityID = nil }, want: ErrTargetSubActivityRequired},
		{name: "add without activity", mutate: func(l *Line) { l.ActionType = ActionAdd }, want: ErrTargetActivityRequired},
		{name: "new activity without name", mutate: func(l *Line) { l.ActionType = ActionNewActivity }, want: ErrActivityNameRequired},
		{name: "unknown action", mutate: func(l *Line) { l.ActionType = "delete" }, want: ErrInvalidActionType},
		{name: "negative qty", mutate: func(l *Line) { l.NewQty = -1 }, want: ErrNegativeQty},
		{name: "negative cost", mutate: func(l *Line) { l.NewCost = -1 }, want: ErrNegativeCost},
		{name: "margin above 100", mutate: func(l *Line) { l.NewMargin = 101 }, want: ErrMarginRange},
		{name: "bad activity type", mutate: func(l *Line) { l.ActivityType = "equipment" }, want: ErrInvalidActivityType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid()
			tt.mutate(l)
			err := l.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperror.IsValidation(err))
		})
	}
}

func TestApproversRequiredOnceSubmitted(t *testing.T) {
	v := &Variation{Description: "Extra slab", Status: StatusDraft}
	assert.NoError(t, v.Validate())

	v.Status = StatusSubmitted
	assert.ErrorIs(t, v.Validate(), ErrApproverRequired)

	v.Approvers = []string{"u-1"}
	assert.NoError(t, v.Validate())

	v.Approvers = nil
	v.Status = StatusApproved
	assert.ErrorIs(t, v.Validate(), ErrApproverRequired)

	v.Status = StatusRefused
	assert.NoError(t, v.Validate())
}

func TestApproveRecordsActorOnce(t *testing.T) {
	v := &Variation{Status: StatusSubmitted}
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	v.Approve("u-1", at)
	v.Approve("u-1", at.Add(time.Hour))

	assert.Equal(t, StatusApproved, v.Status)
	assert.Equal(t, []string{"u-1"}, []string(v.ApprovedBy))
	require.NotNil(t, v.ApprovalDate)
	assert.Equal(t, at.Add(time.Hour), *v.ApprovalDate)
}

func TestSnapshotAndLabels(t *testing.T) {
	sub := &boqdomain.SubActivity{
		ID:            11,
		Name:          "Concrete - K-300",
		ProductID:     9,
		Description:   "K-300",
		ActivityType:  boqdomain.ActivityTypeMaterial,
		MasterQty:     10,
		ProductCost:   100,
		MarginPercent: 20,
	}
	boq := &boqdomain.Project{Activities: []*boqdomain.Activity{{
		ID:            10,
		Name:          "Structure",
		SubActivities: []*boqdomain.SubActivity{sub},
	}}}
	boq.Recompute()

	edit := &Line{ActionType: ActionEdit, TargetSubActivityID: ptr(sub.ID)}
	edit.Snapshot(sub)
	assert.Equal(t, snowflake.ID(9), *edit.ProductID)
	assert.Equal(t, "K-300", edit.Description)
	assert.InDelta(t, 1200, edit.OriginalTotal, 1e-9)
	assert.Equal(t, 10.0, edit.NewQty)
	assert.Equal(t, 100.0, edit.NewCost)
	assert.Equal(t, 20.0, edit.NewMargin)
	assert.Equal(t, "Edit: Concrete - K-300", edit.Label(boq, ""))

	edit.Recompute()
	assert.InDelta(t, 0, edit.VariationAmount, 1e-9)

	add := &Line{ActionType: ActionAdd, TargetActivityID: ptr(snowflake.ID(10))}
	assert.Equal(t, "Add to Structure: New Item", add.Label(boq, ""))
	assert.Equal(t, "Add to Structure: Rebar", add.Label(boq, "Rebar"))

	assert.Equal(t, "New Activity: Unnamed", (&Line{ActionType: ActionNewActivity}).Label(boq, ""))
	assert.Equal(t, "New Activity: Roof", (&Line{ActionType: ActionNewActivity, ActivityName: "Roof"}).Label(boq, ""))
	assert.Equal(t, "Variation Line", (&Line{ActionType: ActionAdd}).Label(boq, ""))

	foreign := &Line{ActionType: ActionAdd, TargetActivityID: ptr(snowflake.ID(99))}
	assert.ErrorIs(t, foreign.CheckTargets(boq), ErrForeignTarget)
}
