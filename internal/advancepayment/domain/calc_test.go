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

// project has 8000 of original scope and 2000 added by a variation.
func project() *boqdomain.Project {
	p := &boqdomain.Project{
		ID:   1,
		Name: "BOQ/00001",
		Activities: []*boqdomain.Activity{{
			ID:   10,
			Name: "Structure",
			SubActivities: []*boqdomain.SubActivity{
				{ID: 11, Name: "Concrete", MasterQty: 80, ProductCost: 100},
				{ID: 12, Name: "Rebar", MasterQty: 20, ProductCost: 100, IsVariation: true},
			},
		}},
	}
	p.Recompute()
	return p
}

var paymentDate = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestDefaultSelectionFollowsLineType(t *testing.T) {
	w := NewWizard(project(), "", "", paymentDate)
	assert.Equal(t, LineTypeOriginal, w.LineType)
	assert.Equal(t, MethodPercentage, w.Method)
	require.Len(t, w.Lines, 2)
	assert.True(t, w.Lines[0].Selected)
	assert.False(t, w.Lines[1].Selected)

	w = NewWizard(project(), LineTypeVariation, MethodAmount, paymentDate)
	assert.False(t, w.Lines[0].Selected)
	assert.True(t, w.Lines[1].Selected)
}

func TestDeriveBothDirections(t *testing.T) {
	w := NewWizard(project(), LineTypeOriginal, MethodPercentage, paymentDate)
	w.Percentage = 10
	w.Derive()
	assert.InDelta(t, 8000, w.LinesTotal, 1e-9)
	assert.InDelta(t, 800, w.Amount, 1e-9)

	w = NewWizard(project(), LineTypeVariation, MethodAmount, paymentDate)
	w.Amount = 500
	w.Derive()
	assert.InDelta(t, 2000, w.LinesTotal, 1e-9)
	assert.InDelta(t, 25, w.Percentage, 1e-9)
}

func TestSelectionOfOtherTypeDoesNotCount(t *testing.T) {
	w := NewWizard(project(), LineTypeOriginal, MethodPercentage, paymentDate)
	require.NoError(t, w.Select([]snowflake.ID{11, 12}))
	w.Percentage = 10
	w.Derive()
	assert.InDelta(t, 8000, w.LinesTotal, 1e-9)

	assert.ErrorIs(t, w.Select([]snowflake.ID{99}), ErrUnknownSelection)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w *Wizard)
		want error
		user bool
	}{
		{name: "valid", mutate: func(w *Wizard) {}},
		{name: "percentage above 100", mutate: func(w *Wizard) { w.Percentage = 120 }, want: ErrPercentageRange},
		{name: "zero percentage", mutate: func(w *Wizard) { w.Percentage = 0 }, want: ErrPercentageRange},
		{name: "negative amount", mutate: func(w *Wizard) { w.Amount = -1 }, want: ErrNegativeAmount},
		{name: "zero amount", mutate: func(w *Wizard) { w.Amount = 0 }, want: ErrZeroAmount, user: true},
		{name: "nothing selected", mutate: func(w *Wizard) {
			for i := range w.Lines {
				w.Lines[i].Selected = false
			}
		}, want: ErrNoLineSelected, user: true},
		{name: "bad line type", mutate: func(w *Wizard) { w.LineType = "other" }, want: ErrInvalidLineType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWizard(project(), LineTypeOriginal, MethodPercentage, paymentDate)
			w.Percentage = 10
			w.Amount = 800
			tt.mutate(w)
			err := w.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.user, apperror.IsUser(err))
		})
	}
}

func TestInvoiceLineAndApply(t *testing.T) {
	p := project()
	p.AdvanceOriginalAmount = 100
	p.AdvanceOriginalPercent = 5

	w := NewWizard(p, LineTypeOriginal, MethodPercentage, paymentDate)
	w.Percentage = 10
	w.Derive()
	assert.Equal(t, "Advance Payment (Original) - 10.0%", w.InvoiceLineName())
	assert.Equal(t, "Advance Payment - BOQ/00001", w.InvoiceRef())

	w.Apply(p)
	assert.InDelta(t, 900, p.AdvanceOriginalAmount, 1e-9)
	assert.Equal(t, 10.0, p.AdvanceOriginalPercent)
	assert.Zero(t, p.AdvanceVariationAmount)

	v := NewWizard(p, LineTypeVariation, MethodAmount, paymentDate)
	v.Amount = 500
	v.Derive()
	assert.Equal(t, "Advance Payment (Variation)", v.InvoiceLineName())
	v.Apply(p)
	assert.InDelta(t, 500, p.AdvanceVariationAmount, 1e-9)
	assert.Equal(t, 25.0, p.AdvanceVariationPercent)
}
