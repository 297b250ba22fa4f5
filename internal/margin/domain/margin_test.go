package domain

import (
	"testing"

	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/stretchr/testify/assert"
)

func tree() *boqdomain.Project {
	return &boqdomain.Project{
		MarginPercent: 5,
		Activities: []*boqdomain.Activity{
			{MarginPercent: 0, SubActivities: []*boqdomain.SubActivity{{MarginPercent: 0}, {MarginPercent: 15}}},
			{MarginPercent: 20, SubActivities: []*boqdomain.SubActivity{{MarginPercent: 20}}},
		},
	}
}

func TestApplyScopes(t *testing.T) {
	tests := []struct {
		name     string
		scope    Scope
		override bool
		acts     []float64
		subs     []float64
		actCount int
		subCount int
	}{
		{name: "all override", scope: ScopeAll, override: true, acts: []float64{10, 10}, subs: []float64{10, 10, 10}, actCount: 2, subCount: 3},
		{name: "all fill zero", scope: ScopeAll, acts: []float64{10, 20}, subs: []float64{10, 15, 20}, actCount: 1, subCount: 1},
		{name: "activities only", scope: ScopeActivitiesOnly, override: true, acts: []float64{10, 10}, subs: []float64{0, 15, 20}, actCount: 2},
		{name: "sub-activities only", scope: ScopeSubActivitiesOnly, override: true, acts: []float64{0, 20}, subs: []float64{10, 10, 10}, subCount: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tree()
			acts, subs := Apply(p, 10, tt.scope, tt.override)
			assert.Equal(t, 10.0, p.MarginPercent)
			assert.Equal(t, tt.actCount, acts)
			assert.Equal(t, tt.subCount, subs)

			var gotActs, gotSubs []float64
			for _, a := range p.Activities {
				gotActs = append(gotActs, a.MarginPercent)
				for _, sub := range a.SubActivities {
					gotSubs = append(gotSubs, sub.MarginPercent)
				}
			}
			assert.Equal(t, tt.acts, gotActs)
			assert.Equal(t, tt.subs, gotSubs)
		})
	}
}

func TestValidateAndMessage(t *testing.T) {
	assert.NoError(t, Validate(0, ScopeAll))
	assert.NoError(t, Validate(100, ScopeActivitiesOnly))
	assert.ErrorIs(t, Validate(-1, ScopeAll), ErrMarginRange)
	assert.ErrorIs(t, Validate(101, ScopeAll), ErrMarginRange)
	assert.ErrorIs(t, Validate(10, "everything"), ErrInvalidScope)

	assert.Equal(t, "Margin of 12.5% has been applied to Sub-activities Only.", Message(12.5, ScopeSubActivitiesOnly))
	assert.Equal(t, "Margin of 10.0% has been applied to All Activities and Sub-activities.", Message(10, ScopeAll))
}
