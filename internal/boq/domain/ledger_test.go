package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetentionRate(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want float64
	}{
		{name: "whole percent", rule: "RET 5%", want: 5},
		{name: "fractional percent", rule: "RET 7.5%", want: 7.5},
		{name: "bare percent", rule: "10%", want: 10},
		{name: "no percent sign", rule: "RET 7", want: DefaultRetentionRate},
		{name: "not a number", rule: "RET x%", want: DefaultRetentionRate},
		{name: "garbage", rule: "bad", want: DefaultRetentionRate},
		{name: "empty", rule: "", want: DefaultRetentionRate},
		{name: "only percent sign", rule: "%", want: DefaultRetentionRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRetentionRate(tt.rule))
		})
	}
}

func TestRetentionRatePrefersStructuredPercent(t *testing.T) {
	p := &Project{RetentionRule: "RET 7.5%"}
	assert.Equal(t, 7.5, p.RetentionRate())

	structured := 2.0
	p.RetentionPercent = &structured
	assert.Equal(t, 2.0, p.RetentionRate())

	zero := 0.0
	p.RetentionPercent = &zero
	assert.Equal(t, 0.0, p.RetentionRate())

	p = &Project{RetentionRule: "bad"}
	assert.Equal(t, DefaultRetentionRate, p.RetentionRate())
}

// billedActivity has one sub-activity priced at 100 per unit.
func billedActivity(sequence int, masterQty, previousQty float64) *Activity {
	return &Activity{
		ID:       snowflake.ID(1000 + sequence),
		Name:     "Activity",
		Sequence: sequence,
		SubActivities: []*SubActivity{{
			ID:           snowflake.ID(2000 + sequence),
			Name:         "Work",
			Sequence:     10,
			ActivityType: ActivityTypeMaterial,
			MasterQty:    masterQty,
			PreviousQty:  previousQty,
			ProductCost:  100,
		}},
	}
}

func TestRecomputeWeightsProgressByAmount(t *testing.T) {
	p := &Project{
		Name:          "BOQ/00001",
		Type:          TypeClient,
		RetentionRule: "RET 5%",
		Activities: []*Activity{
			billedActivity(10, 10, 5),
			billedActivity(20, 30, 3),
		},
	}

	require.NoError(t, p.Reconcile())

	a, b := p.Activities[0], p.Activities[1]
	assert.InDelta(t, 1000, a.TotalCumulative, 1e-9)
	assert.InDelta(t, 50, a.BilledProgressPercent, 1e-9)
	assert.InDelta(t, 3000, b.TotalCumulative, 1e-9)
	assert.InDelta(t, 10, b.BilledProgressPercent, 1e-9)

	assert.InDelta(t, 4000, p.Total, 1e-9)
	assert.InDelta(t, 800, p.TotalPrevious, 1e-9)
	assert.InDelta(t, 20.0, p.BilledProgressPercent, 1e-9)
	assert.InDelta(t, 200, p.RetentionAmountTotal, 1e-9)

	before := *p
	p.Recompute()
	assert.Equal(t, before.Total, p.Total)
	assert.Equal(t, before.TotalPrevious, p.TotalPrevious)
	assert.Equal(t, before.TotalCurrent, p.TotalCurrent)
	assert.Equal(t, before.BilledProgressPercent, p.BilledProgressPercent)
	assert.Equal(t, before.OnsiteProgressPercent, p.OnsiteProgressPercent)
	assert.Equal(t, before.RetentionAmountTotal, p.RetentionAmountTotal)
	assert.InDelta(t, 50, p.Activities[0].BilledProgressPercent, 1e-9)
	assert.InDelta(t, 10, p.Activities[1].BilledProgressPercent, 1e-9)
}

func TestRecomputeEmptyBoq(t *testing.T) {
	p := &Project{Name: "BOQ/00002", Type: TypeClient}
	require.NoError(t, p.Reconcile())
	assert.Zero(t, p.Total)
	assert.Zero(t, p.BilledProgressPercent)
	assert.Zero(t, p.OnsiteProgressPercent)
}
