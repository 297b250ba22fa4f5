package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
)

const (
	// QtyDigits is the stored precision of quantities and unit costs.
	QtyDigits = 2
	// PercentDigits is the stored precision of margin and progress inputs.
	PercentDigits = 2

	DefaultRetentionRate = 5.0
	DefaultSequenceStep  = 10
)

// Round rounds half away from zero at digits decimals. A one-ulp nudge keeps
// values such as 2.675 (stored as 2.67499...) rounding up.
func Round(value float64, digits int) float64 {
	if value == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	scale := math.Pow10(digits)
	normalized := value * scale
	epsilon := math.Pow(2, math.Log2(math.Abs(normalized))-52)
	normalized += math.Copysign(epsilon, normalized)
	return math.Round(normalized) / scale
}

// UnitPrice applies margin on top of the total unit cost.
func UnitPrice(totalCost, marginPercent float64) float64 {
	if marginPercent > 0 {
		return totalCost * (1 + marginPercent/100)
	}
	return totalCost
}

// ParseRetentionRate extracts the percentage from labels such as "RET 5%".
// Anything without a parsable trailing percentage falls back to 5.
func ParseRetentionRate(rule string) float64 {
	if !strings.Contains(rule, "%") {
		return DefaultRetentionRate
	}
	fields := strings.Fields(rule)
	if len(fields) == 0 {
		return DefaultRetentionRate
	}
	last := strings.ReplaceAll(fields[len(fields)-1], "%", "")
	rate, err := strconv.ParseFloat(last, 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return DefaultRetentionRate
	}
	return rate
}

// ComposeSubActivityName builds the display name of a sub-activity.
func ComposeSubActivityName(productName, description string) string {
	productName = strings.TrimSpace(productName)
	description = strings.TrimSpace(description)
	switch {
	case productName != "" && description != "":
		return productName + " - " + description
	case productName != "":
		return productName
	default:
		return "New Sub-Activity"
	}
}

// lessOrEqualQty compares two quantities at stored precision.
func lessOrEqualQty(a, b float64) bool {
	return Round(a-b, QtyDigits) <= 0
}

// Normalize rounds the stored inputs of a sub-activity to their precision.
func (s *SubActivity) Normalize() {
	s.MasterQty = Round(s.MasterQty, QtyDigits)
	s.PreviousQty = Round(s.PreviousQty, QtyDigits)
	s.CurrentQty = Round(s.CurrentQty, QtyDigits)
	s.ProductCost = Round(s.ProductCost, QtyDigits)
	s.MarginPercent = Round(s.MarginPercent, PercentDigits)
	for _, c := range s.AdditionalCosts {
		c.Cost = Round(c.Cost, QtyDigits)
	}
}

// Recompute derives cost, price, amounts and progress from the stored inputs.
func (s *SubActivity) Recompute() {
	totalCost := s.ProductCost
	for _, c := range s.AdditionalCosts {
		totalCost += c.Cost
	}
	s.TotalCost = totalCost
	s.UnitPrice = UnitPrice(totalCost, s.MarginPercent)

	s.TotalPrevious = s.PreviousQty * s.UnitPrice
	s.TotalCurrent = s.CurrentQty * s.UnitPrice
	s.TotalCumulative = s.MasterQty * s.UnitPrice

	if s.MasterQty != 0 {
		s.BilledProgressPercent = s.PreviousQty / s.MasterQty * 100
		s.OnsiteProgressPercent = (s.PreviousQty + s.CurrentQty) / s.MasterQty * 100
	} else {
		s.BilledProgressPercent = 0
		s.OnsiteProgressPercent = 0
	}
}

// Validate enforces the ledger invariants of a sub-activity.
func (s *SubActivity) Validate() error {
	if s.MasterQty < 0 || s.PreviousQty < 0 || s.CurrentQty < 0 {
		return apperror.Wrapf(ErrNegativeQuantity, "%s", s.Name)
	}
	if !lessOrEqualQty(s.PreviousQty+s.CurrentQty, s.MasterQty) {
		return apperror.Wrapf(ErrOverBilled, "total progress (%s) exceeds master quantity (%s) for %s",
			formatQty(s.PreviousQty+s.CurrentQty), formatQty(s.MasterQty), s.Name)
	}
	if s.MarginPercent < 0 || s.MarginPercent > 100 {
		return apperror.Wrapf(ErrMarginOutOfRange, "%s", s.Name)
	}
	if s.ProductCost < 0 {
		return apperror.Wrapf(ErrNegativeCost, "product cost of %s", s.Name)
	}
	for _, c := range s.AdditionalCosts {
		if c.Cost < 0 {
			return apperror.Wrapf(ErrNegativeCost, "additional cost %q of %s", c.Name, s.Name)
		}
	}
	if !s.ActivityType.Valid() {
		return apperror.Wrapf(ErrInvalidActivityType, "%s", s.Name)
	}
	return nil
}

// Recompute rolls the children up. Progress is weighted by quantity.
func (a *Activity) Recompute() {
	var prev, cur, cum, masterQty, prevQty, onsiteQty float64
	for _, sub := range a.SubActivities {
		sub.Recompute()
		prev += sub.TotalPrevious
		cur += sub.TotalCurrent
		cum += sub.TotalCumulative
		masterQty += sub.MasterQty
		prevQty += sub.PreviousQty
		onsiteQty += sub.PreviousQty + sub.CurrentQty
	}
	a.TotalPrevious = prev
	a.TotalCurrent = cur
	a.TotalCumulative = cum

	if masterQty != 0 {
		a.BilledProgressPercent = prevQty / masterQty * 100
		a.OnsiteProgressPercent = onsiteQty / masterQty * 100
	} else {
		a.BilledProgressPercent = 0
		a.OnsiteProgressPercent = 0
	}
}

func (a *Activity) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return apperror.Wrapf(ErrNameRequired, "activity")
	}
	if a.MarginPercent < 0 {
		return apperror.Wrapf(ErrNegativeMargin, "activity %s", a.Name)
	}
	for _, sub := range a.SubActivities {
		if err := sub.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NextSubActivitySequence returns the sequence for a new child.
func (a *Activity) NextSubActivitySequence() int {
	last := 0
	for _, sub := range a.SubActivities {
		if sub.Sequence > last {
			last = sub.Sequence
		}
	}
	return last + DefaultSequenceStep
}

// RetentionRate returns the structured rate when set and otherwise parses
// the retention label.
func (p *Project) RetentionRate() float64 {
	if p.RetentionPercent != nil {
		return *p.RetentionPercent
	}
	return ParseRetentionRate(p.RetentionRule)
}

func (p *Project) OutstandingAdvanceOriginal() float64 {
	return math.Max(0, p.AdvanceOriginalAmount-p.AdvanceOriginalRecovered)
}

func (p *Project) OutstandingAdvanceVariation() float64 {
	return math.Max(0, p.AdvanceVariationAmount-p.AdvanceVariationRecovered)
}

// Recompute rolls activities up. Progress across activities is weighted by
// each activity's cumulative amount.
func (p *Project) Recompute() {
	p.SortActivities()

	var prev, cur, total, weightedBilled, weightedOnsite float64
	for _, a := range p.Activities {
		a.Recompute()
		prev += a.TotalPrevious
		cur += a.TotalCurrent
		total += a.TotalCumulative
		weightedBilled += a.BilledProgressPercent * a.TotalCumulative / 100
		weightedOnsite += a.OnsiteProgressPercent * a.TotalCumulative / 100
	}
	p.TotalPrevious = prev
	p.TotalCurrent = cur
	p.Total = total

	if total != 0 {
		p.BilledProgressPercent = weightedBilled / total * 100
		p.OnsiteProgressPercent = weightedOnsite / total * 100
	} else {
		p.BilledProgressPercent = 0
		p.OnsiteProgressPercent = 0
	}
	p.RetentionAmountTotal = total * p.RetentionRate() / 100
}

// Validate enforces every invariant of the aggregate.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperror.Wrapf(ErrNameRequired, "boq")
	}
	if p.Type != TypeClient && p.Type != TypeSubcontract {
		return ErrInvalidType
	}
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return ErrInvalidDates
	}
	if p.MarginPercent < 0 {
		return apperror.Wrapf(ErrNegativeMargin, "boq %s", p.Name)
	}
	if p.RetentionPercent != nil && (*p.RetentionPercent < 0 || *p.RetentionPercent > 100) {
		return ErrInvalidRetention
	}
	for _, a := range p.Activities {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile recomputes every derived field and then checks the invariants.
func (p *Project) Reconcile() error {
	p.Recompute()
	return p.Validate()
}

// Editable reports whether the contract structure (quantities, costs,
// margins, lines) may still be edited directly.
func (p *Project) Editable() bool {
	return p.Status == StatusDraft
}

// Closed reports whether the BOQ accepts no further writes.
func (p *Project) Closed() bool {
	return p.Status == StatusDone || p.Status == StatusCancelled
}

// NextActivitySequence returns last sibling sequence + 10.
func (p *Project) NextActivitySequence() int {
	last := 0
	for _, a := range p.Activities {
		if a.Sequence > last {
			last = a.Sequence
		}
	}
	return last + DefaultSequenceStep
}

// SortActivities orders activities and their children by sequence, then id.
func (p *Project) SortActivities() {
	sort.SliceStable(p.Activities, func(i, j int) bool {
		return bySequence(p.Activities[i].Sequence, p.Activities[i].ID, p.Activities[j].Sequence, p.Activities[j].ID)
	})
	for _, a := range p.Activities {
		subs := a.SubActivities
		sort.SliceStable(subs, func(i, j int) bool {
			return bySequence(subs[i].Sequence, subs[i].ID, subs[j].Sequence, subs[j].ID)
		})
	}
}

func bySequence(seqA int, idA snowflake.ID, seqB int, idB snowflake.ID) bool {
	if seqA != seqB {
		return seqA < seqB
	}
	return idA < idB
}

func (p *Project) FindActivity(id snowflake.ID) *Activity {
	for _, a := range p.Activities {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// FindSubActivity returns the sub-activity and its parent activity.
func (p *Project) FindSubActivity(id snowflake.ID) (*SubActivity, *Activity) {
	for _, a := range p.Activities {
		for _, sub := range a.SubActivities {
			if sub.ID == id {
				return sub, a
			}
		}
	}
	return nil, nil
}

// SubActivities returns every leaf in activity order.
func (p *Project) SubActivities() []*SubActivity {
	var out []*SubActivity
	for _, a := range p.Activities {
		out = append(out, a.SubActivities...)
	}
	return out
}

func formatQty(v float64) string {
	return strconv.FormatFloat(Round(v, QtyDigits), 'f', -1, 64)
}

// FormatPercent renders a percentage with at least one decimal ("10.0",
// "12.5", "33.33").
func FormatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
