package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
)

// NewWizard offers every activity of boq, applying the selections.
func NewWizard(boq *boqdomain.Project, req Request) (*Wizard, error) {
	w := &Wizard{
		BoqID:       boq.ID,
		VendorID:    req.VendorID,
		ProjectName: req.ProjectName,
		Currency:    boq.Currency,
	}
	if w.ProjectName == "" {
		w.ProjectName = "SUB-" + boq.Name
	}

	costs := make(map[snowflake.ID]float64, len(req.Selections))
	for _, sel := range req.Selections {
		if boq.FindActivity(sel.ActivityID) == nil {
			return nil, apperror.Wrapf(ErrForeignActivity, "activity %s", sel.ActivityID)
		}
		costs[sel.ActivityID] = boqdomain.Round(sel.UnitCost, boqdomain.QtyDigits)
	}

	for _, a := range boq.Activities {
		var qty float64
		for _, sub := range a.SubActivities {
			qty += sub.MasterQty
		}
		cost, selected := costs[a.ID]
		w.Lines = append(w.Lines, Line{
			ActivityID:     a.ID,
			ActivityName:   a.Name,
			Selected:       selected,
			UnitCost:       cost,
			TotalQuantity:  qty,
			EstimatedTotal: qty * cost,
		})
	}
	return w, nil
}

func (w *Wizard) Selected() []Line {
	var out []Line
	for _, l := range w.Lines {
		if l.Selected {
			out = append(out, l)
		}
	}
	return out
}

// Check validates the selections as they are entered.
func (w *Wizard) Check() error {
	for _, l := range w.Selected() {
		if l.UnitCost <= 0 {
			return apperror.Wrapf(ErrUnitCostRequired, "activity %s", l.ActivityName)
		}
	}
	return nil
}

func (w *Wizard) Validate() error {
	if w.VendorID == 0 {
		return ErrVendorRequired
	}
	if len(w.Selected()) == 0 {
		return ErrNothingSelected
	}
	return w.Check()
}

// PurchaseLines builds one purchase line per sub-activity of every selected
// activity, priced at the activity's unit cost.
func (w *Wizard) PurchaseLines(boq *boqdomain.Project) ([]integrationdomain.LineRequest, []snowflake.ID) {
	distribution := integrationdomain.Distribution(boq.AnalyticAccountID)
	var lines []integrationdomain.LineRequest
	var activityIDs []snowflake.ID
	for _, sel := range w.Selected() {
		a := boq.FindActivity(sel.ActivityID)
		activityIDs = append(activityIDs, a.ID)
		for _, sub := range a.SubActivities {
			productID := sub.ProductID
			lines = append(lines, integrationdomain.LineRequest{
				ProductID:            &productID,
				Name:                 a.Name + " - " + sub.Name,
				Quantity:             sub.MasterQty,
				UnitPrice:            sel.UnitCost,
				AnalyticDistribution: distribution,
			})
		}
	}
	return lines, activityIDs
}

// Mirror copies the purchased activities of source into a new subcontract
// BOQ owned by the vendor. Sub-activity cost comes from the first purchase
// line with the same product, else the source product cost. Margins are
// zero.
func Mirror(source *boqdomain.Project, po *integrationdomain.PurchaseOrder, newID func() snowflake.ID) *boqdomain.Project {
	poID := po.ID
	mirror := &boqdomain.Project{
		ID:                newID(),
		OrgID:             source.OrgID,
		Name:              "SUB-" + po.Name,
		Type:              boqdomain.TypeSubcontract,
		Status:            boqdomain.StatusApproved,
		CustomerID:        po.VendorID,
		Currency:          po.Currency,
		ProjectManager:    source.ProjectManager,
		RetentionRule:     source.RetentionRule,
		RetentionPercent:  source.RetentionPercent,
		PurchaseOrderID:   &poID,
		ExternalProjectID: source.ExternalProjectID,
		AnalyticAccountID: source.AnalyticAccountID,
	}
	if mirror.Currency == "" {
		mirror.Currency = source.Currency
	}

	prices := make(map[snowflake.ID]float64, len(po.Lines))
	for _, l := range po.Lines {
		if _, seen := prices[l.ProductID]; !seen {
			prices[l.ProductID] = l.UnitPrice
		}
	}

	for _, activityID := range po.ActivityIDs {
		src := source.FindActivity(activityID)
		if src == nil {
			continue
		}
		a := &boqdomain.Activity{
			ID:          newID(),
			OrgID:       source.OrgID,
			BoqID:       mirror.ID,
			Sequence:    src.Sequence,
			Name:        src.Name,
			ProductID:   src.ProductID,
			Description: src.Description,
		}
		for _, sub := range src.SubActivities {
			cost, ok := prices[sub.ProductID]
			if !ok {
				cost = sub.ProductCost
			}
			a.SubActivities = append(a.SubActivities, &boqdomain.SubActivity{
				ID:           newID(),
				OrgID:        source.OrgID,
				BoqID:        mirror.ID,
				ActivityID:   a.ID,
				Sequence:     sub.Sequence,
				Name:         sub.Name,
				ProductID:    sub.ProductID,
				Description:  sub.Description,
				ActivityType: sub.ActivityType,
				MasterQty:    sub.MasterQty,
				ProductCost:  cost,
			})
		}
		mirror.Activities = append(mirror.Activities, a)
	}
	return mirror
}
