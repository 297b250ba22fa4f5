package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
)

// Snapshot copies the target sub-activity into the original values of an
// edit line and defaults the new values to them.
func (l *Line) Snapshot(sub *boqdomain.SubActivity) {
	productID := sub.ProductID
	l.ProductID = &productID
	l.Description = sub.Description
	l.ActivityType = sub.ActivityType

	l.OriginalQty = sub.MasterQty
	l.OriginalCost = sub.ProductCost
	l.OriginalMargin = sub.MarginPercent
	l.OriginalTotal = sub.TotalCumulative

	l.NewQty = sub.MasterQty
	l.NewCost = sub.ProductCost
	l.NewMargin = sub.MarginPercent
}

// Recompute derives the new price and the impact of the line.
func (l *Line) Recompute() {
	l.NewUnitPrice = boqdomain.UnitPrice(l.NewCost, l.NewMargin)
	l.NewTotal = l.NewQty * l.NewUnitPrice

	l.QtyVariation = l.NewQty - l.OriginalQty
	l.CostVariation = l.NewCost - l.OriginalCost
	l.VariationAmount = l.NewTotal - l.OriginalTotal
}

// Impact is the contribution of the line to the variation total. Added
// lines have no original amount, so their full new total counts.
func (l *Line) Impact() float64 {
	if l.ActionType == ActionEdit {
		return l.VariationAmount
	}
	return l.NewTotal
}

func (l *Line) Validate() error {
	if !l.ActionType.Valid() {
		return ErrInvalidActionType
	}
	switch l.ActionType {
	case ActionEdit:
		if l.TargetSubActivityID == nil {
			return ErrTargetSubActivityRequired
		}
	case ActionAdd:
		if l.TargetActivityID == nil {
			return ErrTargetActivityRequired
		}
	case ActionNewActivity:
		if strings.TrimSpace(l.ActivityName) == "" {
			return ErrActivityNameRequired
		}
	}
	if l.NewQty < 0 {
		return ErrNegativeQty
	}
	if l.NewCost < 0 {
		return ErrNegativeCost
	}
	if l.NewMargin < 0 || l.NewMargin > 100 {
		return ErrMarginRange
	}
	if !l.ActivityType.Valid() {
		return ErrInvalidActivityType
	}
	return nil
}

// Label names the line after its target. productName is used by add lines.
func (l *Line) Label(boq *boqdomain.Project, productName string) string {
	switch l.ActionType {
	case ActionEdit:
		if l.TargetSubActivityID != nil {
			if sub, _ := boq.FindSubActivity(*l.TargetSubActivityID); sub != nil {
				return "Edit: " + sub.Name
			}
		}
	case ActionAdd:
		if l.TargetActivityID != nil {
			if a := boq.FindActivity(*l.TargetActivityID); a != nil {
				if productName == "" {
					productName = "New Item"
				}
				return fmt.Sprintf("Add to %s: %s", a.Name, productName)
			}
		}
	case ActionNewActivity:
		name := strings.TrimSpace(l.ActivityName)
		if name == "" {
			name = "Unnamed"
		}
		return "New Activity: " + name
	}
	return "Variation Line"
}

// CheckTargets verifies that the line only points into boq.
func (l *Line) CheckTargets(boq *boqdomain.Project) error {
	if l.TargetSubActivityID != nil {
		if sub, _ := boq.FindSubActivity(*l.TargetSubActivityID); sub == nil {
			return apperror.Wrapf(ErrForeignTarget, "sub-activity %s", *l.TargetSubActivityID)
		}
	}
	if l.TargetActivityID != nil {
		if boq.FindActivity(*l.TargetActivityID) == nil {
			return apperror.Wrapf(ErrForeignTarget, "activity %s", *l.TargetActivityID)
		}
	}
	return nil
}

func (v *Variation) Recompute() {
	var total float64
	for _, l := range v.Lines {
		l.Recompute()
		total += l.Impact()
	}
	v.TotalVariationAmount = total
}

// Validate checks the lines and the approver requirement, which holds
// whenever the variation is submitted or approved.
func (v *Variation) Validate() error {
	if strings.TrimSpace(v.Description) == "" {
		return ErrDescriptionRequired
	}
	if (v.Status == StatusSubmitted || v.Status == StatusApproved) && len(v.Approvers) == 0 {
		return ErrApproverRequired
	}
	for _, l := range v.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (v *Variation) Reconcile() error {
	v.Recompute()
	return v.Validate()
}

// Editable reports whether lines may still change.
func (v *Variation) Editable() bool {
	return v.Status == StatusDraft || v.Status == StatusToSubmit
}

func (v *Variation) LinesOf(action ActionType) []*Line {
	var out []*Line
	for _, l := range v.Lines {
		if l.ActionType == action {
			out = append(out, l)
		}
	}
	return out
}

// Approve records actorID once and stamps the approval time.
func (v *Variation) Approve(actorID string, at time.Time) {
	if !slices.Contains(v.ApprovedBy, actorID) {
		v.ApprovedBy = append(v.ApprovedBy, actorID)
	}
	v.ApprovalDate = &at
	v.Status = StatusApproved
}
