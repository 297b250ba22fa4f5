package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
)

// NewWizard lists every sub-activity of boq at its cumulative amount and
// selects the lines matching lineType.
func NewWizard(boq *boqdomain.Project, lineType LineType, method Method, date time.Time) *Wizard {
	if lineType == "" {
		lineType = LineTypeOriginal
	}
	if method == "" {
		method = MethodPercentage
	}
	w := &Wizard{
		BoqID:       boq.ID,
		BoqName:     boq.Name,
		LineType:    lineType,
		Method:      method,
		PaymentDate: date,
	}
	for _, a := range boq.Activities {
		for _, sub := range a.SubActivities {
			w.Lines = append(w.Lines, Line{
				SubActivityID: sub.ID,
				ActivityName:  a.Name,
				Name:          sub.Name,
				Amount:        sub.TotalCumulative,
				IsVariation:   sub.IsVariation,
				Selected:      sub.IsVariation == (lineType == LineTypeVariation),
			})
		}
	}
	return w
}

// Select replaces the default selection with ids.
func (w *Wizard) Select(ids []snowflake.ID) error {
	chosen := make(map[snowflake.ID]bool, len(ids))
	for _, id := range ids {
		chosen[id] = true
	}
	for i := range w.Lines {
		w.Lines[i].Selected = chosen[w.Lines[i].SubActivityID]
		delete(chosen, w.Lines[i].SubActivityID)
	}
	for id := range chosen {
		return apperror.Wrapf(ErrUnknownSelection, "sub-activity %s", id)
	}
	return nil
}

// Derive totals the selected lines of the wizard's type and fills the
// dependent side of the amount/percentage pair.
func (w *Wizard) Derive() {
	var total float64
	for _, l := range w.Lines {
		if l.Selected && l.IsVariation == (w.LineType == LineTypeVariation) {
			total += l.Amount
		}
	}
	w.LinesTotal = total
	if total == 0 {
		return
	}
	switch w.Method {
	case MethodPercentage:
		if w.Percentage != 0 {
			w.Amount = boqdomain.Round(total*w.Percentage/100, boqdomain.QtyDigits)
		}
	case MethodAmount:
		if w.Amount != 0 {
			w.Percentage = boqdomain.Round(w.Amount/total*100, boqdomain.PercentDigits)
		}
	}
}

// Check validates the inputs that can be wrong while the wizard is still
// being filled in.
func (w *Wizard) Check() error {
	if !w.LineType.Valid() {
		return ErrInvalidLineType
	}
	if !w.Method.Valid() {
		return ErrInvalidMethod
	}
	if w.Percentage < 0 || w.Percentage > 100 {
		return ErrPercentageRange
	}
	if w.Amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Validate is the full confirmation check.
func (w *Wizard) Validate() error {
	if err := w.Check(); err != nil {
		return err
	}
	selected := false
	for _, l := range w.Lines {
		selected = selected || l.Selected
	}
	if !selected {
		return ErrNoLineSelected
	}
	if w.Amount == 0 {
		return ErrZeroAmount
	}
	if w.Method == MethodPercentage && w.Percentage <= 0 {
		return ErrPercentageRange
	}
	return nil
}

func (w *Wizard) InvoiceLineName() string {
	if w.Method == MethodPercentage {
		return fmt.Sprintf("Advance Payment (%s) - %s%%", w.LineType.Title(), boqdomain.FormatPercent(w.Percentage))
	}
	return fmt.Sprintf("Advance Payment (%s)", w.LineType.Title())
}

func (w *Wizard) InvoiceRef() string {
	return "Advance Payment - " + w.BoqName
}

// Apply adds the confirmed amount to the BOQ advance of the wizard's type
// and overwrites its percentage.
func (w *Wizard) Apply(boq *boqdomain.Project) {
	if w.LineType == LineTypeVariation {
		boq.AdvanceVariationAmount = boqdomain.Round(boq.AdvanceVariationAmount+w.Amount, boqdomain.QtyDigits)
		boq.AdvanceVariationPercent = w.Percentage
		return
	}
	boq.AdvanceOriginalAmount = boqdomain.Round(boq.AdvanceOriginalAmount+w.Amount, boqdomain.QtyDigits)
	boq.AdvanceOriginalPercent = w.Percentage
}
