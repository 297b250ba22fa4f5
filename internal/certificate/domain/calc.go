package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
)

const (
	LineAdvanceRecoveryOriginal  = "Advance Payment Recovery (Original)"
	LineAdvanceRecoveryVariation = "Advance Payment Recovery (Variation)"
)

// Validate enforces 0 <= approved <= completion <= 100.
func (l *Line) Validate() error {
	if l.CompletionPercent < 0 || l.CompletionPercent > 100 {
		return ErrCompletionRange
	}
	if l.ApprovedPercent < 0 || l.ApprovedPercent > 100 {
		return ErrApprovedRange
	}
	if l.ApprovedPercent > l.CompletionPercent {
		return apperror.Wrapf(ErrApprovedExceeds, "approved %.2f%% > completion %.2f%%", l.ApprovedPercent, l.CompletionPercent)
	}
	return nil
}

// Derive prices the line against the current state of its sub-activity.
func (l *Line) Derive(sub *boqdomain.SubActivity) {
	l.MasterQty = sub.MasterQty
	l.UnitPrice = sub.UnitPrice
	if sub.MasterQty != 0 {
		l.QtyCompleted = l.CompletionPercent / 100 * sub.MasterQty
		l.QtyApproved = l.ApprovedPercent / 100 * sub.MasterQty
	} else {
		l.QtyCompleted = 0
		l.QtyApproved = 0
	}
	l.AmountCompleted = l.QtyCompleted * sub.UnitPrice
	l.AmountApproved = l.QtyApproved * sub.UnitPrice
}

func (c *Certificate) Validate() error {
	seen := make(map[snowflake.ID]struct{}, len(c.Lines))
	for _, l := range c.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
		if _, dup := seen[l.SubActivityID]; dup {
			return apperror.Wrapf(ErrDuplicateLine, "sub-activity %s", l.SubActivityID)
		}
		seen[l.SubActivityID] = struct{}{}
	}
	return nil
}

// Recompute derives line and certificate amounts. Recovery is proportional
// to the certificate's share of the contract total.
func (c *Certificate) Recompute(boq *boqdomain.Project) error {
	var completed, approved float64
	for _, l := range c.Lines {
		sub, _ := boq.FindSubActivity(l.SubActivityID)
		if sub == nil {
			return apperror.Wrapf(ErrForeignSubActivity, "sub-activity %s", l.SubActivityID)
		}
		l.Derive(sub)
		completed += l.AmountCompleted
		approved += l.AmountApproved
	}

	c.AmountCompleted = completed
	c.AmountApproved = approved
	c.AmountRetention = approved * boq.RetentionRate() / 100
	if approved != 0 && boq.Total != 0 {
		ratio := approved / boq.Total
		c.AmountAdvanceRecoveryOriginal = boq.OutstandingAdvanceOriginal() * ratio
		c.AmountAdvanceRecoveryVariation = boq.OutstandingAdvanceVariation() * ratio
	} else {
		c.AmountAdvanceRecoveryOriginal = 0
		c.AmountAdvanceRecoveryVariation = 0
	}
	c.AmountInvoice = approved - c.AmountRetention - c.AmountAdvanceRecoveryOriginal - c.AmountAdvanceRecoveryVariation
	return nil
}

// Reconcile recomputes against boq and checks the line constraints.
func (c *Certificate) Reconcile(boq *boqdomain.Project) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.Recompute(boq)
}

// Commit books the approved quantities into the ledger and accumulates the
// recovered advance on the BOQ. The caller reconciles boq afterwards.
func (c *Certificate) Commit(boq *boqdomain.Project) {
	for _, l := range c.Lines {
		if l.ApprovedPercent <= 0 {
			continue
		}
		sub, _ := boq.FindSubActivity(l.SubActivityID)
		if sub == nil {
			continue
		}
		sub.PreviousQty += l.QtyApproved
		sub.CurrentQty -= l.QtyApproved
		sub.Normalize()
	}
	boq.AdvanceOriginalRecovered += c.AmountAdvanceRecoveryOriginal
	boq.AdvanceVariationRecovered += c.AmountAdvanceRecoveryVariation
}

// InvoiceLines builds the invoice request: one line per approved
// sub-activity followed by the negative recovery and retention lines.
func (c *Certificate) InvoiceLines(boq *boqdomain.Project) []integrationdomain.LineRequest {
	distribution := integrationdomain.Distribution(boq.AnalyticAccountID)

	var lines []integrationdomain.LineRequest
	for _, l := range c.Lines {
		if l.AmountApproved <= 0 {
			continue
		}
		sub, _ := boq.FindSubActivity(l.SubActivityID)
		if sub == nil {
			continue
		}
		productID := sub.ProductID
		lines = append(lines, integrationdomain.LineRequest{
			ProductID:            &productID,
			Name:                 fmt.Sprintf("%s - %.1f%% Completed", sub.Name, l.ApprovedPercent),
			Quantity:             l.QtyApproved,
			UnitPrice:            sub.UnitPrice,
			AnalyticDistribution: distribution,
		})
	}

	deduct := func(name string, amount float64) {
		if amount > 0 {
			lines = append(lines, integrationdomain.LineRequest{
				Name:                 name,
				Quantity:             -1,
				UnitPrice:            amount,
				AnalyticDistribution: distribution,
			})
		}
	}
	deduct(LineAdvanceRecoveryOriginal, c.AmountAdvanceRecoveryOriginal)
	deduct(LineAdvanceRecoveryVariation, c.AmountAdvanceRecoveryVariation)
	deduct(fmt.Sprintf("Retention (%s)", boq.RetentionRule), c.AmountRetention)
	return lines
}
