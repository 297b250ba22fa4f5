package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/certificate/domain"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/internal/providers/pdf"
	"go.uber.org/zap"
)

func (s *Service) RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	boq, err := s.boqRepo.LoadAggregate(ctx, s.db, orgID, c.BoqID, false)
	if err != nil {
		return nil, err
	}

	doc := pdf.CertificateDocument{
		Number:            c.Name,
		Date:              c.CertificateDate.Format("2006-01-02"),
		Status:            string(c.Status),
		BoqName:           boq.Name,
		Currency:          boq.Currency,
		AmountCompleted:   c.AmountCompleted,
		AmountApproved:    c.AmountApproved,
		RetentionLabel:    boq.RetentionRule,
		AmountRetention:   c.AmountRetention,
		RecoveryOriginal:  c.AmountAdvanceRecoveryOriginal,
		RecoveryVariation: c.AmountAdvanceRecoveryVariation,
		AmountInvoice:     c.AmountInvoice,
	}
	if customer, err := s.partners.GetByID(ctx, boq.CustomerID); err == nil {
		doc.CustomerName = customer.Name
	} else {
		s.log.Warn("certificate customer lookup failed", zap.String("boq_id", boq.ID.String()), zap.Error(err))
	}
	if c.InvoiceID != nil {
		if invoice, err := s.invoices.GetInvoice(ctx, orgID, *c.InvoiceID); err == nil {
			doc.InvoiceRef = invoice.Name
		}
	}

	for _, l := range c.Lines {
		description := l.SubActivityID.String()
		if sub, _ := boq.FindSubActivity(l.SubActivityID); sub != nil {
			description = sub.Name
		}
		doc.Rows = append(doc.Rows, pdf.CertificateRow{
			Description:       description,
			CompletionPercent: l.CompletionPercent,
			ApprovedPercent:   l.ApprovedPercent,
			QtyApproved:       l.QtyApproved,
			UnitPrice:         l.UnitPrice,
			AmountApproved:    l.AmountApproved,
		})
	}

	return s.pdf.RenderCertificate(ctx, doc)
}
