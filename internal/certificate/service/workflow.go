package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/certificate/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Submit freezes the certificate amounts, raises the customer invoice and
// books the approved quantities into the BOQ ledger. A commit that would
// leave any sub-activity over-billed or with negative current quantity
// rejects the whole submission.
func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	c, err := s.transition(ctx, "certificate.submit", id, change{
		saveBoq: true,
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusDraft {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot submit a %s certificate", c.Status)
			}
			if boq.Closed() {
				return apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name)
			}
			if len(c.Lines) == 0 {
				return domain.ErrNoLines
			}
			if err := c.Reconcile(boq); err != nil {
				return err
			}
			if c.AmountApproved <= 0 {
				return domain.ErrNothingApproved
			}
			if err := boq.Reconcile(); err != nil {
				return err
			}

			lines := c.InvoiceLines(boq)
			c.Commit(boq)
			if err := boq.Reconcile(); err != nil {
				return err
			}

			invoice, err := s.invoices.CreateInvoice(ctx, integrationdomain.CreateInvoiceRequest{
				OrgID:       c.OrgID,
				PartnerID:   boq.CustomerID,
				MoveType:    integrationdomain.MoveTypeOutInvoice,
				InvoiceDate: c.CertificateDate,
				Ref:         c.Name,
				Origin:      boq.Name,
				Lines:       lines,
			})
			if err != nil {
				return err
			}
			c.InvoiceID = &invoice.ID
			c.Status = domain.StatusSubmitted
			return nil
		},
		publish: func(ctx context.Context, tx *gorm.DB, c *domain.Certificate, boq *boqdomain.Project) error {
			return s.publisher.Publish(ctx, tx, c.OrgID, events.TopicCertificateSubmitted, map[string]any{
				"certificate_id": c.ID.String(),
				"name":           c.Name,
				"boq_id":         boq.ID.String(),
				"boq_name":       boq.Name,
				"amount_invoice": c.AmountInvoice,
				"invoice_id":     c.InvoiceID.String(),
				"message":        fmt.Sprintf("Payment certificate %s for BOQ %s has been submitted.", c.Name, boq.Name),
				"subject":        "Payment certificate submitted: " + c.Name,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCertificateSubmitted(ctx, c.OrgID.String(), c.AmountInvoice)
	return c, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	return s.transition(ctx, "certificate.approve", id, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusSubmitted {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot approve a %s certificate", c.Status)
			}
			c.Status = domain.StatusApproved
			return nil
		},
	})
}

// MarkInvoiced requires the certificate invoice to be posted.
func (s *Service) MarkInvoiced(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	return s.transition(ctx, "certificate.mark_invoiced", id, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusApproved {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot invoice a %s certificate", c.Status)
			}
			invoice, err := s.invoiceOf(ctx, c)
			if err != nil {
				return err
			}
			if !invoice.Status.Posted() {
				return apperror.Wrapf(domain.ErrInvoiceNotPosted, "invoice %s is %s", invoice.Name, invoice.Status)
			}
			c.Status = domain.StatusInvoiced
			return nil
		},
	})
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	return s.transition(ctx, "certificate.mark_paid", id, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusInvoiced {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot mark a %s certificate as paid", c.Status)
			}
			invoice, err := s.invoiceOf(ctx, c)
			if err != nil {
				return err
			}
			if invoice.Status != integrationdomain.InvoiceStatusPaid {
				return apperror.Wrapf(domain.ErrInvoiceNotPaid, "invoice %s is %s", invoice.Name, invoice.Status)
			}
			c.Status = domain.StatusPaid
			return nil
		},
	})
}

func (s *Service) ViewInvoice(ctx context.Context, id snowflake.ID) (*integrationdomain.Invoice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	c, err := s.repo.Load(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.invoiceOf(ctx, c)
}

func (s *Service) invoiceOf(ctx context.Context, c *domain.Certificate) (*integrationdomain.Invoice, error) {
	if c.InvoiceID == nil {
		return nil, domain.ErrNoInvoice
	}
	invoice, err := s.invoices.GetInvoice(ctx, c.OrgID, *c.InvoiceID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Wrapf(domain.ErrNoInvoice, "invoice %s", c.InvoiceID)
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Service) transition(ctx context.Context, op string, id snowflake.ID, ch change) (*domain.Certificate, error) {
	var from domain.Status
	apply := ch.apply
	ch.apply = func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
		from = c.Status
		return apply(ctx, c, boq)
	}

	c, _, err := s.updateWithBoq(ctx, op, id, ch)
	if err != nil {
		return nil, err
	}

	s.log.Info("certificate transition",
		zap.String("certificate_id", c.ID.String()),
		zap.String("boq_id", c.BoqID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(c.Status)),
	)
	s.metrics.RecordTransition(ctx, "certificate", string(c.Status))
	s.audit(ctx, c.OrgID, "certificate."+string(c.Status), c, map[string]any{
		"from":           string(from),
		"to":             string(c.Status),
		"amount_invoice": c.AmountInvoice,
	})
	return c, nil
}
