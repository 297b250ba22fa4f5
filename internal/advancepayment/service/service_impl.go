package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	BoqRepo   boqdomain.Repository
	Locker    lock.Locker
	Invoices  integrationdomain.InvoiceService
	Publisher events.Publisher
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	boqRepo   boqdomain.Repository
	locker    lock.Locker
	invoices  integrationdomain.InvoiceService
	publisher events.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("advancepayment.service"),
		clock:     p.Clock,
		boqRepo:   p.BoqRepo,
		locker:    p.Locker,
		invoices:  p.Invoices,
		publisher: p.Publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Preview(ctx context.Context, req domain.Request) (*domain.Wizard, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	boq, err := s.boqRepo.LoadAggregate(ctx, s.db, orgID, req.BoqID, false)
	if err != nil {
		return nil, err
	}
	boq.Recompute()

	w, err := s.build(boq, req)
	if err != nil {
		return nil, s.reject(ctx, "advance_payment.preview", err)
	}
	return w, nil
}

// Confirm invoices the advance and books it on the BOQ. The invoice is only
// requested once the wizard validated and is created in the same
// transaction as the BOQ update.
func (s *Service) Confirm(ctx context.Context, req domain.Request) (*domain.Result, error) {
	const op = "advance_payment.confirm"

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(req.BoqID))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	var (
		boq     *boqdomain.Project
		w       *domain.Wizard
		invoice *integrationdomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		boq, err = s.boqRepo.LoadAggregate(txCtx, tx, orgID, req.BoqID, true)
		if err != nil {
			return err
		}
		if boq.Closed() {
			return s.reject(ctx, op, apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name))
		}
		if err := boq.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}

		w, err = s.build(boq, req)
		if err != nil {
			return s.reject(ctx, op, err)
		}
		if err := w.Validate(); err != nil {
			return s.reject(ctx, op, err)
		}

		invoice, err = s.invoices.CreateInvoice(txCtx, integrationdomain.CreateInvoiceRequest{
			OrgID:       orgID,
			PartnerID:   boq.CustomerID,
			MoveType:    integrationdomain.MoveTypeOutInvoice,
			InvoiceDate: w.PaymentDate,
			Ref:         w.InvoiceRef(),
			Origin:      boq.Name,
			Lines: []integrationdomain.LineRequest{{
				Name:                 w.InvoiceLineName(),
				Quantity:             1,
				UnitPrice:            w.Amount,
				AnalyticDistribution: integrationdomain.Distribution(boq.AnalyticAccountID),
			}},
		})
		if err != nil {
			return err
		}

		w.Apply(boq)
		if err := boq.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		boq.UpdatedAt = s.clock.Now()

		if err := s.boqRepo.SaveAggregate(txCtx, tx, boq); err != nil {
			return err
		}
		return s.publisher.Publish(txCtx, tx, orgID, events.TopicAdvanceInvoiced, map[string]any{
			"boq_id":     boq.ID.String(),
			"boq_name":   boq.Name,
			"invoice_id": invoice.ID.String(),
			"line_type":  string(w.LineType),
			"amount":     w.Amount,
			"percentage": w.Percentage,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("advance payment invoiced",
		zap.String("boq_id", boq.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("line_type", string(w.LineType)),
		zap.Float64("amount", w.Amount),
	)
	s.metrics.RecordAdvanceInvoiced(ctx, orgID.String(), string(w.LineType), w.Amount)
	s.audit(ctx, orgID, boq, map[string]any{
		"invoice_id": invoice.ID.String(),
		"line_type":  string(w.LineType),
		"method":     string(w.Method),
		"amount":     w.Amount,
		"percentage": w.Percentage,
	})
	return &domain.Result{Wizard: w, Invoice: invoice, Boq: boq}, nil
}

func (s *Service) build(boq *boqdomain.Project, req domain.Request) (*domain.Wizard, error) {
	date := s.clock.Now()
	if req.PaymentDate != nil {
		date = *req.PaymentDate
	}
	w := domain.NewWizard(boq, req.LineType, req.Method, date)
	if req.SubActivityIDs != nil {
		if err := w.Select(req.SubActivityIDs); err != nil {
			return nil, err
		}
	}
	w.Percentage = boqdomain.Round(req.Percentage, boqdomain.PercentDigits)
	w.Amount = boqdomain.Round(req.Amount, boqdomain.QtyDigits)
	if err := w.Check(); err != nil {
		return nil, err
	}
	w.Derive()
	return w, nil
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, boq *boqdomain.Project, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     "boq.advance_payment.invoiced",
		TargetType: auditdomain.TargetBoq,
		TargetID:   boq.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to audit advance payment", zap.Error(err))
	}
}
