package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/internal/subcontract/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	BoqRepo   boqdomain.Repository
	Locker    lock.Locker
	Partners  partnerdomain.Service
	Purchases integrationdomain.PurchaseService
	Publisher events.Publisher
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	boqRepo   boqdomain.Repository
	locker    lock.Locker
	partners  partnerdomain.Service
	purchases integrationdomain.PurchaseService
	publisher events.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subcontract.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		boqRepo:   p.BoqRepo,
		locker:    p.Locker,
		partners:  p.Partners,
		purchases: p.Purchases,
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
	w, err := domain.NewWizard(boq, req)
	if err != nil {
		return nil, s.reject(ctx, "subcontract.preview", err)
	}
	if err := w.Check(); err != nil {
		return nil, s.reject(ctx, "subcontract.preview", err)
	}
	return w, nil
}

// CreatePurchaseOrder raises a draft purchase order for the selected
// activities. The BOQ itself is not modified.
func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.Request) (*integrationdomain.PurchaseOrder, error) {
	const op = "subcontract.create"

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	boq, err := s.boqRepo.LoadAggregate(ctx, s.db, orgID, req.BoqID, false)
	if err != nil {
		return nil, err
	}
	if boq.Closed() {
		return nil, s.reject(ctx, op, apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name))
	}

	w, err := domain.NewWizard(boq, req)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if err := w.Validate(); err != nil {
		return nil, s.reject(ctx, op, err)
	}
	if err := s.ensureVendor(ctx, w.VendorID); err != nil {
		return nil, s.reject(ctx, op, err)
	}

	lines, activityIDs := w.PurchaseLines(boq)
	if len(lines) == 0 {
		return nil, s.reject(ctx, op, domain.ErrEmptySelection)
	}
	sourceID := boq.ID
	po, err := s.purchases.CreatePurchaseOrder(ctx, integrationdomain.CreatePurchaseOrderRequest{
		OrgID:         orgID,
		VendorID:      w.VendorID,
		Currency:      boq.Currency,
		Origin:        boq.Name,
		FromBoq:       true,
		SourceBoqID:   &sourceID,
		ActivityIDs:   activityIDs,
		RetentionRule: boq.RetentionRule,
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subcontract purchase order created",
		zap.String("boq_id", boq.ID.String()),
		zap.String("purchase_order", po.Name),
		zap.Int("lines", len(po.Lines)),
	)
	s.audit(ctx, orgID, "boq.subcontract.ordered", boq.ID, map[string]any{
		"purchase_order_id": po.ID.String(),
		"vendor_id":         w.VendorID.String(),
		"amount_total":      po.AmountTotal,
	})
	return po, nil
}

// ConfirmPurchaseOrder confirms the purchase order and, for orders raised
// from a BOQ, builds the subcontract BOQ mirroring the ordered activities.
// Confirmation, the mirror and the link between them commit together.
func (s *Service) ConfirmPurchaseOrder(ctx context.Context, poID snowflake.ID) (*integrationdomain.PurchaseOrder, *boqdomain.Project, error) {
	const op = "subcontract.confirm"

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrInvalidOrganization
	}

	current, err := s.purchases.GetPurchaseOrder(ctx, orgID, poID)
	if err != nil {
		return nil, nil, err
	}
	if !current.FromBoq || current.SourceBoqID == nil {
		po, err := s.purchases.ConfirmPurchaseOrder(ctx, orgID, poID)
		return po, nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(*current.SourceBoqID))
	if err != nil {
		return nil, nil, s.reject(ctx, op, err)
	}
	defer release()

	var (
		po      *integrationdomain.PurchaseOrder
		source  *boqdomain.Project
		mirror  *boqdomain.Project
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		po, err = s.purchases.ConfirmPurchaseOrder(txCtx, orgID, poID)
		if err != nil {
			return err
		}

		// A previous confirmation may have built the BOQ without linking it.
		existing, err := s.boqRepo.FindByPurchaseOrder(txCtx, tx, orgID, po.ID)
		switch {
		case err == nil:
			if po.SubcontractBoqID == nil {
				if err := s.purchases.LinkSubcontractBoq(txCtx, orgID, po.ID, existing.ID); err != nil {
					return err
				}
				po.SubcontractBoqID = &existing.ID
			}
			mirror, err = s.boqRepo.LoadAggregate(txCtx, tx, orgID, existing.ID, false)
			return err
		case !errors.Is(err, boqdomain.ErrNotFound):
			return err
		}

		source, err = s.boqRepo.LoadAggregate(txCtx, tx, orgID, *po.SourceBoqID, true)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		mirror = domain.Mirror(source, po, s.genID.Generate)
		mirror.CreatedAt, mirror.UpdatedAt = now, now
		for _, a := range mirror.Activities {
			a.CreatedAt, a.UpdatedAt = now, now
			for _, sub := range a.SubActivities {
				sub.CreatedAt, sub.UpdatedAt = now, now
				sub.Normalize()
			}
		}
		if err := mirror.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}

		if err := s.boqRepo.Insert(txCtx, tx, mirror); err != nil {
			return err
		}
		if err := s.boqRepo.SaveAggregate(txCtx, tx, mirror); err != nil {
			return err
		}
		if err := s.purchases.LinkSubcontractBoq(txCtx, orgID, po.ID, mirror.ID); err != nil {
			return err
		}
		po.SubcontractBoqID = &mirror.ID
		created = true
		return s.publisher.Publish(txCtx, tx, orgID, events.TopicSubcontractCreated, map[string]any{
			"boq_id":            mirror.ID.String(),
			"boq_name":          mirror.Name,
			"source_boq_id":     source.ID.String(),
			"purchase_order_id": po.ID.String(),
			"message":           "Subcontract BOQ " + mirror.Name + " created from " + source.Name + ".",
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if !created {
		return po, mirror, nil
	}

	s.log.Info("subcontract boq created",
		zap.String("boq_id", mirror.ID.String()),
		zap.String("name", mirror.Name),
		zap.String("source_boq_id", source.ID.String()),
	)
	s.metrics.RecordTransition(ctx, "boq", string(mirror.Status))
	s.audit(ctx, orgID, "boq.subcontract.created", mirror.ID, map[string]any{
		"source_boq_id":     source.ID.String(),
		"purchase_order_id": po.ID.String(),
	})
	return po, mirror, nil
}

func (s *Service) ensureVendor(ctx context.Context, vendorID snowflake.ID) error {
	partner, err := s.partners.GetByID(ctx, vendorID)
	if err != nil {
		if errors.Is(err, partnerdomain.ErrNotFound) {
			return apperror.Wrapf(domain.ErrVendorRequired, "vendor %s does not exist", vendorID)
		}
		return err
	}
	if !partner.IsVendor {
		return apperror.Wrapf(domain.ErrVendorRequired, "%s is not a vendor", partner.Name)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, boqID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     action,
		TargetType: auditdomain.TargetBoq,
		TargetID:   boqID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to audit subcontract change", zap.String("action", action), zap.Error(err))
	}
}
