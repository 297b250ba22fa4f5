package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/integration/domain"
	sequencedomain "github.com/smallbiznis/boqledger/internal/sequence/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Sequence sequencedomain.Service
}

// Local keeps orders, invoices, projects, analytic accounts and purchase
// orders in the BOQ database. It stands in for the ERP modules the BOQ engine
// integrates with. Writes join the transaction carried by the context, so a
// BOQ transition that rolls back also drops the documents it created.
type Local struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	sequence sequencedomain.Service
}

func New(p Params) *Local {
	return &Local{
		db:       p.DB,
		log:      p.Log.Named("integration.local"),
		genID:    p.GenID,
		clock:    p.Clock,
		sequence: p.Sequence,
	}
}

func (s *Local) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrPartnerRequired
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}

	var order *domain.Order
	err := txcontext.DB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		name, err := s.sequence.Next(ctx, tx, req.OrgID, config.SequenceSaleOrder)
		if err != nil {
			return err
		}
		order = &domain.Order{
			ID:        s.genID.Generate(),
			OrgID:     req.OrgID,
			Name:      name,
			PartnerID: req.PartnerID,
			Origin:    req.Origin,
			BoqID:     req.BoqID,
			Status:    domain.OrderStatusDraft,
		}
		for _, l := range req.Lines {
			line := domain.OrderLine{
				ID:                   s.genID.Generate(),
				OrderID:              order.ID,
				ProductID:            l.ProductID,
				Name:                 l.Name,
				Quantity:             l.Quantity,
				UnitPrice:            l.UnitPrice,
				Subtotal:             l.Quantity * l.UnitPrice,
				AnalyticDistribution: l.AnalyticDistribution,
			}
			order.AmountTotal += line.Subtotal
			order.Lines = append(order.Lines, line)
		}
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sale order created", zap.String("order", order.Name), zap.Int("lines", len(order.Lines)))
	return order, nil
}

func (s *Local) GetOrder(ctx context.Context, orgID, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := txcontext.DB(ctx, s.db).Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&order).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// ConfirmOrder is idempotent for orders that are already confirmed.
func (s *Local) ConfirmOrder(ctx context.Context, orgID, id snowflake.ID) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusConfirmed:
		return order, nil
	case domain.OrderStatusCancelled:
		return nil, apperror.Wrapf(domain.ErrInvalidState, "order %s is cancelled", order.Name)
	}

	order.Status = domain.OrderStatusConfirmed
	if err := txcontext.DB(ctx, s.db).Model(&domain.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{"status": order.Status, "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Local) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrPartnerRequired
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}
	moveType := req.MoveType
	if moveType == "" {
		moveType = domain.MoveTypeOutInvoice
	}
	invoiceDate := req.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = s.clock.Now()
	}

	var invoice *domain.Invoice
	err := txcontext.DB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		name, err := s.sequence.Next(ctx, tx, req.OrgID, config.SequenceInvoice)
		if err != nil {
			return err
		}
		invoice = &domain.Invoice{
			ID:          s.genID.Generate(),
			OrgID:       req.OrgID,
			Name:        name,
			PartnerID:   req.PartnerID,
			MoveType:    moveType,
			InvoiceDate: invoiceDate,
			Ref:         req.Ref,
			Origin:      req.Origin,
			Status:      domain.InvoiceStatusDraft,
		}
		for _, l := range req.Lines {
			line := domain.InvoiceLine{
				ID:                   s.genID.Generate(),
				InvoiceID:            invoice.ID,
				ProductID:            l.ProductID,
				Name:                 l.Name,
				Quantity:             l.Quantity,
				UnitPrice:            l.UnitPrice,
				Subtotal:             l.Quantity * l.UnitPrice,
				AnalyticDistribution: l.AnalyticDistribution,
			}
			invoice.AmountTotal += line.Subtotal
			invoice.Lines = append(invoice.Lines, line)
		}
		return tx.Create(invoice).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("invoice", invoice.Name),
		zap.String("ref", invoice.Ref),
		zap.Float64("amount_total", invoice.AmountTotal),
	)
	return invoice, nil
}

func (s *Local) GetInvoice(ctx context.Context, orgID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := txcontext.DB(ctx, s.db).Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&invoice).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &invoice, nil
}

func (s *Local) PostInvoice(ctx context.Context, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return s.moveInvoice(ctx, orgID, id, domain.InvoiceStatusDraft, domain.InvoiceStatusPosted)
}

func (s *Local) MarkInvoicePaid(ctx context.Context, orgID, id snowflake.ID) (*domain.Invoice, error) {
	return s.moveInvoice(ctx, orgID, id, domain.InvoiceStatusPosted, domain.InvoiceStatusPaid)
}

func (s *Local) moveInvoice(ctx context.Context, orgID, id snowflake.ID, from, to domain.InvoiceStatus) (*domain.Invoice, error) {
	invoice, err := s.GetInvoice(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == to {
		return invoice, nil
	}
	if invoice.Status != from {
		return nil, apperror.Wrapf(domain.ErrInvalidState, "invoice %s is %s", invoice.Name, invoice.Status)
	}

	invoice.Status = to
	if err := txcontext.DB(ctx, s.db).Model(&domain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{"status": to, "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Local) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.ExternalProject, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrPartnerRequired
	}
	project := &domain.ExternalProject{
		ID:                s.genID.Generate(),
		OrgID:             req.OrgID,
		Name:              strings.TrimSpace(req.Name),
		PartnerID:         req.PartnerID,
		Manager:           req.Manager,
		AnalyticAccountID: req.AnalyticAccountID,
		CreatedAt:         s.clock.Now(),
	}
	if err := txcontext.DB(ctx, s.db).Create(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Local) CreateAnalyticAccount(ctx context.Context, req domain.CreateAnalyticAccountRequest) (*domain.AnalyticAccount, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrPartnerRequired
	}
	name := strings.TrimSpace(req.Name)
	account := &domain.AnalyticAccount{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		Name:      name,
		Code:      slug.Make(name),
		PartnerID: req.PartnerID,
		CreatedAt: s.clock.Now(),
	}
	if err := txcontext.DB(ctx, s.db).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Local) CreatePurchaseOrder(ctx context.Context, req domain.CreatePurchaseOrderRequest) (*domain.PurchaseOrder, error) {
	if req.VendorID == 0 {
		return nil, domain.ErrPartnerRequired
	}
	if err := validateLines(req.Lines); err != nil {
		return nil, err
	}

	var po *domain.PurchaseOrder
	err := txcontext.DB(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		name, err := s.sequence.Next(ctx, tx, req.OrgID, config.SequencePurchaseOrder)
		if err != nil {
			return err
		}
		po = &domain.PurchaseOrder{
			ID:            s.genID.Generate(),
			OrgID:         req.OrgID,
			Name:          name,
			VendorID:      req.VendorID,
			Currency:      req.Currency,
			Origin:        req.Origin,
			FromBoq:       req.FromBoq,
			SourceBoqID:   req.SourceBoqID,
			ActivityIDs:   req.ActivityIDs,
			RetentionRule: req.RetentionRule,
			Status:        domain.PurchaseStatusDraft,
		}
		for _, l := range req.Lines {
			var productID snowflake.ID
			if l.ProductID != nil {
				productID = *l.ProductID
			}
			line := domain.PurchaseOrderLine{
				ID:                   s.genID.Generate(),
				PurchaseOrderID:      po.ID,
				ProductID:            productID,
				Name:                 l.Name,
				Quantity:             l.Quantity,
				UnitPrice:            l.UnitPrice,
				Subtotal:             l.Quantity * l.UnitPrice,
				AnalyticDistribution: l.AnalyticDistribution,
			}
			po.AmountTotal += line.Subtotal
			po.Lines = append(po.Lines, line)
		}
		return tx.Create(po).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase order created", zap.String("purchase_order", po.Name), zap.Bool("from_boq", po.FromBoq))
	return po, nil
}

func (s *Local) GetPurchaseOrder(ctx context.Context, orgID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := txcontext.DB(ctx, s.db).Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&po).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &po, nil
}

func (s *Local) ConfirmPurchaseOrder(ctx context.Context, orgID, id snowflake.ID) (*domain.PurchaseOrder, error) {
	po, err := s.GetPurchaseOrder(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	switch po.Status {
	case domain.PurchaseStatusConfirmed:
		return po, nil
	case domain.PurchaseStatusCancelled:
		return nil, apperror.Wrapf(domain.ErrInvalidState, "purchase order %s is cancelled", po.Name)
	}

	po.Status = domain.PurchaseStatusConfirmed
	if err := txcontext.DB(ctx, s.db).Model(&domain.PurchaseOrder{}).
		Where("id = ?", po.ID).
		Updates(map[string]any{"status": po.Status, "updated_at": s.clock.Now()}).Error; err != nil {
		return nil, err
	}
	return po, nil
}

func (s *Local) LinkSubcontractBoq(ctx context.Context, orgID, poID, boqID snowflake.ID) error {
	res := txcontext.DB(ctx, s.db).Model(&domain.PurchaseOrder{}).
		Where("org_id = ? AND id = ?", orgID, poID).
		Updates(map[string]any{"subcontract_boq_id": boqID, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func validateLines(lines []domain.LineRequest) error {
	if len(lines) == 0 {
		return domain.ErrNoLines
	}
	for _, l := range lines {
		if strings.TrimSpace(l.Name) == "" {
			return domain.ErrLineName
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
