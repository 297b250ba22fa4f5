package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	sequencedomain "github.com/smallbiznis/boqledger/internal/sequence/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
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
	Repo      domain.Repository
	Locker    lock.Locker
	Settings  *config.SettingsHolder
	Sequence  sequencedomain.Service
	Products  productdomain.Service
	Partners  partnerdomain.Service
	Orders    integrationdomain.OrderService
	Projects  integrationdomain.ProjectService
	Analytics integrationdomain.AnalyticService
	Publisher events.Publisher
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locker    lock.Locker
	settings  *config.SettingsHolder
	sequence  sequencedomain.Service
	products  productdomain.Service
	partners  partnerdomain.Service
	orders    integrationdomain.OrderService
	projects  integrationdomain.ProjectService
	analytics integrationdomain.AnalyticService
	publisher events.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("boq.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locker:    p.Locker,
		settings:  p.Settings,
		sequence:  p.Sequence,
		products:  p.Products,
		partners:  p.Partners,
		orders:    p.Orders,
		projects:  p.Projects,
		analytics: p.Analytics,
		publisher: p.Publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	boqType := req.Type
	if boqType == "" {
		boqType = domain.TypeClient
	}
	if boqType != domain.TypeClient && boqType != domain.TypeSubcontract {
		return nil, s.reject(ctx, "boq.create", domain.ErrInvalidType)
	}
	if err := s.ensureCustomer(ctx, req.CustomerID); err != nil {
		return nil, s.reject(ctx, "boq.create", err)
	}

	settings := s.settings.Get()
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = settings.DefaultCurrency
	}
	retentionRule := strings.TrimSpace(req.RetentionRule)
	if retentionRule == "" {
		retentionRule = settings.DefaultRetentionRule
	}

	now := s.clock.Now()
	project := &domain.Project{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Name:           strings.TrimSpace(req.Name),
		Type:           boqType,
		Status:         domain.StatusDraft,
		CustomerID:     req.CustomerID,
		Currency:       currency,
		ProjectManager: strings.TrimSpace(req.ProjectManager),
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		MarginPercent:  domain.Round(req.MarginPercent, domain.PercentDigits),
		RetentionRule:  retentionRule,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.RetentionPercent != nil {
		rate := domain.Round(*req.RetentionPercent, domain.PercentDigits)
		project.RetentionPercent = &rate
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if project.Name == "" {
			code := config.SequenceBoqProject
			if boqType == domain.TypeSubcontract {
				code = config.SequenceBoqSubcontract
			}
			name, err := s.sequence.Next(ctx, tx, orgID, code)
			if err != nil {
				return err
			}
			project.Name = name
		}
		if err := project.Reconcile(); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, project)
	})
	if err != nil {
		return nil, s.reject(ctx, "boq.create", err)
	}

	s.audit(ctx, orgID, "boq.created", project, map[string]any{
		"name":     project.Name,
		"boq_type": string(project.Type),
	})
	return project, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.LoadAggregate(ctx, s.db, orgID, id, false)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 250 {
		pageSize = 250
	}

	filter := domain.ListFilter{
		OrgID:  orgID,
		Status: req.Status,
		Type:   req.Type,
		Name:   strings.TrimSpace(req.Name),
		Limit:  pageSize,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &cursorID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(p *domain.Project) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: p.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	projects := make([]domain.Project, 0, len(items))
	for _, item := range items {
		if item != nil {
			projects = append(projects, *item)
		}
	}

	resp := domain.ListResponse{Projects: projects}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Project, error) {
	if req.CustomerID != nil {
		if err := s.ensureCustomer(ctx, *req.CustomerID); err != nil {
			return nil, s.reject(ctx, "boq.update", err)
		}
	}

	project, err := s.mutate(ctx, "boq.update", id, func(ctx context.Context, p *domain.Project) error {
		if p.Closed() {
			return domain.ErrClosed
		}
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.CustomerID != nil {
			if !p.Editable() && *req.CustomerID != p.CustomerID {
				return apperror.Wrapf(domain.ErrStructureLocked, "customer of %s", p.Name)
			}
			p.CustomerID = *req.CustomerID
		}
		if req.Currency != nil {
			if !p.Editable() {
				return apperror.Wrapf(domain.ErrStructureLocked, "currency of %s", p.Name)
			}
			p.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
		}
		if req.ProjectManager != nil {
			p.ProjectManager = strings.TrimSpace(*req.ProjectManager)
		}
		if req.StartDate != nil {
			p.StartDate = req.StartDate
		}
		if req.EndDate != nil {
			p.EndDate = req.EndDate
		}
		if req.MarginPercent != nil {
			p.MarginPercent = domain.Round(*req.MarginPercent, domain.PercentDigits)
		}
		if req.RetentionRule != nil {
			p.RetentionRule = strings.TrimSpace(*req.RetentionRule)
		}
		if req.RetentionPercent != nil {
			rate := domain.Round(*req.RetentionPercent, domain.PercentDigits)
			p.RetentionPercent = &rate
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.updated", project, nil)
	return project, nil
}

func (s *Service) ensureCustomer(ctx context.Context, customerID snowflake.ID) error {
	if customerID == 0 {
		return domain.ErrCustomerRequired
	}
	if _, err := s.partners.GetByID(ctx, customerID); err != nil {
		if errors.Is(err, partnerdomain.ErrNotFound) {
			return apperror.Wrapf(domain.ErrCustomerRequired, "customer %s does not exist", customerID)
		}
		return err
	}
	return nil
}

// mutate serializes a write on one BOQ: lock, load, apply, reconcile, save.
// The aggregate is loaded with a row lock inside the write transaction and
// apply receives a context carrying that transaction. beforeSave runs ahead
// of the aggregate save and is where row deletions go.
func (s *Service) mutate(
	ctx context.Context,
	op string,
	boqID snowflake.ID,
	apply func(ctx context.Context, p *domain.Project) error,
	beforeSave func(tx *gorm.DB) error,
) (*domain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(boqID))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	var project *domain.Project
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		loaded, err := s.repo.LoadAggregate(txCtx, tx, orgID, boqID, true)
		if err != nil {
			return err
		}
		if err := apply(txCtx, loaded); err != nil {
			return s.reject(ctx, op, err)
		}
		if err := loaded.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		loaded.UpdatedAt = s.clock.Now()

		if beforeSave != nil {
			if err := beforeSave(tx); err != nil {
				return err
			}
		}
		if err := s.repo.SaveAggregate(txCtx, tx, loaded); err != nil {
			return err
		}
		project = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// reject records business-rule failures and passes err through.
func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, p *domain.Project, metadata map[string]any) {
	if s.auditSvc == nil || p == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     action,
		TargetType: auditdomain.TargetBoq,
		TargetID:   p.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to audit boq change", zap.String("action", action), zap.Error(err))
	}
}
