package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/pkg/db/option"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"github.com/smallbiznis/boqledger/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository[domain.Partner]

	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     repository.Repository[domain.Partner]
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("partner.service"),
		genID: p.GenID,
		repo:  p.Repo,

		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePartnerRequest) (domain.Partner, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Partner{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Partner{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Partner{}, domain.ErrInvalidEmail
	}
	if !req.IsCustomer && !req.IsVendor {
		return domain.Partner{}, domain.ErrInvalidRole
	}

	now := time.Now().UTC()
	partner := domain.Partner{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Name:       name,
		Email:      email,
		IsCustomer: req.IsCustomer,
		IsVendor:   req.IsVendor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, &partner); err != nil {
		return domain.Partner{}, err
	}

	if s.auditSvc != nil {
		entry := auditdomain.Entry{
			OrgID:      orgID,
			Action:     "partner.created",
			TargetType: auditdomain.TargetPartner,
			TargetID:   partner.ID.String(),
			Metadata: map[string]any{
				"name":        partner.Name,
				"email":       partner.Email,
				"is_customer": partner.IsCustomer,
				"is_vendor":   partner.IsVendor,
			},
		}
		if err := s.auditSvc.Record(ctx, entry); err != nil {
			s.log.Warn("failed to audit partner", zap.Error(err))
		}
	}
	return partner, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Partner, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Partner{}, domain.ErrInvalidOrganization
	}

	item, err := s.repo.FindOne(ctx, &domain.Partner{ID: id, OrgID: orgID})
	if err != nil {
		return domain.Partner{}, err
	}
	if item == nil {
		return domain.Partner{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPartnerRequest) (domain.ListPartnerResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListPartnerResponse{}, domain.ErrInvalidOrganization
	}

	query := &domain.Partner{OrgID: orgID}
	switch strings.TrimSpace(req.Role) {
	case "":
	case domain.RoleCustomer:
		query.IsCustomer = true
	case domain.RoleVendor:
		query.IsVendor = true
	default:
		return domain.ListPartnerResponse{}, domain.ErrInvalidRole
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize}

	items, err := s.repo.Find(ctx, query,
		option.ApplyPagination(page),
		option.WithOrder("created_at desc, id desc"),
	)
	if err != nil {
		return domain.ListPartnerResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(p *domain.Partner) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	partners := make([]domain.Partner, 0, len(items))
	for _, item := range items {
		partners = append(partners, *item)
	}
	return domain.ListPartnerResponse{PageInfo: *pageInfo, Partners: partners}, nil
}
