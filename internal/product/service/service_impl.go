package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/internal/product/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"github.com/smallbiznis/boqledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.StandardCost < 0 {
		return nil, domain.ErrInvalidCost
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	uom := strings.TrimSpace(req.UoM)
	if uom == "" {
		uom = "Units"
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:           s.genID.Generate(),
		OrgID:        orgID,
		Code:         code,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		UoM:          uom,
		StandardCost: req.StandardCost,
		Active:       active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, s.db, product); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateCode
		}
		return nil, err
	}
	return product, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID, req)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	item, err := s.repo.FindByID(ctx, txcontext.DB(ctx, s.db), orgID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.FindByIDs(ctx, s.db, orgID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]domain.Product, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}
