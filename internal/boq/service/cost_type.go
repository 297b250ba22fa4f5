package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/pkg/db"
)

func (s *Service) CreateCostType(ctx context.Context, req domain.CreateCostTypeRequest) (*domain.CostType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if name == "" || code == "" {
		return nil, s.reject(ctx, "boq.cost_type.create", apperror.Wrapf(domain.ErrNameRequired, "cost type name and code"))
	}

	costType := &domain.CostType{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		Active:      true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertCostType(ctx, s.db, costType); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.reject(ctx, "boq.cost_type.create", domain.ErrCostTypeExists)
		}
		return nil, err
	}
	return costType, nil
}

func (s *Service) ListCostTypes(ctx context.Context) ([]domain.CostType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListCostTypes(ctx, s.db, orgID, true)
}
