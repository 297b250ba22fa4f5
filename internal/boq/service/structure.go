package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"gorm.io/gorm"
)

func (s *Service) AddActivity(ctx context.Context, boqID snowflake.ID, req domain.ActivityInput) (*domain.Activity, error) {
	if req.ProductID != nil {
		if _, err := s.lookupProduct(ctx, *req.ProductID); err != nil {
			return nil, s.reject(ctx, "boq.activity.add", err)
		}
	}

	var created *domain.Activity
	project, err := s.mutate(ctx, "boq.activity.add", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return apperror.Wrapf(domain.ErrNameRequired, "activity")
		}

		sequence := p.NextActivitySequence()
		if req.Sequence != nil {
			sequence = *req.Sequence
		}
		margin := p.MarginPercent
		if req.MarginPercent != nil {
			margin = domain.Round(*req.MarginPercent, domain.PercentDigits)
		}

		now := s.clock.Now()
		created = &domain.Activity{
			ID:            s.genID.Generate(),
			OrgID:         p.OrgID,
			BoqID:         p.ID,
			Sequence:      sequence,
			Name:          name,
			ProductID:     req.ProductID,
			Description:   strings.TrimSpace(req.Description),
			MarginPercent: margin,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		p.Activities = append(p.Activities, created)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.activity.added", project, map[string]any{
		"activity_id": created.ID.String(),
		"name":        created.Name,
	})
	return created, nil
}

// UpdateActivity edits an activity. Name, description and sequence stay
// editable while the BOQ is live; the default margin only in draft.
func (s *Service) UpdateActivity(ctx context.Context, activityID snowflake.ID, req domain.ActivityUpdate) (*domain.Activity, error) {
	boqID, err := s.activityBoqID(ctx, activityID)
	if err != nil {
		return nil, err
	}

	var updated *domain.Activity
	project, err := s.mutate(ctx, "boq.activity.update", boqID, func(ctx context.Context, p *domain.Project) error {
		if p.Closed() {
			return domain.ErrClosed
		}
		updated = p.FindActivity(activityID)
		if updated == nil {
			return domain.ErrNotFound
		}
		if req.Name != nil {
			updated.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			updated.Description = strings.TrimSpace(*req.Description)
		}
		if req.Sequence != nil {
			updated.Sequence = *req.Sequence
		}
		if req.MarginPercent != nil {
			if !p.Editable() {
				return apperror.Wrapf(domain.ErrStructureLocked, "margin of %s", updated.Name)
			}
			updated.MarginPercent = domain.Round(*req.MarginPercent, domain.PercentDigits)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.activity.updated", project, map[string]any{
		"activity_id": activityID.String(),
	})
	return updated, nil
}

func (s *Service) RemoveActivity(ctx context.Context, activityID snowflake.ID) error {
	boqID, err := s.activityBoqID(ctx, activityID)
	if err != nil {
		return err
	}

	project, err := s.mutate(ctx, "boq.activity.remove", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		activity := p.FindActivity(activityID)
		if activity == nil {
			return domain.ErrNotFound
		}
		if err := s.ensureUnreferenced(ctx, activity.SubActivities...); err != nil {
			return err
		}
		kept := p.Activities[:0]
		for _, a := range p.Activities {
			if a.ID != activityID {
				kept = append(kept, a)
			}
		}
		p.Activities = kept
		return nil
	}, func(tx *gorm.DB) error {
		return s.repo.DeleteActivity(ctx, tx, activityID)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, project.OrgID, "boq.activity.removed", project, map[string]any{
		"activity_id": activityID.String(),
	})
	return nil
}

func (s *Service) AddSubActivity(ctx context.Context, activityID snowflake.ID, req domain.SubActivityInput) (*domain.SubActivity, error) {
	boqID, err := s.activityBoqID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	product, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return nil, s.reject(ctx, "boq.sub_activity.add", err)
	}
	costs, err := s.buildAdditionalCosts(ctx, req.AdditionalCosts)
	if err != nil {
		return nil, s.reject(ctx, "boq.sub_activity.add", err)
	}

	var created *domain.SubActivity
	project, err := s.mutate(ctx, "boq.sub_activity.add", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		activity := p.FindActivity(activityID)
		if activity == nil {
			return domain.ErrNotFound
		}

		activityType := req.ActivityType
		if activityType == "" {
			activityType = domain.ActivityTypeMaterial
		}
		sequence := activity.NextSubActivitySequence()
		if req.Sequence != nil {
			sequence = *req.Sequence
		}
		cost := product.StandardCost
		if req.ProductCost != nil {
			cost = *req.ProductCost
		}
		margin := activity.MarginPercent
		if req.MarginPercent != nil {
			margin = *req.MarginPercent
		}

		description := strings.TrimSpace(req.Description)
		now := s.clock.Now()
		created = &domain.SubActivity{
			ID:            s.genID.Generate(),
			OrgID:         p.OrgID,
			BoqID:         p.ID,
			ActivityID:    activity.ID,
			Sequence:      sequence,
			Name:          domain.ComposeSubActivityName(product.Name, description),
			ProductID:     product.ID,
			Description:   description,
			ActivityType:  activityType,
			MasterQty:     req.MasterQty,
			CurrentQty:    req.CurrentQty,
			ProductCost:   cost,
			MarginPercent: margin,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for _, c := range costs {
			c.ID = s.genID.Generate()
			c.OrgID = p.OrgID
			c.SubActivityID = created.ID
			c.CreatedAt = now
		}
		created.AdditionalCosts = costs
		created.Normalize()
		activity.SubActivities = append(activity.SubActivities, created)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.sub_activity.added", project, map[string]any{
		"sub_activity_id": created.ID.String(),
		"master_qty":      created.MasterQty,
	})
	return created, nil
}

// UpdateSubActivity edits a sub-activity. On a live BOQ only progress and
// labelling fields move; quantities and prices change through variations.
func (s *Service) UpdateSubActivity(ctx context.Context, subID snowflake.ID, req domain.SubActivityUpdate) (*domain.SubActivity, error) {
	boqID, err := s.subActivityBoqID(ctx, subID)
	if err != nil {
		return nil, err
	}

	var updated *domain.SubActivity
	project, err := s.mutate(ctx, "boq.sub_activity.update", boqID, func(ctx context.Context, p *domain.Project) error {
		if p.Closed() {
			return domain.ErrClosed
		}
		updated, _ = p.FindSubActivity(subID)
		if updated == nil {
			return domain.ErrNotFound
		}
		if !p.Editable() && (req.MasterQty != nil || req.ProductCost != nil || req.MarginPercent != nil) {
			return apperror.Wrapf(domain.ErrStructureLocked, "%s", updated.Name)
		}

		if req.Description != nil {
			updated.Description = strings.TrimSpace(*req.Description)
			product, err := s.lookupProduct(ctx, updated.ProductID)
			if err != nil {
				return err
			}
			updated.Name = domain.ComposeSubActivityName(product.Name, updated.Description)
		}
		if req.ActivityType != nil {
			updated.ActivityType = *req.ActivityType
		}
		if req.Sequence != nil {
			updated.Sequence = *req.Sequence
		}
		if req.MasterQty != nil {
			updated.MasterQty = *req.MasterQty
		}
		if req.CurrentQty != nil {
			updated.CurrentQty = *req.CurrentQty
		}
		if req.ProductCost != nil {
			updated.ProductCost = *req.ProductCost
		}
		if req.MarginPercent != nil {
			updated.MarginPercent = *req.MarginPercent
		}
		updated.Normalize()
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.sub_activity.updated", project, map[string]any{
		"sub_activity_id": subID.String(),
		"current_qty":     updated.CurrentQty,
	})
	return updated, nil
}

func (s *Service) RemoveSubActivity(ctx context.Context, subID snowflake.ID) error {
	boqID, err := s.subActivityBoqID(ctx, subID)
	if err != nil {
		return err
	}

	project, err := s.mutate(ctx, "boq.sub_activity.remove", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		sub, activity := p.FindSubActivity(subID)
		if sub == nil {
			return domain.ErrNotFound
		}
		if err := s.ensureUnreferenced(ctx, sub); err != nil {
			return err
		}
		kept := activity.SubActivities[:0]
		for _, candidate := range activity.SubActivities {
			if candidate.ID != subID {
				kept = append(kept, candidate)
			}
		}
		activity.SubActivities = kept
		return nil
	}, func(tx *gorm.DB) error {
		return s.repo.DeleteSubActivity(ctx, tx, subID)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, project.OrgID, "boq.sub_activity.removed", project, map[string]any{
		"sub_activity_id": subID.String(),
	})
	return nil
}

func (s *Service) AddAdditionalCost(ctx context.Context, subID snowflake.ID, req domain.AdditionalCostInput) (*domain.SubActivity, error) {
	boqID, err := s.subActivityBoqID(ctx, subID)
	if err != nil {
		return nil, err
	}
	costs, err := s.buildAdditionalCosts(ctx, []domain.AdditionalCostInput{req})
	if err != nil {
		return nil, s.reject(ctx, "boq.additional_cost.add", err)
	}

	var updated *domain.SubActivity
	project, err := s.mutate(ctx, "boq.additional_cost.add", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		updated, _ = p.FindSubActivity(subID)
		if updated == nil {
			return domain.ErrNotFound
		}
		cost := costs[0]
		cost.ID = s.genID.Generate()
		cost.OrgID = p.OrgID
		cost.SubActivityID = subID
		cost.CreatedAt = s.clock.Now()
		updated.AdditionalCosts = append(updated.AdditionalCosts, cost)
		updated.Normalize()
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.additional_cost.added", project, map[string]any{
		"sub_activity_id": subID.String(),
		"unit_price":      updated.UnitPrice,
	})
	return updated, nil
}

func (s *Service) RemoveAdditionalCost(ctx context.Context, costID snowflake.ID) (*domain.SubActivity, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	boqID, err := s.repo.FindAdditionalCostBoqID(ctx, s.db, orgID, costID)
	if err != nil {
		return nil, err
	}

	var updated *domain.SubActivity
	project, err := s.mutate(ctx, "boq.additional_cost.remove", boqID, func(ctx context.Context, p *domain.Project) error {
		if err := structureEditable(p); err != nil {
			return err
		}
		for _, sub := range p.SubActivities() {
			for i, c := range sub.AdditionalCosts {
				if c.ID == costID {
					sub.AdditionalCosts = append(sub.AdditionalCosts[:i], sub.AdditionalCosts[i+1:]...)
					updated = sub
					return nil
				}
			}
		}
		return domain.ErrNotFound
	}, func(tx *gorm.DB) error {
		return s.repo.DeleteAdditionalCost(ctx, tx, costID)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, project.OrgID, "boq.additional_cost.removed", project, map[string]any{
		"sub_activity_id": updated.ID.String(),
		"cost_id":         costID.String(),
	})
	return updated, nil
}

func structureEditable(p *domain.Project) error {
	if p.Closed() {
		return domain.ErrClosed
	}
	if !p.Editable() {
		return apperror.Wrapf(domain.ErrStructureLocked, "%s is %s", p.Name, p.Status)
	}
	return nil
}

func (s *Service) ensureUnreferenced(ctx context.Context, subs ...*domain.SubActivity) error {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	referenced, err := s.repo.SubActivityReferenced(ctx, txcontext.DB(ctx, s.db), ids)
	if err != nil {
		return err
	}
	if referenced {
		return domain.ErrReferenceImmutable
	}
	return nil
}

func (s *Service) lookupProduct(ctx context.Context, productID snowflake.ID) (*productdomain.Product, error) {
	if productID == 0 {
		return nil, domain.ErrProductRequired
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, productdomain.ErrNotFound) {
			return nil, apperror.Wrapf(domain.ErrProductRequired, "product %s does not exist", productID)
		}
		return nil, err
	}
	return product, nil
}

// buildAdditionalCosts resolves cost types and fills a missing name from the
// catalog entry.
func (s *Service) buildAdditionalCosts(ctx context.Context, inputs []domain.AdditionalCostInput) ([]*domain.AdditionalCost, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	var catalog map[snowflake.ID]domain.CostType
	costs := make([]*domain.AdditionalCost, 0, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if in.CostTypeID != nil {
			if catalog == nil {
				types, err := s.ListCostTypes(ctx)
				if err != nil {
					return nil, err
				}
				catalog = make(map[snowflake.ID]domain.CostType, len(types))
				for _, ct := range types {
					catalog[ct.ID] = ct
				}
			}
			ct, ok := catalog[*in.CostTypeID]
			if !ok {
				return nil, domain.ErrNotFound
			}
			if name == "" {
				name = ct.Name
			}
		}
		if name == "" {
			return nil, apperror.Wrapf(domain.ErrNameRequired, "additional cost")
		}
		if in.Cost < 0 {
			return nil, apperror.Wrapf(domain.ErrNegativeCost, "additional cost %q", name)
		}
		costs = append(costs, &domain.AdditionalCost{
			CostTypeID:  in.CostTypeID,
			Name:        name,
			Cost:        in.Cost,
			Description: strings.TrimSpace(in.Description),
		})
	}
	return costs, nil
}

func (s *Service) activityBoqID(ctx context.Context, activityID snowflake.ID) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	return s.repo.FindActivityBoqID(ctx, s.db, orgID, activityID)
}

func (s *Service) subActivityBoqID(ctx context.Context, subID snowflake.ID) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	return s.repo.FindSubActivityBoqID(ctx, s.db, orgID, subID)
}
