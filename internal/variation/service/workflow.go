package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/variation/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) MarkToSubmit(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	return s.transition(ctx, "variation.to_submit", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if v.Status != domain.StatusDraft {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot mark a %s variation to submit", v.Status)
			}
			v.Status = domain.StatusToSubmit
			return nil
		},
	})
}

func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	return s.transition(ctx, "variation.submit", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if !v.Editable() {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot submit a %s variation", v.Status)
			}
			if len(v.Lines) == 0 {
				return domain.ErrNoChanges
			}
			v.Status = domain.StatusSubmitted
			return nil
		},
	})
}

// Approve records the acting user among the approvers.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	_, actorID := auditcontext.ActorFromContext(ctx)
	return s.transition(ctx, "variation.approve", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if v.Status != domain.StatusSubmitted {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot approve a %s variation", v.Status)
			}
			if actorID == "" {
				return domain.ErrActorRequired
			}
			v.Approve(actorID, s.clock.Now())
			return nil
		},
	})
}

func (s *Service) Refuse(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	return s.transition(ctx, "variation.refuse", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if v.Status != domain.StatusSubmitted && v.Status != domain.StatusApproved {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot refuse a %s variation", v.Status)
			}
			v.Status = domain.StatusRefused
			return nil
		},
	})
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	return s.transition(ctx, "variation.cancel", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if terminal(v.Status) {
				return apperror.Wrapf(domain.ErrInvalidTransition, "cannot cancel a %s variation", v.Status)
			}
			v.Status = domain.StatusCancelled
			return nil
		},
	})
}

// Apply writes an approved variation into the BOQ: edit lines overwrite
// the target sub-activity where a new value is set (zero means unchanged),
// add lines create a sub-activity under the target activity and
// new_activity lines create an activity holding one sub-activity. Every
// touched sub-activity is stamped with the variation. The resulting ledger
// must reconcile or nothing is written.
func (s *Service) Apply(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	v, err := s.transition(ctx, "variation.apply", id, change{
		saveBoq: true,
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if v.Status != domain.StatusApproved {
				return apperror.Wrapf(domain.ErrNotApproved, "variation %s is %s", v.Name, v.Status)
			}
			if boq.Closed() {
				return apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name)
			}
			if err := boq.Reconcile(); err != nil {
				return err
			}
			if err := s.applyLines(ctx, v, boq); err != nil {
				return err
			}
			if err := boq.Reconcile(); err != nil {
				return err
			}
			now := s.clock.Now()
			v.AppliedAt = &now
			v.Status = domain.StatusApplied
			return nil
		},
		publish: func(ctx context.Context, tx *gorm.DB, v *domain.Variation, boq *boqdomain.Project) error {
			message := fmt.Sprintf("Variation %s has been successfully applied to BOQ %s.", v.Name, boq.Name)
			return s.publisher.Publish(ctx, tx, v.OrgID, events.TopicVariationApplied, map[string]any{
				"variation_id":           v.ID.String(),
				"name":                   v.Name,
				"boq_id":                 boq.ID.String(),
				"boq_name":               boq.Name,
				"total_variation_amount": v.TotalVariationAmount,
				"message":                message,
				"subject":                "Variation applied: " + v.Name,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordVariationApplied(ctx, v.OrgID.String())
	return v, nil
}

func (s *Service) applyLines(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
	now := s.clock.Now()
	stamp := func(sub *boqdomain.SubActivity) {
		sub.IsVariation = true
		sub.SourceVariationID = &v.ID
		sub.UpdatedAt = now
		sub.Normalize()
	}

	for _, l := range v.LinesOf(domain.ActionEdit) {
		if l.TargetSubActivityID == nil {
			continue
		}
		sub, _ := boq.FindSubActivity(*l.TargetSubActivityID)
		if sub == nil {
			return apperror.Wrapf(domain.ErrForeignTarget, "sub-activity %s", *l.TargetSubActivityID)
		}
		if l.NewQty != 0 {
			sub.MasterQty = l.NewQty
		}
		if l.NewCost != 0 {
			sub.ProductCost = l.NewCost
		}
		if l.NewMargin != 0 {
			sub.MarginPercent = l.NewMargin
		}
		stamp(sub)
	}

	newSub := func(a *boqdomain.Activity, l *domain.Line) error {
		productName, err := s.productName(ctx, l.ProductID)
		if err != nil {
			return err
		}
		sub := &boqdomain.SubActivity{
			ID:            s.genID.Generate(),
			OrgID:         boq.OrgID,
			BoqID:         boq.ID,
			ActivityID:    a.ID,
			Sequence:      a.NextSubActivitySequence(),
			Name:          boqdomain.ComposeSubActivityName(productName, l.Description),
			ProductID:     *l.ProductID,
			Description:   l.Description,
			ActivityType:  l.ActivityType,
			MasterQty:     l.NewQty,
			ProductCost:   l.NewCost,
			MarginPercent: l.NewMargin,
			CreatedAt:     now,
		}
		stamp(sub)
		a.SubActivities = append(a.SubActivities, sub)
		return nil
	}

	for _, l := range v.LinesOf(domain.ActionAdd) {
		if l.TargetActivityID == nil || l.ProductID == nil {
			s.log.Warn("skipping incomplete add line", zap.String("variation", v.Name), zap.String("line_id", l.ID.String()))
			continue
		}
		a := boq.FindActivity(*l.TargetActivityID)
		if a == nil {
			return apperror.Wrapf(domain.ErrForeignTarget, "activity %s", *l.TargetActivityID)
		}
		if err := newSub(a, l); err != nil {
			return err
		}
	}

	for _, l := range v.LinesOf(domain.ActionNewActivity) {
		if l.ActivityName == "" || l.ProductID == nil {
			s.log.Warn("skipping incomplete new activity line", zap.String("variation", v.Name), zap.String("line_id", l.ID.String()))
			continue
		}
		productID := *l.ProductID
		a := &boqdomain.Activity{
			ID:          s.genID.Generate(),
			OrgID:       boq.OrgID,
			BoqID:       boq.ID,
			Sequence:    boq.NextActivitySequence(),
			Name:        l.ActivityName,
			ProductID:   &productID,
			Description: "Added by variation " + v.Name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		boq.Activities = append(boq.Activities, a)
		if err := newSub(a, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) transition(ctx context.Context, op string, id snowflake.ID, ch change) (*domain.Variation, error) {
	var from domain.Status
	apply := ch.apply
	ch.apply = func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
		from = v.Status
		return apply(ctx, v, boq)
	}

	v, err := s.update(ctx, op, id, ch)
	if err != nil {
		return nil, err
	}

	s.log.Info("variation transition",
		zap.String("variation_id", v.ID.String()),
		zap.String("boq_id", v.BoqID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(v.Status)),
	)
	s.metrics.RecordTransition(ctx, "variation", string(v.Status))
	s.audit(ctx, v.OrgID, "variation."+string(v.Status), v, map[string]any{
		"from":                   string(from),
		"to":                     string(v.Status),
		"total_variation_amount": v.TotalVariationAmount,
	})
	return v, nil
}
