package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Submit turns a draft BOQ into a sales quotation with one line per priced
// activity.
func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.transition(ctx, "boq.submit", id, func(ctx context.Context, p *domain.Project) error {
		if p.Status != domain.StatusDraft {
			return apperror.Wrapf(domain.ErrInvalidTransition, "cannot submit a %s BOQ", p.Status)
		}
		if len(p.Activities) == 0 {
			return domain.ErrNoActivities
		}

		distribution := integrationdomain.Distribution(p.AnalyticAccountID)
		lines := make([]integrationdomain.LineRequest, 0, len(p.Activities))
		for _, a := range p.Activities {
			if a.TotalCumulative <= 0 {
				continue
			}
			lines = append(lines, integrationdomain.LineRequest{
				ProductID:            a.ProductID,
				Name:                 a.Name,
				Quantity:             1,
				UnitPrice:            a.TotalCumulative,
				AnalyticDistribution: distribution,
			})
		}
		if len(lines) == 0 {
			return domain.ErrNoOrderLines
		}

		order, err := s.orders.CreateOrder(ctx, integrationdomain.CreateOrderRequest{
			OrgID:     p.OrgID,
			PartnerID: p.CustomerID,
			Origin:    p.Name,
			BoqID:     &p.ID,
			Lines:     lines,
		})
		if err != nil {
			return err
		}
		p.SaleOrderID = &order.ID
		p.Status = domain.StatusSubmitted
		return nil
	}, nil)
}

// Approve confirms the linked quotation and provisions the analytic account
// and project record of the BOQ.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.transition(ctx, "boq.approve", id, func(ctx context.Context, p *domain.Project) error {
		if p.Status != domain.StatusDraft && p.Status != domain.StatusSubmitted {
			return apperror.Wrapf(domain.ErrInvalidTransition, "cannot approve a %s BOQ", p.Status)
		}
		if p.SaleOrderID != nil {
			order, err := s.orders.GetOrder(ctx, p.OrgID, *p.SaleOrderID)
			if err != nil {
				return err
			}
			if order.Status == integrationdomain.OrderStatusDraft {
				if _, err := s.orders.ConfirmOrder(ctx, p.OrgID, order.ID); err != nil {
					return err
				}
			}
		}
		if err := s.provision(ctx, p); err != nil {
			return err
		}
		p.Status = domain.StatusApproved
		return nil
	}, s.publishApproved)
}

// HandleOrderConfirmed confirms a quotation and advances the BOQ it came
// from. A submitted BOQ is approved and put in progress. The order is
// confirmed inside the BOQ transition, so a rejected transition leaves it
// untouched. Orders without a linked BOQ are confirmed on their own and nil
// is returned.
func (s *Service) HandleOrderConfirmed(ctx context.Context, orderID snowflake.ID) (*domain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	linked, err := s.repo.FindBySaleOrder(ctx, s.db, orgID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if _, err := s.orders.ConfirmOrder(ctx, orgID, orderID); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}

	var approved bool
	project, err := s.transition(ctx, "boq.order_confirmed", linked.ID, func(ctx context.Context, p *domain.Project) error {
		if p.SaleOrderID == nil || *p.SaleOrderID != orderID {
			return apperror.Wrapf(domain.ErrInvalidTransition, "%s is no longer linked to the order", p.Name)
		}
		if _, err := s.orders.ConfirmOrder(ctx, orgID, orderID); err != nil {
			return err
		}
		if err := s.provision(ctx, p); err != nil {
			return err
		}
		if p.Status == domain.StatusSubmitted {
			p.Status = domain.StatusInProgress
			approved = true
		}
		return nil
	}, func(ctx context.Context, tx *gorm.DB, p *domain.Project) error {
		if !approved {
			return nil
		}
		return s.publishApproved(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) StartProgress(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.setStatus(ctx, "boq.start_progress", id, domain.StatusInProgress)
}

func (s *Service) MarkDone(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.setStatus(ctx, "boq.done", id, domain.StatusDone)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.setStatus(ctx, "boq.cancel", id, domain.StatusCancelled)
}

func (s *Service) ResetToDraft(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	return s.setStatus(ctx, "boq.reset_to_draft", id, domain.StatusDraft)
}

func (s *Service) setStatus(ctx context.Context, op string, id snowflake.ID, status domain.Status) (*domain.Project, error) {
	return s.transition(ctx, op, id, func(ctx context.Context, p *domain.Project) error {
		p.Status = status
		return nil
	}, nil)
}

// provision creates the analytic account and the project record when they
// are missing.
func (s *Service) provision(ctx context.Context, p *domain.Project) error {
	if p.AnalyticAccountID == nil {
		account, err := s.analytics.CreateAnalyticAccount(ctx, integrationdomain.CreateAnalyticAccountRequest{
			OrgID:     p.OrgID,
			Name:      p.Name,
			PartnerID: p.CustomerID,
		})
		if err != nil {
			return err
		}
		p.AnalyticAccountID = &account.ID
	}
	if p.ExternalProjectID == nil {
		project, err := s.projects.CreateProject(ctx, integrationdomain.CreateProjectRequest{
			OrgID:             p.OrgID,
			Name:              p.Name,
			PartnerID:         p.CustomerID,
			Manager:           p.ProjectManager,
			AnalyticAccountID: p.AnalyticAccountID,
		})
		if err != nil {
			return err
		}
		p.ExternalProjectID = &project.ID
	}
	return nil
}

func (s *Service) publishApproved(ctx context.Context, tx *gorm.DB, p *domain.Project) error {
	return s.publisher.Publish(ctx, tx, p.OrgID, events.TopicBoqApproved, map[string]any{
		"boq_id":  p.ID.String(),
		"name":    p.Name,
		"total":   p.Total,
		"message": "BOQ " + p.Name + " approved",
		"subject": "BOQ approved: " + p.Name,
	})
}

// transition applies a status change under the BOQ lock. The aggregate is
// loaded with a row lock inside the persisting transaction and validated
// before apply runs, so collaborator calls made by apply only see a
// consistent BOQ and roll back with it. publish runs in the same
// transaction.
func (s *Service) transition(
	ctx context.Context,
	op string,
	id snowflake.ID,
	apply func(ctx context.Context, p *domain.Project) error,
	publish func(ctx context.Context, tx *gorm.DB, p *domain.Project) error,
) (*domain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(id))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	var (
		project *domain.Project
		from    domain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		loaded, err := s.repo.LoadAggregate(txCtx, tx, orgID, id, true)
		if err != nil {
			return err
		}
		from = loaded.Status
		if err := loaded.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		if err := apply(txCtx, loaded); err != nil {
			return s.reject(ctx, op, err)
		}
		if err := loaded.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		loaded.UpdatedAt = s.clock.Now()

		if err := s.repo.SaveAggregate(txCtx, tx, loaded); err != nil {
			return err
		}
		if publish != nil {
			if err := publish(txCtx, tx, loaded); err != nil {
				return err
			}
		}
		project = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("boq transition",
		zap.String("boq_id", project.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(project.Status)),
	)
	s.metrics.RecordTransition(ctx, "boq", string(project.Status))
	s.audit(ctx, orgID, "boq."+string(project.Status), project, map[string]any{
		"from": string(from),
		"to":   string(project.Status),
	})
	return project, nil
}
