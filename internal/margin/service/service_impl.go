package service

import (
	"context"

	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/margin/domain"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
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
	publisher events.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("margin.service"),
		clock:     p.Clock,
		boqRepo:   p.BoqRepo,
		locker:    p.Locker,
		publisher: p.Publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

// Apply bulk-writes a margin on a draft BOQ. Unit prices and totals follow
// through the normal reconciliation.
func (s *Service) Apply(ctx context.Context, req domain.Request) (*domain.Result, error) {
	const op = "margin.apply"

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	scope := req.Scope
	if scope == "" {
		scope = domain.ScopeAll
	}
	override := true
	if req.Override != nil {
		override = *req.Override
	}
	margin := boqdomain.Round(req.MarginPercent, boqdomain.PercentDigits)
	if err := domain.Validate(margin, scope); err != nil {
		return nil, s.reject(ctx, op, err)
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(req.BoqID))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	message := domain.Message(margin, scope)
	var (
		boq              *boqdomain.Project
		activities, subs int
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boq, err = s.boqRepo.LoadAggregate(ctx, tx, orgID, req.BoqID, true)
		if err != nil {
			return err
		}
		if boq.Closed() {
			return s.reject(ctx, op, apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name))
		}
		if !boq.Editable() {
			return s.reject(ctx, op, apperror.Wrapf(boqdomain.ErrStructureLocked, "%s is %s", boq.Name, boq.Status))
		}

		activities, subs = domain.Apply(boq, margin, scope, override)
		if err := boq.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		boq.UpdatedAt = s.clock.Now()

		if err := s.boqRepo.SaveAggregate(ctx, tx, boq); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, orgID, events.TopicMarginApplied, map[string]any{
			"boq_id":         boq.ID.String(),
			"boq_name":       boq.Name,
			"margin_percent": margin,
			"scope":          string(scope),
			"message":        message,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("margin applied",
		zap.String("boq_id", boq.ID.String()),
		zap.Float64("margin_percent", margin),
		zap.String("scope", string(scope)),
		zap.Bool("override", override),
	)
	if s.auditSvc != nil {
		metadata := map[string]any{
			"margin_percent": margin,
			"scope":          string(scope),
			"override":       override,
		}
		entry := auditdomain.Entry{
			OrgID:      orgID,
			Action:     "boq.margin.applied",
			TargetType: auditdomain.TargetBoq,
			TargetID:   boq.ID.String(),
			Metadata:   metadata,
		}
		if err := s.auditSvc.Record(ctx, entry); err != nil {
			s.log.Warn("failed to audit margin change", zap.Error(err))
		}
	}

	return &domain.Result{
		Boq:                  boq,
		Message:              message,
		ActivitiesUpdated:    activities,
		SubActivitiesUpdated: subs,
	}, nil
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}
