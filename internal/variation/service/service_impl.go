package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	sequencedomain "github.com/smallbiznis/boqledger/internal/sequence/domain"
	"github.com/smallbiznis/boqledger/internal/txcontext"
	"github.com/smallbiznis/boqledger/internal/variation/domain"
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
	BoqRepo   boqdomain.Repository
	Locker    lock.Locker
	Sequence  sequencedomain.Service
	Products  productdomain.Service
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
	boqRepo   boqdomain.Repository
	locker    lock.Locker
	sequence  sequencedomain.Service
	products  productdomain.Service
	publisher events.Publisher
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("variation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		boqRepo:   p.BoqRepo,
		locker:    p.Locker,
		sequence:  p.Sequence,
		products:  p.Products,
		publisher: p.Publisher,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Variation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(req.BoqID))
	if err != nil {
		return nil, s.reject(ctx, "variation.create", err)
	}
	defer release()

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.DefaultCategory
	}
	_, actorID := auditcontext.ActorFromContext(ctx)

	now := s.clock.Now()
	v := &domain.Variation{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		BoqID:       req.BoqID,
		Name:        strings.TrimSpace(req.Name),
		Status:      domain.StatusDraft,
		Category:    category,
		Description: strings.TrimSpace(req.Description),
		Reason:      strings.TrimSpace(req.Reason),
		RequestedBy: actorID,
		Approvers:   normalizeApprovers(req.Approvers),
		ApprovedBy:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := v.Reconcile(); err != nil {
		return nil, s.reject(ctx, "variation.create", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boq, err := s.boqRepo.LoadAggregate(ctx, tx, orgID, req.BoqID, true)
		if err != nil {
			return err
		}
		if boq.Closed() {
			return s.reject(ctx, "variation.create", apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name))
		}
		if v.Name == "" {
			name, err := s.sequence.Next(ctx, tx, orgID, config.SequenceVariation)
			if err != nil {
				return err
			}
			v.Name = name
		}
		return s.repo.Insert(ctx, tx, v)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, "variation.created", v, map[string]any{
		"name":   v.Name,
		"boq_id": v.BoqID.String(),
	})
	return v, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Variation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.Load(ctx, s.db, orgID, id)
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
		Limit:  pageSize,
	}
	if raw := strings.TrimSpace(req.BoqID); raw != "" {
		boqID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListResponse{}, domain.ErrNotFound
		}
		filter.BoqID = &boqID
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

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(v *domain.Variation) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: v.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	variations := make([]domain.Variation, 0, len(items))
	for _, item := range items {
		if item != nil {
			variations = append(variations, *item)
		}
	}

	resp := domain.ListResponse{Variations: variations}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Variation, error) {
	return s.update(ctx, "variation.update", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if terminal(v.Status) {
				return apperror.Wrapf(domain.ErrInvalidTransition, "variation %s is %s", v.Name, v.Status)
			}
			if req.Category != nil {
				v.Category = strings.TrimSpace(*req.Category)
			}
			if req.Description != nil {
				v.Description = strings.TrimSpace(*req.Description)
			}
			if req.Reason != nil {
				v.Reason = strings.TrimSpace(*req.Reason)
			}
			return nil
		},
	})
}

// SetApprovers replaces the approver set. Submitted and approved variations
// cannot drop to zero approvers.
func (s *Service) SetApprovers(ctx context.Context, id snowflake.ID, approvers []string) (*domain.Variation, error) {
	v, err := s.update(ctx, "variation.set_approvers", id, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if terminal(v.Status) {
				return apperror.Wrapf(domain.ErrInvalidTransition, "variation %s is %s", v.Name, v.Status)
			}
			v.Approvers = normalizeApprovers(approvers)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, v.OrgID, "variation.approvers_set", v, map[string]any{"approvers": []string(v.Approvers)})
	return v, nil
}

func (s *Service) AddLine(ctx context.Context, variationID snowflake.ID, req domain.LineInput) (*domain.Variation, error) {
	productName, err := s.productName(ctx, req.ProductID)
	if err != nil {
		return nil, s.reject(ctx, "variation.add_line", err)
	}

	return s.update(ctx, "variation.add_line", variationID, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if !v.Editable() {
				return domain.ErrNotEditable
			}

			now := s.clock.Now()
			line := &domain.Line{
				ID:                  s.genID.Generate(),
				OrgID:               v.OrgID,
				VariationID:         v.ID,
				ActionType:          req.ActionType,
				TargetSubActivityID: req.TargetSubActivityID,
				TargetActivityID:    req.TargetActivityID,
				ActivityName:        strings.TrimSpace(req.ActivityName),
				ActivityType:        boqdomain.ActivityTypeMaterial,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := line.CheckTargets(boq); err != nil {
				return err
			}

			name := productName
			if req.ActionType == domain.ActionEdit && req.TargetSubActivityID != nil {
				sub, _ := boq.FindSubActivity(*req.TargetSubActivityID)
				line.Snapshot(sub)
			}
			if req.ProductID != nil {
				line.ProductID = req.ProductID
			}
			if req.Description != nil {
				line.Description = strings.TrimSpace(*req.Description)
			}
			if req.ActivityType != "" {
				line.ActivityType = req.ActivityType
			}
			setNewValues(line, req.NewQty, req.NewCost, req.NewMargin)

			line.DisplayName = line.Label(boq, name)
			v.Lines = append(v.Lines, line)
			return nil
		},
	})
}

func (s *Service) UpdateLine(ctx context.Context, lineID snowflake.ID, req domain.LineUpdate) (*domain.Variation, error) {
	variationID, err := s.lineVariationID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	productName, err := s.productName(ctx, req.ProductID)
	if err != nil {
		return nil, s.reject(ctx, "variation.update_line", err)
	}

	return s.update(ctx, "variation.update_line", variationID, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if !v.Editable() {
				return domain.ErrNotEditable
			}
			line := findLine(v, lineID)
			if line == nil {
				return domain.ErrNotFound
			}

			if req.ActivityName != nil {
				line.ActivityName = strings.TrimSpace(*req.ActivityName)
			}
			if req.ProductID != nil {
				line.ProductID = req.ProductID
			} else if line.ProductID != nil && line.ActionType == domain.ActionAdd {
				name, err := s.productName(ctx, line.ProductID)
				if err != nil {
					return err
				}
				productName = name
			}
			if req.Description != nil {
				line.Description = strings.TrimSpace(*req.Description)
			}
			if req.ActivityType != nil {
				line.ActivityType = *req.ActivityType
			}
			setNewValues(line, req.NewQty, req.NewCost, req.NewMargin)

			line.DisplayName = line.Label(boq, productName)
			line.UpdatedAt = s.clock.Now()
			return nil
		},
	})
}

func (s *Service) RemoveLine(ctx context.Context, lineID snowflake.ID) (*domain.Variation, error) {
	variationID, err := s.lineVariationID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, "variation.remove_line", variationID, change{
		apply: func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error {
			if !v.Editable() {
				return domain.ErrNotEditable
			}
			kept := v.Lines[:0]
			for _, l := range v.Lines {
				if l.ID != lineID {
					kept = append(kept, l)
				}
			}
			v.Lines = kept
			return nil
		},
		beforeSave: func(ctx context.Context, tx *gorm.DB) error {
			return s.repo.DeleteLine(ctx, tx, lineID)
		},
	})
}

func setNewValues(line *domain.Line, qty, cost, margin *float64) {
	if qty != nil {
		line.NewQty = boqdomain.Round(*qty, boqdomain.QtyDigits)
	}
	if cost != nil {
		line.NewCost = boqdomain.Round(*cost, boqdomain.QtyDigits)
	}
	if margin != nil {
		line.NewMargin = boqdomain.Round(*margin, boqdomain.PercentDigits)
	}
}

func (s *Service) productName(ctx context.Context, productID *snowflake.ID) (string, error) {
	if productID == nil {
		return "", nil
	}
	product, err := s.products.Get(ctx, *productID)
	if err != nil {
		if errors.Is(err, productdomain.ErrNotFound) {
			return "", apperror.Wrapf(domain.ErrUnknownProduct, "product %s", *productID)
		}
		return "", err
	}
	return product.Name, nil
}

func (s *Service) lineVariationID(ctx context.Context, lineID snowflake.ID) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	return s.repo.FindLineVariationID(ctx, s.db, orgID, lineID)
}

func findLine(v *domain.Variation, lineID snowflake.ID) *domain.Line {
	for _, l := range v.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

func normalizeApprovers(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func terminal(status domain.Status) bool {
	switch status {
	case domain.StatusApplied, domain.StatusRefused, domain.StatusCancelled:
		return true
	}
	return false
}

// change is one locked write on a variation. apply receives a context
// carrying the write transaction.
type change struct {
	apply      func(ctx context.Context, v *domain.Variation, boq *boqdomain.Project) error
	beforeSave func(ctx context.Context, tx *gorm.DB) error
	saveBoq    bool
	publish    func(ctx context.Context, tx *gorm.DB, v *domain.Variation, boq *boqdomain.Project) error
}

// update runs a variation write under the lock of its BOQ, so applying a
// variation never interleaves with certificate commits on the same ledger.
func (s *Service) update(ctx context.Context, op string, id snowflake.ID, ch change) (*domain.Variation, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	current, err := s.repo.Load(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(current.BoqID))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	var v *domain.Variation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		boq, err := s.boqRepo.LoadAggregate(txCtx, tx, orgID, current.BoqID, true)
		if err != nil {
			return err
		}
		loaded, err := s.repo.Load(txCtx, tx, orgID, id)
		if err != nil {
			return err
		}

		if err := ch.apply(txCtx, loaded, boq); err != nil {
			return s.reject(ctx, op, err)
		}
		if err := loaded.Reconcile(); err != nil {
			return s.reject(ctx, op, err)
		}
		now := s.clock.Now()
		loaded.UpdatedAt = now

		if ch.beforeSave != nil {
			if err := ch.beforeSave(txCtx, tx); err != nil {
				return err
			}
		}
		if ch.saveBoq {
			boq.UpdatedAt = now
			if err := s.boqRepo.SaveAggregate(txCtx, tx, boq); err != nil {
				return err
			}
		}
		if err := s.repo.Save(txCtx, tx, loaded); err != nil {
			return err
		}
		if ch.publish != nil {
			if err := ch.publish(txCtx, tx, loaded, boq); err != nil {
				return err
			}
		}
		v = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, v *domain.Variation, metadata map[string]any) {
	if s.auditSvc == nil || v == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     action,
		TargetType: auditdomain.TargetVariation,
		TargetID:   v.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to audit variation change", zap.String("action", action), zap.Error(err))
	}
}
