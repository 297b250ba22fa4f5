package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/internal/certificate/domain"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/config"
	"github.com/smallbiznis/boqledger/internal/events"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/internal/lock"
	"github.com/smallbiznis/boqledger/internal/observability/metrics"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	"github.com/smallbiznis/boqledger/internal/providers/pdf"
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
	BoqRepo   boqdomain.Repository
	Locker    lock.Locker
	Sequence  sequencedomain.Service
	Partners  partnerdomain.Service
	Invoices  integrationdomain.InvoiceService
	Publisher events.Publisher
	PDF       pdf.Provider
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
	partners  partnerdomain.Service
	invoices  integrationdomain.InvoiceService
	publisher events.Publisher
	pdf       pdf.Provider
	auditSvc  auditdomain.Service
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("certificate.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		boqRepo:   p.BoqRepo,
		locker:    p.Locker,
		sequence:  p.Sequence,
		partners:  p.Partners,
		invoices:  p.Invoices,
		publisher: p.Publisher,
		pdf:       p.PDF,
		auditSvc:  p.AuditSvc,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Certificate, error) {
	return s.create(ctx, "certificate.create", req.BoqID, func(c *domain.Certificate, boq *boqdomain.Project) error {
		c.Name = strings.TrimSpace(req.Name)
		if req.CertificateDate != nil {
			c.CertificateDate = *req.CertificateDate
		}
		for _, in := range req.Lines {
			if err := s.appendLine(c, boq, in); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateFromProgress drafts a certificate claiming everything currently
// parked in current_qty across the BOQ.
func (s *Service) CreateFromProgress(ctx context.Context, boqID snowflake.ID) (*domain.Certificate, error) {
	return s.create(ctx, "certificate.create_from_progress", boqID, func(c *domain.Certificate, boq *boqdomain.Project) error {
		for _, sub := range boq.SubActivities() {
			if sub.CurrentQty <= 0 || sub.MasterQty == 0 {
				continue
			}
			completion := boqdomain.Round(sub.CurrentQty/sub.MasterQty*100, boqdomain.PercentDigits)
			if err := s.appendLine(c, boq, domain.LineInput{
				SubActivityID:     sub.ID,
				CompletionPercent: completion,
			}); err != nil {
				return err
			}
		}
		if len(c.Lines) == 0 {
			return domain.ErrNoProgress
		}
		return nil
	})
}

func (s *Service) create(
	ctx context.Context,
	op string,
	boqID snowflake.ID,
	build func(c *domain.Certificate, boq *boqdomain.Project) error,
) (*domain.Certificate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(boqID))
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	defer release()

	now := s.clock.Now()
	c := &domain.Certificate{
		ID:              s.genID.Generate(),
		OrgID:           orgID,
		CertificateDate: now,
		Status:          domain.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boq, err := s.boqRepo.LoadAggregate(ctx, tx, orgID, boqID, true)
		if err != nil {
			return err
		}
		if boq.Closed() {
			return s.reject(ctx, op, apperror.Wrapf(boqdomain.ErrClosed, "boq %s", boq.Name))
		}
		c.BoqID = boq.ID
		if err := build(c, boq); err != nil {
			return s.reject(ctx, op, err)
		}
		if err := c.Reconcile(boq); err != nil {
			return s.reject(ctx, op, err)
		}

		if c.Name == "" {
			name, err := s.sequence.Next(ctx, tx, orgID, config.SequenceCertificate)
			if err != nil {
				return err
			}
			c.Name = name
		}
		return s.repo.Insert(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, "certificate.created", c, map[string]any{
		"name":   c.Name,
		"boq_id": c.BoqID.String(),
		"lines":  len(c.Lines),
	})
	return c, nil
}

func (s *Service) appendLine(c *domain.Certificate, boq *boqdomain.Project, in domain.LineInput) error {
	if sub, _ := boq.FindSubActivity(in.SubActivityID); sub == nil {
		return apperror.Wrapf(domain.ErrForeignSubActivity, "sub-activity %s", in.SubActivityID)
	}
	now := s.clock.Now()
	c.Lines = append(c.Lines, &domain.Line{
		ID:                s.genID.Generate(),
		OrgID:             c.OrgID,
		CertificateID:     c.ID,
		SubActivityID:     in.SubActivityID,
		CompletionPercent: boqdomain.Round(in.CompletionPercent, boqdomain.PercentDigits),
		ApprovedPercent:   boqdomain.Round(in.ApprovedPercent, boqdomain.PercentDigits),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	return nil
}

// Get returns the certificate. Draft amounts are derived from the current
// state of the BOQ; submitted certificates keep their frozen amounts.
func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	c, err := s.repo.Load(ctx, s.db, orgID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.StatusDraft {
		return c, nil
	}
	boq, err := s.boqRepo.LoadAggregate(ctx, s.db, orgID, c.BoqID, false)
	if err != nil {
		return nil, err
	}
	if err := c.Recompute(boq); err != nil {
		return nil, err
	}
	return c, nil
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

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(c *domain.Certificate) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: c.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	certificates := make([]domain.Certificate, 0, len(items))
	for _, item := range items {
		if item != nil {
			certificates = append(certificates, *item)
		}
	}

	resp := domain.ListResponse{Certificates: certificates}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	if !resp.HasMore {
		resp.NextPageToken = ""
	}
	return resp, nil
}

func (s *Service) AddLine(ctx context.Context, certificateID snowflake.ID, req domain.LineInput) (*domain.Certificate, error) {
	return s.update(ctx, "certificate.add_line", certificateID, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusDraft {
				return domain.ErrNotDraft
			}
			return s.appendLine(c, boq, req)
		},
	})
}

func (s *Service) UpdateLine(ctx context.Context, lineID snowflake.ID, req domain.LineUpdate) (*domain.Certificate, error) {
	certificateID, err := s.lineCertificateID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, "certificate.update_line", certificateID, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusDraft {
				return domain.ErrNotDraft
			}
			line := findLine(c, lineID)
			if line == nil {
				return domain.ErrNotFound
			}
			if req.CompletionPercent != nil {
				line.CompletionPercent = boqdomain.Round(*req.CompletionPercent, boqdomain.PercentDigits)
			}
			if req.ApprovedPercent != nil {
				line.ApprovedPercent = boqdomain.Round(*req.ApprovedPercent, boqdomain.PercentDigits)
			}
			line.UpdatedAt = s.clock.Now()
			return nil
		},
	})
}

func (s *Service) RemoveLine(ctx context.Context, lineID snowflake.ID) (*domain.Certificate, error) {
	certificateID, err := s.lineCertificateID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, "certificate.remove_line", certificateID, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusDraft {
				return domain.ErrNotDraft
			}
			kept := c.Lines[:0]
			for _, l := range c.Lines {
				if l.ID != lineID {
					kept = append(kept, l)
				}
			}
			c.Lines = kept
			return nil
		},
		beforeSave: func(ctx context.Context, tx *gorm.DB) error {
			return s.repo.DeleteLine(ctx, tx, lineID)
		},
	})
}

// SetApprovedAmount approves everything claimed on every line.
func (s *Service) SetApprovedAmount(ctx context.Context, id snowflake.ID) (*domain.Certificate, error) {
	return s.update(ctx, "certificate.set_approved_amount", id, change{
		apply: func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error {
			if c.Status != domain.StatusDraft {
				return domain.ErrNotDraft
			}
			for _, l := range c.Lines {
				l.ApprovedPercent = l.CompletionPercent
			}
			return nil
		},
	})
}

func (s *Service) lineCertificateID(ctx context.Context, lineID snowflake.ID) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrInvalidOrganization
	}
	return s.repo.FindLineCertificateID(ctx, s.db, orgID, lineID)
}

func findLine(c *domain.Certificate, lineID snowflake.ID) *domain.Line {
	for _, l := range c.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

// change describes one locked write on a certificate. apply gets a context
// carrying the write transaction, so invoices it raises roll back with the
// certificate. saveBoq persists the BOQ aggregate alongside the certificate;
// publish runs inside the same transaction.
type change struct {
	apply      func(ctx context.Context, c *domain.Certificate, boq *boqdomain.Project) error
	beforeSave func(ctx context.Context, tx *gorm.DB) error
	saveBoq    bool
	publish    func(ctx context.Context, tx *gorm.DB, c *domain.Certificate, boq *boqdomain.Project) error
}

// update serializes certificate writes with every other ledger write on the
// owning BOQ.
func (s *Service) update(ctx context.Context, op string, id snowflake.ID, ch change) (*domain.Certificate, error) {
	c, _, err := s.updateWithBoq(ctx, op, id, ch)
	return c, err
}

func (s *Service) updateWithBoq(ctx context.Context, op string, id snowflake.ID, ch change) (*domain.Certificate, *boqdomain.Project, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, nil, domain.ErrInvalidOrganization
	}

	current, err := s.repo.Load(ctx, s.db, orgID, id)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.BoqKey(current.BoqID))
	if err != nil {
		return nil, nil, s.reject(ctx, op, err)
	}
	defer release()

	var (
		c   *domain.Certificate
		boq *boqdomain.Project
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := txcontext.WithTx(ctx, tx)
		loadedBoq, err := s.boqRepo.LoadAggregate(txCtx, tx, orgID, current.BoqID, true)
		if err != nil {
			return err
		}
		loaded, err := s.repo.Load(txCtx, tx, orgID, id)
		if err != nil {
			return err
		}

		if err := ch.apply(txCtx, loaded, loadedBoq); err != nil {
			return s.reject(ctx, op, err)
		}
		if loaded.Status == domain.StatusDraft {
			if err := loaded.Reconcile(loadedBoq); err != nil {
				return s.reject(ctx, op, err)
			}
		}
		now := s.clock.Now()
		loaded.UpdatedAt = now

		if ch.beforeSave != nil {
			if err := ch.beforeSave(txCtx, tx); err != nil {
				return err
			}
		}
		if ch.saveBoq {
			loadedBoq.UpdatedAt = now
			if err := s.boqRepo.SaveAggregate(txCtx, tx, loadedBoq); err != nil {
				return err
			}
		}
		if err := s.repo.Save(txCtx, tx, loaded); err != nil {
			return err
		}
		if ch.publish != nil {
			if err := ch.publish(txCtx, tx, loaded, loadedBoq); err != nil {
				return err
			}
		}
		c, boq = loaded, loadedBoq
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return c, boq, nil
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	if kind, ok := apperror.KindOf(err); ok {
		s.metrics.RecordRejected(ctx, op, string(kind))
	}
	return err
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, c *domain.Certificate, metadata map[string]any) {
	if s.auditSvc == nil || c == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     action,
		TargetType: auditdomain.TargetCertificate,
		TargetID:   c.ID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to audit certificate change", zap.String("action", action), zap.Error(err))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, integrationdomain.ErrNotFound)
}
