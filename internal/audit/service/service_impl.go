package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/audit/masking"
	"github.com/smallbiznis/boqledger/internal/auditcontext"
	"github.com/smallbiznis/boqledger/internal/clock"
	"github.com/smallbiznis/boqledger/internal/orgcontext"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record stores one entry. The company and actor default to the ones carried
// by ctx, and contact fields in the metadata are masked before they are written.
func (s *Service) Record(ctx context.Context, e auditdomain.Entry) error {
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	orgID := e.OrgID
	if orgID == 0 {
		orgID, _ = orgcontext.OrgIDFromContext(ctx)
	}

	actorType, actorID := strings.TrimSpace(e.ActorType), strings.TrimSpace(e.ActorID)
	if actorType == "" {
		actorType, actorID = auditcontext.ActorFromContext(ctx)
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	metadata := masking.Metadata(e.Metadata)
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["request_id"] = requestID
	}

	targetType := strings.TrimSpace(e.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(e.TargetID),
		IPAddress:  optional(auditcontext.IPAddressFromContext(ctx)),
		UserAgent:  optional(auditcontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if orgID != 0 {
		entry.OrgID = &orgID
	}
	if metadata != nil {
		entry.Metadata = datatypes.JSONMap(metadata)
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOrganization
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	cursor, err := decodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageSize := req.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		OrgID:      orgID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), encodeCursor)
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: make([]auditdomain.AuditLog, 0, len(items))}
	for _, item := range items {
		if item != nil {
			resp.AuditLogs = append(resp.AuditLogs, *item)
		}
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, auditdomain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidPageToken
	}
	return &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}, nil
}

func encodeCursor(item *auditdomain.AuditLog) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        item.ID.String(),
		CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return ""
	}
	return token
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
