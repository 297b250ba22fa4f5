package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
)

const (
	TargetBoq           = "boq"
	TargetCertificate   = "payment_certificate"
	TargetVariation     = "variation"
	TargetPartner       = "partner"
	TargetAuthorization = "authorization"
)

// Entry is one audited change. Actor fields left empty are taken from the
// request context.
type Entry struct {
	OrgID      snowflake.ID
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string     `form:"action"`
	TargetType string     `form:"target_type"`
	TargetID   string     `form:"target_id"`
	ActorType  string     `form:"actor_type"`
	StartAt    *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidAction       = errors.New("invalid_action")
)
