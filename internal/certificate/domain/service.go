package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type LineInput struct {
	SubActivityID     snowflake.ID `json:"sub_activity_id"`
	CompletionPercent float64      `json:"completion_percent"`
	ApprovedPercent   float64      `json:"approved_percent"`
}

type LineUpdate struct {
	CompletionPercent *float64 `json:"completion_percent"`
	ApprovedPercent   *float64 `json:"approved_percent"`
}

type CreateRequest struct {
	BoqID           snowflake.ID `json:"boq_id"`
	Name            string       `json:"name"`
	CertificateDate *time.Time   `json:"certificate_date"`
	Lines           []LineInput  `json:"lines"`
}

type ListRequest struct {
	pagination.Pagination
	BoqID  string `form:"boq_id"`
	Status Status `form:"state"`
}

type ListResponse struct {
	pagination.PageInfo
	Certificates []Certificate `json:"certificates"`
}

type ListFilter struct {
	OrgID  snowflake.ID
	BoqID  *snowflake.ID
	Status Status
	Cursor *snowflake.ID
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, c *Certificate) error
	Load(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Certificate, error)
	Save(ctx context.Context, db *gorm.DB, c *Certificate) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Certificate, error)
	FindLineCertificateID(ctx context.Context, db *gorm.DB, orgID, lineID snowflake.ID) (snowflake.ID, error)
	DeleteLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Certificate, error)
	CreateFromProgress(ctx context.Context, boqID snowflake.ID) (*Certificate, error)
	Get(ctx context.Context, id snowflake.ID) (*Certificate, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)

	AddLine(ctx context.Context, certificateID snowflake.ID, req LineInput) (*Certificate, error)
	UpdateLine(ctx context.Context, lineID snowflake.ID, req LineUpdate) (*Certificate, error)
	RemoveLine(ctx context.Context, lineID snowflake.ID) (*Certificate, error)
	SetApprovedAmount(ctx context.Context, id snowflake.ID) (*Certificate, error)

	Submit(ctx context.Context, id snowflake.ID) (*Certificate, error)
	Approve(ctx context.Context, id snowflake.ID) (*Certificate, error)
	MarkInvoiced(ctx context.Context, id snowflake.ID) (*Certificate, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (*Certificate, error)

	ViewInvoice(ctx context.Context, id snowflake.ID) (*integrationdomain.Invoice, error)
	RenderPDF(ctx context.Context, id snowflake.ID) ([]byte, error)
}
