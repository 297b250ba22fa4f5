package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	"gorm.io/datatypes"
)

// LineRequest is a single priced line of an order, invoice or purchase order.
type LineRequest struct {
	ProductID            *snowflake.ID
	Name                 string
	Quantity             float64
	UnitPrice            float64
	AnalyticDistribution datatypes.JSONMap
}

type CreateOrderRequest struct {
	OrgID     snowflake.ID
	PartnerID snowflake.ID
	Origin    string
	BoqID     *snowflake.ID
	Lines     []LineRequest
}

type CreateInvoiceRequest struct {
	OrgID       snowflake.ID
	PartnerID   snowflake.ID
	MoveType    string
	InvoiceDate time.Time
	Ref         string
	Origin      string
	Lines       []LineRequest
}

type CreateProjectRequest struct {
	OrgID             snowflake.ID
	Name              string
	PartnerID         snowflake.ID
	Manager           string
	AnalyticAccountID *snowflake.ID
}

type CreateAnalyticAccountRequest struct {
	OrgID     snowflake.ID
	Name      string
	PartnerID snowflake.ID
}

type CreatePurchaseOrderRequest struct {
	OrgID         snowflake.ID
	VendorID      snowflake.ID
	Currency      string
	Origin        string
	FromBoq       bool
	SourceBoqID   *snowflake.ID
	ActivityIDs   []snowflake.ID
	RetentionRule string
	Lines         []LineRequest
}

const MoveTypeOutInvoice = "out_invoice"

// OrderService is the sales quotation collaborator.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orgID, id snowflake.ID) (*Order, error)
	ConfirmOrder(ctx context.Context, orgID, id snowflake.ID) (*Order, error)
}

type InvoiceService interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, orgID, id snowflake.ID) (*Invoice, error)
	PostInvoice(ctx context.Context, orgID, id snowflake.ID) (*Invoice, error)
	MarkInvoicePaid(ctx context.Context, orgID, id snowflake.ID) (*Invoice, error)
}

type ProjectService interface {
	CreateProject(ctx context.Context, req CreateProjectRequest) (*ExternalProject, error)
}

type AnalyticService interface {
	CreateAnalyticAccount(ctx context.Context, req CreateAnalyticAccountRequest) (*AnalyticAccount, error)
}

type PurchaseService interface {
	CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, orgID, id snowflake.ID) (*PurchaseOrder, error)
	ConfirmPurchaseOrder(ctx context.Context, orgID, id snowflake.ID) (*PurchaseOrder, error)
	LinkSubcontractBoq(ctx context.Context, orgID, poID, boqID snowflake.ID) error
}

var (
	ErrNotFound        = errors.New("not_found")
	ErrPartnerRequired = apperror.Validation("partner_required", "partner is required")
	ErrLineName        = apperror.Validation("line_name_required", "every line needs a name")
	ErrNoLines         = apperror.Validation("no_lines", "at least one line is required")
	ErrInvalidState    = apperror.User("invalid_document_state", "document is not in a state that allows this operation")
)
