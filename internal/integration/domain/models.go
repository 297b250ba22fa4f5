package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"not null;index" json:"org_id"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	PartnerID   snowflake.ID  `gorm:"not null" json:"partner_id"`
	Origin      string        `gorm:"type:text" json:"origin,omitempty"`
	BoqID       *snowflake.ID `json:"boq_id,omitempty"`
	Status      OrderStatus   `gorm:"type:text;not null" json:"state"`
	AmountTotal float64       `gorm:"not null" json:"amount_total"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Lines       []OrderLine   `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

func (Order) TableName() string { return "sale_orders" }

type OrderLine struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrderID              snowflake.ID      `gorm:"not null;index" json:"order_id"`
	ProductID            *snowflake.ID     `json:"product_id,omitempty"`
	Name                 string            `gorm:"type:text;not null" json:"name"`
	Quantity             float64           `gorm:"not null" json:"quantity"`
	UnitPrice            float64           `gorm:"not null" json:"price_unit"`
	Subtotal             float64           `gorm:"not null" json:"price_subtotal"`
	AnalyticDistribution datatypes.JSONMap `json:"analytic_distribution,omitempty"`
}

func (OrderLine) TableName() string { return "sale_order_lines" }

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPosted    InvoiceStatus = "posted"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Posted reports whether the invoice has left draft. Paid invoices are
// posted too.
func (s InvoiceStatus) Posted() bool {
	return s == InvoiceStatusPosted || s == InvoiceStatusPaid
}

type Invoice struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"not null;index" json:"org_id"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	PartnerID   snowflake.ID  `gorm:"not null" json:"partner_id"`
	MoveType    string        `gorm:"type:text;not null" json:"move_type"`
	InvoiceDate time.Time     `gorm:"not null" json:"invoice_date"`
	Ref         string        `gorm:"type:text" json:"ref,omitempty"`
	Origin      string        `gorm:"type:text" json:"invoice_origin,omitempty"`
	Status      InvoiceStatus `gorm:"type:text;not null" json:"state"`
	AmountTotal float64       `gorm:"not null" json:"amount_total"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Lines       []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceLine struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceID            snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	ProductID            *snowflake.ID     `json:"product_id,omitempty"`
	Name                 string            `gorm:"type:text;not null" json:"name"`
	Quantity             float64           `gorm:"not null" json:"quantity"`
	UnitPrice            float64           `gorm:"not null" json:"price_unit"`
	Subtotal             float64           `gorm:"not null" json:"price_subtotal"`
	AnalyticDistribution datatypes.JSONMap `json:"analytic_distribution,omitempty"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

type ExternalProject struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID  `gorm:"not null;index" json:"org_id"`
	Name              string        `gorm:"type:text;not null" json:"name"`
	PartnerID         snowflake.ID  `gorm:"not null" json:"partner_id"`
	Manager           string        `gorm:"type:text" json:"user_id,omitempty"`
	AnalyticAccountID *snowflake.ID `json:"analytic_account_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (ExternalProject) TableName() string { return "projects" }

type AnalyticAccount struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Code      string       `gorm:"type:text;not null" json:"code"`
	PartnerID snowflake.ID `gorm:"not null" json:"partner_id"`
	CreatedAt time.Time    `json:"created_at"`
}

func (AnalyticAccount) TableName() string { return "analytic_accounts" }

type PurchaseStatus string

const (
	PurchaseStatusDraft     PurchaseStatus = "draft"
	PurchaseStatusConfirmed PurchaseStatus = "purchase"
	PurchaseStatusCancelled PurchaseStatus = "cancel"
)

// PurchaseOrder optionally originates from a BOQ subcontract selection.
type PurchaseOrder struct {
	ID               snowflake.ID                      `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID                      `gorm:"not null;index" json:"org_id"`
	Name             string                            `gorm:"type:text;not null" json:"name"`
	VendorID         snowflake.ID                      `gorm:"not null" json:"partner_id"`
	Currency         string                            `gorm:"type:text;not null" json:"currency"`
	Origin           string                            `gorm:"type:text" json:"origin,omitempty"`
	FromBoq          bool                              `gorm:"not null" json:"from_boq"`
	SourceBoqID      *snowflake.ID                     `json:"source_boq_id,omitempty"`
	SubcontractBoqID *snowflake.ID                     `json:"subcontract_boq_id,omitempty"`
	ActivityIDs      datatypes.JSONSlice[snowflake.ID] `json:"boq_activity_ids,omitempty"`
	RetentionRule    string                            `gorm:"type:text" json:"retention_tax"`
	Status           PurchaseStatus                    `gorm:"type:text;not null" json:"state"`
	AmountTotal      float64                           `gorm:"not null" json:"amount_total"`
	CreatedAt        time.Time                         `json:"created_at"`
	UpdatedAt        time.Time                         `json:"updated_at"`
	Lines            []PurchaseOrderLine               `gorm:"foreignKey:PurchaseOrderID" json:"lines,omitempty"`
}

func (PurchaseOrder) TableName() string { return "purchase_orders" }

type PurchaseOrderLine struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	PurchaseOrderID      snowflake.ID      `gorm:"not null;index" json:"order_id"`
	ProductID            snowflake.ID      `gorm:"not null" json:"product_id"`
	Name                 string            `gorm:"type:text;not null" json:"name"`
	Quantity             float64           `gorm:"not null" json:"product_qty"`
	UnitPrice            float64           `gorm:"not null" json:"price_unit"`
	Subtotal             float64           `gorm:"not null" json:"price_subtotal"`
	AnalyticDistribution datatypes.JSONMap `json:"analytic_distribution,omitempty"`
}

func (PurchaseOrderLine) TableName() string { return "purchase_order_lines" }

// Distribution is the 100% allocation attached to every generated line when
// the BOQ carries an analytic account.
func Distribution(accountID *snowflake.ID) datatypes.JSONMap {
	if accountID == nil || *accountID == 0 {
		return nil
	}
	return datatypes.JSONMap{accountID.String(): 100}
}
