package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeClient      Type = "client"
	TypeSubcontract Type = "subcontract"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

type ActivityType string

const (
	ActivityTypeMaterial ActivityType = "material"
	ActivityTypeLabor    ActivityType = "labor"
	ActivityTypeService  ActivityType = "service"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeMaterial, ActivityTypeLabor, ActivityTypeService:
		return true
	}
	return false
}

// Project is the BOQ aggregate root. Totals, progress and retention are
// derived from the activity tree by Recompute.
type Project struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name           string       `gorm:"type:text;not null" json:"name"`
	Type           Type         `gorm:"type:text;not null" json:"boq_type"`
	Status         Status       `gorm:"type:text;not null;index" json:"state"`
	CustomerID     snowflake.ID `gorm:"not null" json:"customer_id"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	ProjectManager string       `gorm:"type:text" json:"project_manager,omitempty"`
	StartDate      *time.Time   `json:"start_date,omitempty"`
	EndDate        *time.Time   `json:"end_date,omitempty"`

	MarginPercent    float64  `gorm:"not null;default:0" json:"margin_percent"`
	RetentionRule    string   `gorm:"type:text" json:"retention_tax"`
	RetentionPercent *float64 `json:"retention_percent,omitempty"`

	AdvanceOriginalAmount     float64 `gorm:"not null;default:0" json:"advanced_payment_amount_original"`
	AdvanceOriginalPercent    float64 `gorm:"not null;default:0" json:"advanced_payment_percentage_original"`
	AdvanceOriginalRecovered  float64 `gorm:"not null;default:0" json:"advanced_payment_recovered_original"`
	AdvanceVariationAmount    float64 `gorm:"not null;default:0" json:"advanced_payment_amount_variation"`
	AdvanceVariationPercent   float64 `gorm:"not null;default:0" json:"advanced_payment_percentage_variation"`
	AdvanceVariationRecovered float64 `gorm:"not null;default:0" json:"advanced_payment_recovered_variation"`

	TotalPrevious         float64 `gorm:"not null;default:0" json:"total_previous"`
	TotalCurrent          float64 `gorm:"not null;default:0" json:"total_current"`
	Total                 float64 `gorm:"not null;default:0" json:"total"`
	BilledProgressPercent float64 `gorm:"not null;default:0" json:"billed_progress_percent"`
	OnsiteProgressPercent float64 `gorm:"not null;default:0" json:"onsite_progress_percent"`
	RetentionAmountTotal  float64 `gorm:"not null;default:0" json:"retention_amount_total"`

	SaleOrderID       *snowflake.ID `json:"sale_order_id,omitempty"`
	PurchaseOrderID   *snowflake.ID `json:"purchase_order_id,omitempty"`
	ExternalProjectID *snowflake.ID `json:"project_id,omitempty"`
	AnalyticAccountID *snowflake.ID `json:"analytic_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Activities []*Activity `gorm:"foreignKey:BoqID" json:"activities,omitempty"`
}

func (Project) TableName() string { return "boq_projects" }

type Activity struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"not null;index" json:"org_id"`
	BoqID       snowflake.ID  `gorm:"not null;index" json:"boq_id"`
	Sequence    int           `gorm:"not null;default:10" json:"sequence"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	ProductID   *snowflake.ID `json:"product_id,omitempty"`
	Description string        `gorm:"type:text" json:"description,omitempty"`

	MarginPercent         float64 `gorm:"not null;default:0" json:"margin_percent"`
	TotalPrevious         float64 `gorm:"not null;default:0" json:"total_previous"`
	TotalCurrent          float64 `gorm:"not null;default:0" json:"total_current"`
	TotalCumulative       float64 `gorm:"not null;default:0" json:"total_cumulative"`
	BilledProgressPercent float64 `gorm:"not null;default:0" json:"billed_progress_percent"`
	OnsiteProgressPercent float64 `gorm:"not null;default:0" json:"onsite_progress_percent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SubActivities []*SubActivity `gorm:"foreignKey:ActivityID" json:"sub_activities,omitempty"`
}

func (Activity) TableName() string { return "boq_activities" }

// SubActivity is a leaf ledger entry. PreviousQty only moves through
// certificate commits and MasterQty only through variations once the BOQ is
// live.
type SubActivity struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	BoqID        snowflake.ID `gorm:"not null;index" json:"boq_id"`
	ActivityID   snowflake.ID `gorm:"not null;index" json:"activity_id"`
	Sequence     int          `gorm:"not null;default:10" json:"sequence"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	ProductID    snowflake.ID `gorm:"not null" json:"product_id"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	ActivityType ActivityType `gorm:"type:text;not null" json:"activity_type"`

	MasterQty   float64 `gorm:"not null;default:0" json:"master_qty"`
	PreviousQty float64 `gorm:"not null;default:0" json:"previous_qty"`
	CurrentQty  float64 `gorm:"not null;default:0" json:"current_qty"`

	ProductCost   float64 `gorm:"not null;default:0" json:"product_cost"`
	TotalCost     float64 `gorm:"not null;default:0" json:"total_cost"`
	MarginPercent float64 `gorm:"not null;default:0" json:"margin_percent"`
	UnitPrice     float64 `gorm:"not null;default:0" json:"unit_price"`

	TotalPrevious         float64 `gorm:"not null;default:0" json:"total_previous"`
	TotalCurrent          float64 `gorm:"not null;default:0" json:"total_current"`
	TotalCumulative       float64 `gorm:"not null;default:0" json:"total_cumulative"`
	BilledProgressPercent float64 `gorm:"not null;default:0" json:"billed_progress_percent"`
	OnsiteProgressPercent float64 `gorm:"not null;default:0" json:"onsite_progress_percent"`

	IsVariation       bool          `gorm:"not null;default:false" json:"is_variation"`
	SourceVariationID *snowflake.ID `json:"source_variation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AdditionalCosts []*AdditionalCost `gorm:"foreignKey:SubActivityID" json:"additional_costs,omitempty"`
}

func (SubActivity) TableName() string { return "boq_sub_activities" }

// AdditionalCost is an extra unit-cost component of a sub-activity.
type AdditionalCost struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID  `gorm:"not null;index" json:"org_id"`
	SubActivityID snowflake.ID  `gorm:"not null;index" json:"sub_activity_id"`
	CostTypeID    *snowflake.ID `json:"cost_type_id,omitempty"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	Cost          float64       `gorm:"not null;default:0" json:"cost"`
	Description   string        `gorm:"type:text" json:"description,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (AdditionalCost) TableName() string { return "boq_additional_costs" }

// CostType is the company-wide catalog of additional cost categories.
type CostType struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;uniqueIndex:ux_cost_type_code;uniqueIndex:ux_cost_type_name" json:"org_id"`
	Name        string       `gorm:"type:text;not null;uniqueIndex:ux_cost_type_name" json:"name"`
	Code        string       `gorm:"type:text;not null;uniqueIndex:ux_cost_type_code" json:"code"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Active      bool         `gorm:"not null" json:"active"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (CostType) TableName() string { return "boq_cost_types" }
