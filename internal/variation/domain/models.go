package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusToSubmit  Status = "to_submit"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusApplied   Status = "applied"
	StatusRefused   Status = "refused"
	StatusCancelled Status = "cancelled"
)

type ActionType string

const (
	ActionEdit        ActionType = "edit"
	ActionAdd         ActionType = "add"
	ActionNewActivity ActionType = "new_activity"
)

func (t ActionType) Valid() bool {
	switch t {
	case ActionEdit, ActionAdd, ActionNewActivity:
		return true
	}
	return false
}

const DefaultCategory = "Variation Order"

// Variation is a change order against a live BOQ. Its lines only reach the
// ledger through Apply once the variation is approved.
type Variation struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	BoqID       snowflake.ID `gorm:"not null;index" json:"boq_id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Status      Status       `gorm:"type:text;not null;index" json:"state"`
	Category    string       `gorm:"type:text" json:"category"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Reason      string       `gorm:"type:text" json:"reason,omitempty"`
	RequestedBy string       `gorm:"type:text" json:"request_owner,omitempty"`

	Approvers    datatypes.JSONSlice[string] `json:"approver_ids"`
	ApprovedBy   datatypes.JSONSlice[string] `json:"approved_by_ids"`
	ApprovalDate *time.Time                  `json:"approval_date,omitempty"`
	AppliedAt    *time.Time                  `json:"applied_at,omitempty"`

	TotalVariationAmount float64 `gorm:"not null;default:0" json:"total_variation_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lines []*Line `gorm:"foreignKey:VariationID" json:"lines,omitempty"`
}

func (Variation) TableName() string { return "boq_variations" }

// Line is one requested change. Edit lines carry a snapshot of the target
// sub-activity taken when the target was selected.
type Line struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;index" json:"org_id"`
	VariationID snowflake.ID `gorm:"not null;index" json:"variation_id"`
	ActionType  ActionType   `gorm:"type:text;not null" json:"action_type"`
	DisplayName string       `gorm:"type:text" json:"display_name"`

	TargetSubActivityID *snowflake.ID          `gorm:"index" json:"target_subactivity_id,omitempty"`
	TargetActivityID    *snowflake.ID          `json:"target_activity_id,omitempty"`
	ActivityName        string                 `gorm:"type:text" json:"activity_name,omitempty"`
	ProductID           *snowflake.ID          `json:"product_id,omitempty"`
	Description         string                 `gorm:"type:text" json:"description,omitempty"`
	ActivityType        boqdomain.ActivityType `gorm:"type:text;not null" json:"activity_type"`

	OriginalQty    float64 `gorm:"not null;default:0" json:"original_qty"`
	OriginalCost   float64 `gorm:"not null;default:0" json:"original_cost"`
	OriginalMargin float64 `gorm:"not null;default:0" json:"original_margin"`
	OriginalTotal  float64 `gorm:"not null;default:0" json:"original_total_amount"`

	NewQty       float64 `gorm:"not null;default:0" json:"new_qty"`
	NewCost      float64 `gorm:"not null;default:0" json:"new_cost"`
	NewMargin    float64 `gorm:"not null;default:0" json:"new_margin"`
	NewUnitPrice float64 `gorm:"not null;default:0" json:"new_unit_price"`
	NewTotal     float64 `gorm:"not null;default:0" json:"new_total_amount"`

	QtyVariation    float64 `gorm:"not null;default:0" json:"qty_variation"`
	CostVariation   float64 `gorm:"not null;default:0" json:"cost_variation"`
	VariationAmount float64 `gorm:"not null;default:0" json:"variation_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Line) TableName() string { return "boq_variation_lines" }
