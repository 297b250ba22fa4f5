package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRequest struct {
	BoqID       snowflake.ID `json:"boq_id"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Reason      string       `json:"reason"`
	Approvers   []string     `json:"approver_ids"`
}

type UpdateRequest struct {
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Reason      *string `json:"reason"`
}

// LineInput adds a line. New values left nil default to the target's
// current values on edit lines and to zero otherwise.
type LineInput struct {
	ActionType          ActionType             `json:"action_type"`
	TargetSubActivityID *snowflake.ID          `json:"target_subactivity_id"`
	TargetActivityID    *snowflake.ID          `json:"target_activity_id"`
	ActivityName        string                 `json:"activity_name"`
	ProductID           *snowflake.ID          `json:"product_id"`
	Description         *string                `json:"description"`
	ActivityType        boqdomain.ActivityType `json:"activity_type"`
	NewQty              *float64               `json:"new_qty"`
	NewCost             *float64               `json:"new_cost"`
	NewMargin           *float64               `json:"new_margin"`
}

type LineUpdate struct {
	ActivityName *string                 `json:"activity_name"`
	ProductID    *snowflake.ID           `json:"product_id"`
	Description  *string                 `json:"description"`
	ActivityType *boqdomain.ActivityType `json:"activity_type"`
	NewQty       *float64                `json:"new_qty"`
	NewCost      *float64                `json:"new_cost"`
	NewMargin    *float64                `json:"new_margin"`
}

type ListRequest struct {
	pagination.Pagination
	BoqID  string `form:"boq_id"`
	Status Status `form:"state"`
}

type ListResponse struct {
	pagination.PageInfo
	Variations []Variation `json:"variations"`
}

type ListFilter struct {
	OrgID  snowflake.ID
	BoqID  *snowflake.ID
	Status Status
	Cursor *snowflake.ID
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, v *Variation) error
	Load(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Variation, error)
	Save(ctx context.Context, db *gorm.DB, v *Variation) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Variation, error)
	FindLineVariationID(ctx context.Context, db *gorm.DB, orgID, lineID snowflake.ID) (snowflake.ID, error)
	DeleteLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Variation, error)
	Get(ctx context.Context, id snowflake.ID) (*Variation, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Variation, error)
	SetApprovers(ctx context.Context, id snowflake.ID, approvers []string) (*Variation, error)

	AddLine(ctx context.Context, variationID snowflake.ID, req LineInput) (*Variation, error)
	UpdateLine(ctx context.Context, lineID snowflake.ID, req LineUpdate) (*Variation, error)
	RemoveLine(ctx context.Context, lineID snowflake.ID) (*Variation, error)

	MarkToSubmit(ctx context.Context, id snowflake.ID) (*Variation, error)
	Submit(ctx context.Context, id snowflake.ID) (*Variation, error)
	Approve(ctx context.Context, id snowflake.ID) (*Variation, error)
	Refuse(ctx context.Context, id snowflake.ID) (*Variation, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Variation, error)
	Apply(ctx context.Context, id snowflake.ID) (*Variation, error)
}
