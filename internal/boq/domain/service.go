package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
)

type CreateRequest struct {
	Name             string       `json:"name"`
	Type             Type         `json:"boq_type"`
	CustomerID       snowflake.ID `json:"customer_id"`
	Currency         string       `json:"currency"`
	ProjectManager   string       `json:"project_manager"`
	StartDate        *time.Time   `json:"start_date"`
	EndDate          *time.Time   `json:"end_date"`
	MarginPercent    float64      `json:"margin_percent"`
	RetentionRule    string       `json:"retention_tax"`
	RetentionPercent *float64     `json:"retention_percent"`
}

type UpdateRequest struct {
	Name             *string       `json:"name"`
	CustomerID       *snowflake.ID `json:"customer_id"`
	Currency         *string       `json:"currency"`
	ProjectManager   *string       `json:"project_manager"`
	StartDate        *time.Time    `json:"start_date"`
	EndDate          *time.Time    `json:"end_date"`
	MarginPercent    *float64      `json:"margin_percent"`
	RetentionRule    *string       `json:"retention_tax"`
	RetentionPercent *float64      `json:"retention_percent"`
}

type ListRequest struct {
	pagination.Pagination
	Status Status `form:"state"`
	Type   Type   `form:"boq_type"`
	Name   string `form:"name"`
}

type ListResponse struct {
	pagination.PageInfo
	Projects []Project `json:"boqs"`
}

// ActivityInput creates an activity. A nil Sequence takes the next slot and
// a nil MarginPercent copies the BOQ margin.
type ActivityInput struct {
	Name          string        `json:"name"`
	Sequence      *int          `json:"sequence"`
	ProductID     *snowflake.ID `json:"product_id"`
	Description   string        `json:"description"`
	MarginPercent *float64      `json:"margin_percent"`
}

type ActivityUpdate struct {
	Name          *string  `json:"name"`
	Sequence      *int     `json:"sequence"`
	Description   *string  `json:"description"`
	MarginPercent *float64 `json:"margin_percent"`
}

type AdditionalCostInput struct {
	CostTypeID  *snowflake.ID `json:"cost_type_id"`
	Name        string        `json:"name"`
	Cost        float64       `json:"cost"`
	Description string        `json:"description"`
}

// SubActivityInput creates a sub-activity. A nil ProductCost copies the
// product's standard cost and a nil MarginPercent copies the activity margin.
type SubActivityInput struct {
	ProductID       snowflake.ID          `json:"product_id"`
	Description     string                `json:"description"`
	ActivityType    ActivityType          `json:"activity_type"`
	Sequence        *int                  `json:"sequence"`
	MasterQty       float64               `json:"master_qty"`
	CurrentQty      float64               `json:"current_qty"`
	ProductCost     *float64              `json:"product_cost"`
	MarginPercent   *float64              `json:"margin_percent"`
	AdditionalCosts []AdditionalCostInput `json:"additional_costs"`
}

// SubActivityUpdate edits a sub-activity. PreviousQty is not editable here;
// it only moves through certificate commits.
type SubActivityUpdate struct {
	Description   *string       `json:"description"`
	ActivityType  *ActivityType `json:"activity_type"`
	Sequence      *int          `json:"sequence"`
	MasterQty     *float64      `json:"master_qty"`
	CurrentQty    *float64      `json:"current_qty"`
	ProductCost   *float64      `json:"product_cost"`
	MarginPercent *float64      `json:"margin_percent"`
}

type CreateCostTypeRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Project, error)
	Get(ctx context.Context, id snowflake.ID) (*Project, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateRequest) (*Project, error)

	AddActivity(ctx context.Context, boqID snowflake.ID, req ActivityInput) (*Activity, error)
	UpdateActivity(ctx context.Context, activityID snowflake.ID, req ActivityUpdate) (*Activity, error)
	RemoveActivity(ctx context.Context, activityID snowflake.ID) error

	AddSubActivity(ctx context.Context, activityID snowflake.ID, req SubActivityInput) (*SubActivity, error)
	UpdateSubActivity(ctx context.Context, subID snowflake.ID, req SubActivityUpdate) (*SubActivity, error)
	RemoveSubActivity(ctx context.Context, subID snowflake.ID) error
	AddAdditionalCost(ctx context.Context, subID snowflake.ID, req AdditionalCostInput) (*SubActivity, error)
	RemoveAdditionalCost(ctx context.Context, costID snowflake.ID) (*SubActivity, error)

	Submit(ctx context.Context, id snowflake.ID) (*Project, error)
	Approve(ctx context.Context, id snowflake.ID) (*Project, error)
	StartProgress(ctx context.Context, id snowflake.ID) (*Project, error)
	MarkDone(ctx context.Context, id snowflake.ID) (*Project, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Project, error)
	ResetToDraft(ctx context.Context, id snowflake.ID) (*Project, error)
	HandleOrderConfirmed(ctx context.Context, orderID snowflake.ID) (*Project, error)

	CreateCostType(ctx context.Context, req CreateCostTypeRequest) (*CostType, error)
	ListCostTypes(ctx context.Context) ([]CostType, error)
}
