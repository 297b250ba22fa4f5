package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID  snowflake.ID
	Status Status
	Type   Type
	Name   string
	Cursor *snowflake.ID
	Limit  int
}

// Repository persists the BOQ aggregate. LoadAggregate with forUpdate locks
// the root row for the rest of the transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Project) error
	LoadAggregate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, forUpdate bool) (*Project, error)
	SaveAggregate(ctx context.Context, db *gorm.DB, p *Project) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Project, error)

	FindActivityBoqID(ctx context.Context, db *gorm.DB, orgID, activityID snowflake.ID) (snowflake.ID, error)
	FindSubActivityBoqID(ctx context.Context, db *gorm.DB, orgID, subID snowflake.ID) (snowflake.ID, error)
	FindAdditionalCostBoqID(ctx context.Context, db *gorm.DB, orgID, costID snowflake.ID) (snowflake.ID, error)
	FindBySaleOrder(ctx context.Context, db *gorm.DB, orgID, orderID snowflake.ID) (*Project, error)
	FindByPurchaseOrder(ctx context.Context, db *gorm.DB, orgID, orderID snowflake.ID) (*Project, error)

	DeleteActivity(ctx context.Context, db *gorm.DB, activityID snowflake.ID) error
	DeleteSubActivity(ctx context.Context, db *gorm.DB, subID snowflake.ID) error
	DeleteAdditionalCost(ctx context.Context, db *gorm.DB, costID snowflake.ID) error
	SubActivityReferenced(ctx context.Context, db *gorm.DB, subIDs []snowflake.ID) (bool, error)

	InsertCostType(ctx context.Context, db *gorm.DB, ct *CostType) error
	ListCostTypes(ctx context.Context, db *gorm.DB, orgID snowflake.ID, activeOnly bool) ([]CostType, error)
}
