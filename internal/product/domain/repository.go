package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]Product, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListRequest) ([]Product, error)
}
