package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a catalog item referenced by activities and sub-activities.
// StandardCost seeds the product cost of new sub-activities.
type Product struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID `json:"org_id" gorm:"column:org_id;not null;uniqueIndex:ux_products_org_code,priority:1"`
	Code         string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_products_org_code,priority:2"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Description  string       `json:"description,omitempty" gorm:"type:text"`
	UoM          string       `json:"uom" gorm:"column:uom;type:text;not null"`
	StandardCost float64      `json:"standard_cost" gorm:"not null"`
	Active       bool         `json:"active" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
