package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Partner is a customer of client BOQs or a vendor of subcontract BOQs.
type Partner struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID `gorm:"not null;index" json:"org_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Email      string       `gorm:"type:text" json:"email,omitempty"`
	IsCustomer bool         `gorm:"not null" json:"is_customer"`
	IsVendor   bool         `gorm:"not null" json:"is_vendor"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }
