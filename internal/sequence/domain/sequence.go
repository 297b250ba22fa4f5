package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Sequence holds the next number issued for a code within a company.
type Sequence struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrgID      snowflake.ID `gorm:"not null;uniqueIndex:ux_sequences_org_code,priority:1"`
	Code       string       `gorm:"type:text;not null;uniqueIndex:ux_sequences_org_code,priority:2"`
	NextNumber int64        `gorm:"not null"`
}

func (Sequence) TableName() string { return "sequences" }

// Service issues reference names. Next accepts the caller's transaction so
// numbering rolls back with the record it names.
type Service interface {
	Next(ctx context.Context, db *gorm.DB, orgID snowflake.ID, code string) (string, error)
}

var ErrInvalidCode = errors.New("invalid_sequence_code")
