package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Product, error)
	List(ctx context.Context, req ListRequest) ([]Product, error)
	Get(ctx context.Context, id snowflake.ID) (*Product, error)
	// GetMany returns the products keyed by id; unknown ids are skipped.
	GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Product, error)
}

type ListRequest struct {
	Name   string `form:"name"`
	Active *bool  `form:"active"`
}

type CreateRequest struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	UoM          string  `json:"uom"`
	StandardCost float64 `json:"standard_cost"`
	Active       *bool   `json:"active"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidCost         = errors.New("invalid_standard_cost")
	ErrDuplicateCode       = errors.New("duplicate_code")
	ErrNotFound            = errors.New("not_found")
)
