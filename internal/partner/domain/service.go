package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/pkg/db/pagination"
)

type ListPartnerRequest struct {
	pagination.Pagination
	Role string `form:"role"`
}

type ListPartnerResponse struct {
	pagination.PageInfo
	Partners []Partner `json:"partners"`
}

type CreatePartnerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsCustomer bool   `json:"is_customer"`
	IsVendor   bool   `json:"is_vendor"`
}

type Service interface {
	Create(ctx context.Context, req CreatePartnerRequest) (Partner, error)
	GetByID(ctx context.Context, id snowflake.ID) (Partner, error)
	List(ctx context.Context, req ListPartnerRequest) (ListPartnerResponse, error)
}

const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrNotFound            = errors.New("not_found")
)
