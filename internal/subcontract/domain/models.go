package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boqledger/internal/apperror"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrVendorRequired   = apperror.Validation("vendor_required", "a subcontractor is required")
	ErrUnitCostRequired = apperror.Validation("unit_cost_required", "Unit cost must be greater than zero for selected activities.")
	ErrForeignActivity  = apperror.Validation("foreign_activity", "activity does not belong to the source BOQ")
	ErrNothingSelected  = apperror.User("no_activity_selected", "Please select at least one activity to subcontract.")
	ErrEmptySelection   = apperror.User("empty_selection", "the selected activities have no sub-activities")
)

// Selection picks one activity of the source BOQ at a unit cost.
type Selection struct {
	ActivityID snowflake.ID `json:"activity_id"`
	UnitCost   float64      `json:"unit_cost"`
}

type Request struct {
	BoqID       snowflake.ID `json:"boq_id"`
	VendorID    snowflake.ID `json:"vendor_id"`
	ProjectName string       `json:"project_name"`
	Selections  []Selection  `json:"lines"`
}

// Line is one activity of the source BOQ as offered for subcontracting.
type Line struct {
	ActivityID     snowflake.ID `json:"activity_id"`
	ActivityName   string       `json:"activity_name"`
	Selected       bool         `json:"selected"`
	UnitCost       float64      `json:"unit_cost"`
	TotalQuantity  float64      `json:"total_quantity"`
	EstimatedTotal float64      `json:"estimated_total"`
}

type Wizard struct {
	BoqID       snowflake.ID `json:"boq_id"`
	VendorID    snowflake.ID `json:"vendor_id"`
	ProjectName string       `json:"project_name"`
	Currency    string       `json:"currency"`
	Lines       []Line       `json:"lines"`
}

type Service interface {
	Preview(ctx context.Context, req Request) (*Wizard, error)
	CreatePurchaseOrder(ctx context.Context, req Request) (*integrationdomain.PurchaseOrder, error)
	// ConfirmPurchaseOrder confirms the order and, for orders created from
	// a BOQ, builds the mirrored subcontract BOQ. The BOQ is nil for other
	// orders.
	ConfirmPurchaseOrder(ctx context.Context, poID snowflake.ID) (*integrationdomain.PurchaseOrder, *boqdomain.Project, error)
}
