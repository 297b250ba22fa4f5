package domain

import (
	"errors"

	"github.com/smallbiznis/boqledger/internal/apperror"
)

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	ErrNegativeQuantity    = apperror.Validation("negative_quantity", "quantities cannot be negative")
	ErrOverBilled          = apperror.Validation("over_billed", "total progress cannot exceed master quantity")
	ErrMarginOutOfRange    = apperror.Validation("margin_out_of_range", "margin percentage must be between 0 and 100")
	ErrNegativeMargin      = apperror.Validation("negative_margin", "margin percentage cannot be negative")
	ErrNegativeCost        = apperror.Validation("negative_cost", "cost cannot be negative")
	ErrInvalidDates        = apperror.Validation("invalid_dates", "start date cannot be after end date")
	ErrInvalidActivityType = apperror.Validation("invalid_activity_type", "activity type must be material, labor or service")
	ErrNameRequired        = apperror.Validation("name_required", "name is required")
	ErrProductRequired     = apperror.Validation("product_required", "product is required")
	ErrCustomerRequired    = apperror.Validation("customer_required", "customer is required")
	ErrCostTypeExists      = apperror.Validation("cost_type_exists", "cost type name and code must be unique per company")
	ErrInvalidType         = apperror.Validation("invalid_boq_type", "boq type must be client or subcontract")
	ErrInvalidRetention    = apperror.Validation("invalid_retention", "retention percentage must be between 0 and 100")

	ErrNoActivities       = apperror.User("no_activities", "Cannot submit BOQ without activity lines.")
	ErrNoOrderLines       = apperror.User("no_order_lines", "No activities with amounts to create sale order.")
	ErrInvalidTransition  = apperror.User("invalid_transition", "operation is not allowed in the current state")
	ErrReferenceImmutable = apperror.User("reference_immutable", "record is referenced by a certificate or variation and cannot be removed")
	ErrStructureLocked    = apperror.User("structure_locked", "quantities and prices of a live BOQ change only through variations")
	ErrClosed             = apperror.User("boq_closed", "BOQ is done or cancelled")
)
