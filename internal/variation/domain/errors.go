package domain

import (
	"errors"

	"github.com/smallbiznis/boqledger/internal/apperror"
)

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	ErrDescriptionRequired       = apperror.Validation("description_required", "variation description is required")
	ErrApproverRequired          = apperror.Validation("approver_required", "At least one approver must be assigned for submitted variations.")
	ErrInvalidActionType         = apperror.Validation("invalid_action_type", "action type must be edit, add or new_activity")
	ErrTargetSubActivityRequired = apperror.Validation("target_subactivity_required", "Target sub-activity is required for edit actions.")
	ErrTargetActivityRequired    = apperror.Validation("target_activity_required", "Target activity is required for add actions.")
	ErrActivityNameRequired      = apperror.Validation("activity_name_required", "Activity name is required for new activity actions.")
	ErrForeignTarget             = apperror.Validation("foreign_target", "variation target does not belong to the variation's BOQ")
	ErrNegativeQty               = apperror.Validation("negative_new_qty", "New quantity cannot be negative.")
	ErrNegativeCost              = apperror.Validation("negative_new_cost", "New cost cannot be negative.")
	ErrMarginRange               = apperror.Validation("new_margin_out_of_range", "New margin must be between 0% and 100%.")
	ErrUnknownProduct            = apperror.Validation("unknown_product", "product does not exist")
	ErrInvalidActivityType       = apperror.Validation("invalid_activity_type", "activity type must be material, labor or service")

	ErrNoChanges         = apperror.User("no_changes", "Cannot submit variation without any changes.")
	ErrNotApproved       = apperror.User("variation_not_approved", "Only approved variations can be applied.")
	ErrInvalidTransition = apperror.User("invalid_transition", "operation is not allowed in the current variation state")
	ErrNotEditable       = apperror.User("variation_not_editable", "variation lines can only change before the variation is submitted")
	ErrActorRequired     = apperror.User("actor_required", "approving a variation requires an identified user")
)
