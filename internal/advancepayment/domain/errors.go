package domain

import (
	"errors"

	"github.com/smallbiznis/boqledger/internal/apperror"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")

	ErrInvalidLineType  = apperror.Validation("invalid_line_type", "line type must be original or variation")
	ErrInvalidMethod    = apperror.Validation("invalid_payment_method", "payment method must be percentage or amount")
	ErrPercentageRange  = apperror.Validation("percentage_out_of_range", "Percentage must be between 0% and 100%.")
	ErrNegativeAmount   = apperror.Validation("negative_amount", "Amount must be greater than zero.")
	ErrUnknownSelection = apperror.Validation("unknown_sub_activity", "selected sub-activity does not belong to the BOQ")

	ErrNoLineSelected = apperror.User("no_line_selected", "Please select at least one line for advance payment.")
	ErrZeroAmount     = apperror.User("zero_amount", "Amount must be greater than zero.")
)
