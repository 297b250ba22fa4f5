package domain

import (
	"errors"

	"github.com/smallbiznis/boqledger/internal/apperror"
)

var (
	ErrNotFound            = errors.New("not_found")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	ErrCompletionRange    = apperror.Validation("completion_out_of_range", "Completion percentage must be between 0% and 100%.")
	ErrApprovedRange      = apperror.Validation("approved_out_of_range", "Approved percentage must be between 0% and 100%.")
	ErrApprovedExceeds    = apperror.Validation("approved_exceeds_completion", "Approved percentage cannot exceed completion percentage.")
	ErrForeignSubActivity = apperror.Validation("foreign_sub_activity", "sub-activity does not belong to the certificate's BOQ")
	ErrDuplicateLine      = apperror.Validation("duplicate_certificate_line", "sub-activity is already on this certificate")

	ErrNoLines           = apperror.User("no_lines", "Cannot submit certificate without lines.")
	ErrNothingApproved   = apperror.User("nothing_approved", "No approved amounts to invoice.")
	ErrNoProgress        = apperror.User("no_progress", "No progress to invoice!")
	ErrNoInvoice         = apperror.User("no_invoice", "No invoice created yet.")
	ErrNotDraft          = apperror.User("certificate_not_draft", "certificate lines can only change while the certificate is a draft")
	ErrInvalidTransition = apperror.User("invalid_transition", "operation is not allowed in the current certificate state")
	ErrInvoiceNotPosted  = apperror.User("invoice_not_posted", "the certificate invoice is not posted yet")
	ErrInvoiceNotPaid    = apperror.User("invoice_not_paid", "the certificate invoice is not paid yet")
)
