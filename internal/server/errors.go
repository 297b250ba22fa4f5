package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	advancedomain "github.com/smallbiznis/boqledger/internal/advancepayment/domain"
	"github.com/smallbiznis/boqledger/internal/apperror"
	auditdomain "github.com/smallbiznis/boqledger/internal/audit/domain"
	"github.com/smallbiznis/boqledger/internal/authorization"
	boqdomain "github.com/smallbiznis/boqledger/internal/boq/domain"
	certificatedomain "github.com/smallbiznis/boqledger/internal/certificate/domain"
	integrationdomain "github.com/smallbiznis/boqledger/internal/integration/domain"
	margindomain "github.com/smallbiznis/boqledger/internal/margin/domain"
	partnerdomain "github.com/smallbiznis/boqledger/internal/partner/domain"
	productdomain "github.com/smallbiznis/boqledger/internal/product/domain"
	"github.com/smallbiznis/boqledger/internal/providers/pdf"
	subcontractdomain "github.com/smallbiznis/boqledger/internal/subcontract/domain"
	variationdomain "github.com/smallbiznis/boqledger/internal/variation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger the same type and code the
// client receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Rejected domain operations carry their own kind and code; the
	// message names the offending record.
	if kind, ok := apperror.KindOf(err); ok {
		status := http.StatusBadRequest
		if kind == apperror.KindUser {
			status = http.StatusConflict
		}
		return status, errorPayload{
			Type:    string(kind),
			Code:    apperror.CodeOf(err),
			Message: err.Error(),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, productdomain.ErrDuplicateCode):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, pdf.ErrDisabled):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case errors.Is(err, boqdomain.ErrInvalidOrganization),
		errors.Is(err, boqdomain.ErrInvalidPageToken),
		errors.Is(err, certificatedomain.ErrInvalidOrganization),
		errors.Is(err, certificatedomain.ErrInvalidPageToken),
		errors.Is(err, variationdomain.ErrInvalidOrganization),
		errors.Is(err, variationdomain.ErrInvalidPageToken),
		errors.Is(err, advancedomain.ErrInvalidOrganization),
		errors.Is(err, margindomain.ErrInvalidOrganization),
		errors.Is(err, subcontractdomain.ErrInvalidOrganization):
		return true
	case isCatalogValidationError(err),
		isAuditValidationError(err),
		isAuthorizationValidationError(err):
		return true
	default:
		return false
	}
}

func isCatalogValidationError(err error) bool {
	switch {
	case errors.Is(err, productdomain.ErrInvalidOrganization),
		errors.Is(err, productdomain.ErrInvalidCode),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidCost),
		errors.Is(err, partnerdomain.ErrInvalidOrganization),
		errors.Is(err, partnerdomain.ErrInvalidName),
		errors.Is(err, partnerdomain.ErrInvalidEmail),
		errors.Is(err, partnerdomain.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isAuthorizationValidationError(err error) bool {
	switch {
	case errors.Is(err, authorization.ErrInvalidOrganization),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction),
		errors.Is(err, authorization.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, boqdomain.ErrNotFound),
		errors.Is(err, certificatedomain.ErrNotFound),
		errors.Is(err, variationdomain.ErrNotFound),
		errors.Is(err, integrationdomain.ErrNotFound),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, partnerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
