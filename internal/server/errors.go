package server

import (
	"errors"
	"net/http"

	assetdomain "github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	"github.com/0xkuwabatake/normies-membership/internal/authorization"
	eventsdomain "github.com/0xkuwabatake/normies-membership/internal/events/domain"
	feedomain "github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	tierdomain "github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"github.com/gin-gonic/gin"
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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")

	ErrRateLimited       = errors.New("rate_limited")
	ErrRenewalInProgress = errors.New("renewal_in_progress")
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
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrRenewalInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "renewal_in_progress",
			Message: "another renewal of this asset is in flight",
		}
	case errors.Is(err, assetdomain.ErrInsufficientPayment):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_payment",
			Message: "payment below the quoted fee",
		}
	case errors.Is(err, tierdomain.ErrIllegalStateTransition):
		return http.StatusConflict, errorPayload{
			Type:    "illegal_state_transition",
			Message: "operation not legal in the current phase",
		}
	case errors.Is(err, tierdomain.ErrIllegalTiming):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "illegal_timing",
			Message: "operation outside its permitted time window",
		}
	case errors.Is(err, assetdomain.ErrUnableToUpdate):
		return http.StatusGone, errorPayload{
			Type:    "unable_to_update",
			Message: "renewal permanently disabled for this asset",
		}
	case errors.Is(err, tierdomain.ErrInvalidMagnitude),
		errors.Is(err, tierdomain.ErrInvalidTierID),
		errors.Is(err, feedomain.ErrExceedsMaxBPS),
		errors.Is(err, feedomain.ErrInvalidVariant),
		errors.Is(err, assetdomain.ErrInvalidOwner),
		errors.Is(err, assetdomain.ErrInvalidRange),
		errors.Is(err, assetdomain.ErrBatchTooLarge),
		errors.Is(err, assetdomain.ErrTierNotConfigured),
		errors.Is(err, eventsdomain.ErrInvalidEventType),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
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

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tierdomain.ErrTierNotFound),
		errors.Is(err, assetdomain.ErrAssetNotFound),
		errors.Is(err, feedomain.ErrUndefinedFee),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
