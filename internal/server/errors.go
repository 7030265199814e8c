package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/audio"
	computedomain "github.com/stemforge/stemforge/internal/compute/domain"
	identitydomain "github.com/stemforge/stemforge/internal/identity/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	pipelinedomain "github.com/stemforge/stemforge/internal/pipeline/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
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
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
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
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isBadRequestError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, accountdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "credit balance does not cover this request",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, accountdomain.ErrAccountDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: err.Error(),
		}
	case errors.Is(err, computedomain.ErrJobTimeout):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "job_timeout",
			Message: "processing did not finish in time",
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

func isBadRequestError(err error) bool {
	switch {
	case errors.Is(err, pipelinedomain.ErrInvalidStems),
		errors.Is(err, audio.ErrUnreadableAudio),
		errors.Is(err, pricingdomain.ErrUnknownService),
		errors.Is(err, accountdomain.ErrInvalidID),
		errors.Is(err, rechargedomain.ErrInvalidAmount),
		errors.Is(err, rechargedomain.ErrUnknownPriceID),
		errors.Is(err, rechargedomain.ErrSignatureMismatch),
		errors.Is(err, rechargedomain.ErrAmountMismatch),
		errors.Is(err, invitedomain.ErrCodeInactive),
		errors.Is(err, invitedomain.ErrCodeNotYetValid),
		errors.Is(err, invitedomain.ErrCodeExpired),
		errors.Is(err, invitedomain.ErrCodeExhausted):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, invitedomain.ErrCodeNotFound),
		errors.Is(err, rechargedomain.ErrUnknownOrder),
		errors.Is(err, identitydomain.ErrUnknownIdentity),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, pipelinedomain.ErrBusy),
		errors.Is(err, pipelinedomain.ErrBillingConflict),
		errors.Is(err, invitedomain.ErrCodeAlreadyApplied),
		errors.Is(err, invitedomain.ErrPermanentTier):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	switch {
	case errors.Is(err, computedomain.ErrJobFailed),
		errors.Is(err, computedomain.ErrPoolRequest),
		errors.Is(err, rechargedomain.ErrRailRequest),
		errors.Is(err, identitydomain.ErrDirectoryRequest):
		return true
	default:
		return false
	}
}
