package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/natidev-sh/natiweb/internal/admin"
	apikeydomain "github.com/natidev-sh/natiweb/internal/apikey/domain"
	"github.com/natidev-sh/natiweb/internal/authorization"
	coupondomain "github.com/natidev-sh/natiweb/internal/coupon/domain"
	"github.com/natidev-sh/natiweb/internal/credit"
	"github.com/natidev-sh/natiweb/internal/identity"
	paymentdomain "github.com/natidev-sh/natiweb/internal/payment/domain"
	profiledomain "github.com/natidev-sh/natiweb/internal/profile/domain"
	"github.com/natidev-sh/natiweb/internal/upstream"
)

const (
	errorTypeUnauthorized = "unauthorized"
	errorTypeForbidden    = "forbidden"
	errorTypeValidation   = "validation_error"
	errorTypeNotFound     = "not_found"
	errorTypeConflict     = "conflict"
	errorTypeUpstream     = "upstream_error"
	errorTypePersistence  = "persistence_error"
	errorTypeSignature    = "signature_error"
	errorTypePayload      = "invalid_payload"
	errorTypeRateLimited  = "rate_limited"
	errorTypeInternal     = "internal_error"
)

// apiError is an error that already knows its HTTP rendering.
type apiError struct {
	status  int
	kind    string
	message string
}

func (e *apiError) Error() string { return e.message }

var (
	ErrUnauthorized = &apiError{status: http.StatusUnauthorized, kind: errorTypeUnauthorized, message: "authentication required"}
	ErrForbidden    = &apiError{status: http.StatusForbidden, kind: errorTypeForbidden, message: "forbidden"}
	ErrNotFound     = &apiError{status: http.StatusNotFound, kind: errorTypeNotFound, message: "not found"}
	ErrRateLimited  = &apiError{status: http.StatusTooManyRequests, kind: errorTypeRateLimited, message: "too many requests"}
)

type validationError struct {
	field   string
	code    string
	message string
}

func (e *validationError) Error() string { return e.message }

func newValidationError(field, code, message string) error {
	return &validationError{field: field, code: code, message: message}
}

func invalidRequestError() error {
	return newValidationError("", "invalid_request", "invalid request body")
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

// AbortWithError renders err as {"error":{...}} and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	status, body := renderError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func renderError(err error) (int, errorBody) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status, errorBody{Type: apiErr.kind, Message: apiErr.message}
	}
	var vErr *validationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorBody{Type: errorTypeValidation, Message: vErr.message, Code: vErr.code, Field: vErr.field}
	}
	if upErr, ok := upstream.As(err); ok {
		return http.StatusInternalServerError, errorBody{
			Type:    errorTypeUpstream,
			Message: upstreamMessage(upErr),
		}
	}

	switch {
	case errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Type: errorTypeUnauthorized, Message: "invalid or expired token"}

	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, apikeydomain.ErrKeyNotOwned),
		errors.Is(err, credit.ErrKeyNotOwned):
		return http.StatusForbidden, errorBody{Type: errorTypeForbidden, Message: "forbidden", Code: err.Error()}

	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorBody{Type: errorTypeSignature, Message: "webhook signature verification failed", Code: err.Error()}

	case errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorBody{Type: errorTypePayload, Message: "webhook payload could not be decoded", Code: err.Error()}

	case isValidationError(err):
		return http.StatusBadRequest, errorBody{Type: errorTypeValidation, Message: err.Error(), Code: err.Error()}

	case errors.Is(err, credit.ErrNoKey),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, coupondomain.ErrNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound, errorBody{Type: errorTypeNotFound, Message: err.Error(), Code: err.Error()}

	case errors.Is(err, coupondomain.ErrCodeExists),
		errors.Is(err, coupondomain.ErrNotActivated):
		return http.StatusConflict, errorBody{Type: errorTypeConflict, Message: err.Error(), Code: err.Error()}

	case errors.Is(err, apikeydomain.ErrPersistence):
		return http.StatusInternalServerError, errorBody{Type: errorTypePersistence, Message: "failed to persist record", Code: err.Error()}

	case errors.Is(err, paymentdomain.ErrInvalidConfig),
		errors.Is(err, paymentdomain.ErrProfileNotFound):
		return http.StatusInternalServerError, errorBody{Type: errorTypeInternal, Message: err.Error(), Code: err.Error()}
	}

	return http.StatusInternalServerError, errorBody{Type: errorTypeInternal, Message: "internal error"}
}

func isValidationError(err error) bool {
	validation := []error{
		apikeydomain.ErrInvalidUser,
		apikeydomain.ErrKeysRequired,
		apikeydomain.ErrInvalidMetadata,
		credit.ErrAPIKeyRequired,
		paymentdomain.ErrInvalidPlan,
		paymentdomain.ErrInvalidCoupon,
		paymentdomain.ErrInvalidEvent,
		coupondomain.ErrInvalidCode,
		coupondomain.ErrInvalidDiscountType,
		coupondomain.ErrInvalidDiscountValue,
		coupondomain.ErrInvalidDuration,
		coupondomain.ErrMonthsRequired,
		coupondomain.ErrInvalidRedemptions,
		coupondomain.ErrInvalidExpiry,
		coupondomain.ErrPromoCodeMismatch,
		profiledomain.ErrInvalidRole,
		identity.ErrInvalidUser,
		admin.ErrUserIDRequired,
		admin.ErrInvalidUserID,
		admin.ErrNoUpdates,
		admin.ErrInvalidAction,
		admin.ErrSelfTarget,
		admin.ErrInvalidDuration,
	}
	for _, target := range validation {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func upstreamMessage(err *upstream.Error) string {
	if err.Status == 0 {
		return fmt.Sprintf("%s %s failed: unreachable", err.Service, err.Operation)
	}
	return fmt.Sprintf("%s %s failed with status %d", err.Service, err.Operation, err.Status)
}
