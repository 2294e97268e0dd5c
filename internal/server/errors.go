package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/kudos/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	"github.com/smallbiznis/kudos/internal/authorization"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
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

// classifyErrorForLog feeds the request logger the same type/code pair the
// client receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

// fieldError names the request field a domain validation sentinel refers to.
type fieldError struct {
	err     error
	field   string
	message string
}

var fieldErrors = []fieldError{
	{ErrInvalidRequest, "request", "invalid request"},
	{paymentdomain.ErrInvalidRequest, "request", "invalid request"},
	{paymentdomain.ErrInvalidCampaign, "campaign", "unknown campaign"},
	{paymentdomain.ErrInvalidAmount, "amount", "invalid amount"},
	{paymentdomain.ErrAmountTooLow, "amount", "amount is below the campaign minimum"},
	{paymentdomain.ErrAmountTooHigh, "amount", "amount is above the campaign maximum"},
	{paymentdomain.ErrInvalidEmail, "email", "invalid email"},
	{paymentdomain.ErrRecurringNotAllowed, "interval", "recurring donations are not enabled for this campaign"},
	{paymentdomain.ErrInvalidFrequency, "frequency", "frequency not offered by this campaign"},
	{paymentdomain.ErrInvalidDuration, "duration", "duration not offered by this campaign"},
	{campaigndomain.ErrInvalidName, "name", "name is required"},
	{campaigndomain.ErrInvalidCurrency, "currency", "invalid currency"},
	{campaigndomain.ErrInvalidAmount, "amount", "invalid amount"},
	{campaigndomain.ErrInvalidID, "id", "invalid id"},
	{apikeydomain.ErrInvalidName, "name", "name is required"},
	{apikeydomain.ErrInvalidRole, "role", "role must be admin or viewer"},
	{apikeydomain.ErrInvalidKeyID, "key_id", "invalid key id"},
	{subscriptiondomain.ErrInvalidSubscription, "subscription", "invalid subscription"},
	{subscriptiondomain.ErrInvalidInterval, "interval", "invalid interval"},
	{auditdomain.ErrInvalidPageToken, "page_token", "invalid page token"},
	{auditdomain.ErrInvalidTimeRange, "start_at", "start_at must not be after end_at"},
	{auditdomain.ErrInvalidAction, "action", "invalid action"},
}

// errorClass maps a group of sentinels to one HTTP status and error type.
type errorClass struct {
	status  int
	typ     string
	message string
	match   func(error) bool
}

func isAny(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized",
		isAny(ErrUnauthorized, apikeydomain.ErrUnauthorized)},
	{http.StatusForbidden, "forbidden", "forbidden",
		isAny(ErrForbidden, authorization.ErrForbidden, authorization.ErrInvalidRole)},
	{http.StatusConflict, "conflict", "conflict",
		isAny(ErrConflict, campaigndomain.ErrSlugTaken, gorm.ErrDuplicatedKey)},
	{http.StatusNotFound, "not_found", "not found",
		isAny(ErrNotFound, campaigndomain.ErrNotFound, apikeydomain.ErrNotFound, subscriptiondomain.ErrSubscriptionNotFound, gorm.ErrRecordNotFound)},
	{http.StatusTooManyRequests, "rate_limited", "too many requests",
		isAny(ErrRateLimited)},
	{http.StatusBadGateway, "gateway_error", "payment provider unavailable",
		gatewaydomain.IsGatewayError},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable",
		isAny(ErrServiceUnavailable)},
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	for _, fe := range fieldErrors {
		if errors.Is(err, fe.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: fe.field, Code: fe.err.Error(), Message: fe.message}},
			}
		}
	}
	for _, class := range errorClasses {
		if class.match(err) {
			return class.status, errorPayload{Type: class.typ, Message: class.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
