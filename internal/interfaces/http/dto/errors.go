package dto

import (
	"errors"
	"net/http"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUpstreamUnavailable is used when a storefront or the warehouse cannot be reached
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
)

// Sync error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for the current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeRetriesExhausted is used when a pipeline has no retries left
	ErrCodeRetriesExhausted = "ERR_RETRIES_EXHAUSTED"
	// ErrCodeFieldNotAllowed is used when an operator writes a field it does not own
	ErrCodeFieldNotAllowed = "ERR_FIELD_NOT_ALLOWED"
	// ErrCodeReauthorization is used when the warehouse account needs a new grant
	ErrCodeReauthorization = "ERR_REAUTHORIZATION_REQUIRED"
	// ErrCodeNotConfigured is used when a platform has no adapter
	ErrCodeNotConfigured = "ERR_NOT_CONFIGURED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeUpstreamUnavailable: http.StatusBadGateway,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	ErrCodeInvalidState:     http.StatusUnprocessableEntity,
	ErrCodeRetriesExhausted: http.StatusUnprocessableEntity,
	ErrCodeFieldNotAllowed:  http.StatusUnprocessableEntity,
	ErrCodeReauthorization:  http.StatusUnprocessableEntity,
	ErrCodeNotConfigured:    http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// domainCodeMapping maps shared.DomainError codes to API codes
var domainCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"INVALID_ENTITY_TYPE":  ErrCodeInvalidInput,
}

// sentinelCodes maps domain sentinel errors to API codes, checked in order
var sentinelCodes = []struct {
	err  error
	code string
}{
	{integration.ErrOrderNotFound, ErrCodeNotFound},
	{integration.ErrProductNotFound, ErrCodeNotFound},
	{integration.ErrChannelNotFound, ErrCodeNotFound},
	{integration.ErrSyncLogNotFound, ErrCodeNotFound},
	{integration.ErrPipelineNotFound, ErrCodeNotFound},
	{integration.ErrCredentialNotFound, ErrCodeNotFound},

	{integration.ErrUnknownField, ErrCodeInvalidInput},
	{integration.ErrFieldKindMismatch, ErrCodeInvalidInput},
	{integration.ErrInvalidSplit, ErrCodeInvalidInput},
	{integration.ErrInvalidResolution, ErrCodeInvalidInput},
	{integration.ErrOrderMissingExternalID, ErrCodeInvalidInput},
	{integration.ErrProductMissingSKU, ErrCodeInvalidInput},

	{integration.ErrFieldNotOperational, ErrCodeFieldNotAllowed},
	{integration.ErrCreationNotAllowed, ErrCodeFieldNotAllowed},

	{integration.ErrPipelineRetriesExhausted, ErrCodeRetriesExhausted},
	{integration.ErrPipelineExists, ErrCodeConflict},
	{integration.ErrPipelineAlreadyRunning, ErrCodeConflict},
	{integration.ErrPipelineStatusChanged, ErrCodeConflict},
	{integration.ErrPipelineCompleted, ErrCodeInvalidState},
	{integration.ErrPipelineInvalidTransition, ErrCodeInvalidState},
	{integration.ErrOrderInvalidTransition, ErrCodeInvalidState},
	{integration.ErrOrderAlreadyOnHold, ErrCodeInvalidState},
	{integration.ErrOrderNotOnHold, ErrCodeInvalidState},
	{integration.ErrSplitNotAllowed, ErrCodeInvalidState},
	{integration.ErrShippingMethodUnmapped, ErrCodeInvalidState},
	{integration.ErrConflictNotReviewable, ErrCodeInvalidState},

	{integration.ErrReauthorizationRequired, ErrCodeReauthorization},
	{integration.ErrPlatformNotConfigured, ErrCodeNotConfigured},
	{integration.ErrPlatformUnavailable, ErrCodeUpstreamUnavailable},
	{integration.ErrPlatformRateLimited, ErrCodeUpstreamUnavailable},
}

// CodeForError derives the API error code and client-safe message for err. Unknown
// errors map to ErrCodeInternal with a generic message.
func CodeForError(err error) (code, message string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		if mapped, ok := domainCodeMapping[domainErr.Code]; ok {
			return mapped, domainErr.Message
		}
		return domainErr.Code, domainErr.Message
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code, err.Error()
		}
	}
	return ErrCodeInternal, "An unexpected error occurred"
}
