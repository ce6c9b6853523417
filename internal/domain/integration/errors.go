package integration

import "errors"

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Field errors
	ErrUnknownField        = errors.New("integration: unknown field")
	ErrFieldKindMismatch   = errors.New("integration: field value has wrong kind")
	ErrFieldNotOperational = errors.New("integration: only ops fields may be changed by operations")

	// Order errors
	ErrOrderNotFound          = errors.New("integration: order not found")
	ErrCreationNotAllowed     = errors.New("integration: only storefront events may create orders")
	ErrOrderInvalidTransition = errors.New("integration: invalid order status transition")
	ErrOrderAlreadyOnHold     = errors.New("integration: order already on hold")
	ErrOrderNotOnHold         = errors.New("integration: order is not on hold")
	ErrShippingMethodUnmapped = errors.New("integration: shipping method has no warehouse mapping")
	ErrSplitNotAllowed        = errors.New("integration: order cannot be split after warehouse submission")
	ErrInvalidSplit           = errors.New("integration: split parts do not match order items")
	ErrOrderMissingExternalID = errors.New("integration: order external id is required")

	// Product errors
	ErrProductNotFound   = errors.New("integration: product not found")
	ErrProductMissingSKU = errors.New("integration: product SKU is required")

	// Channel errors
	ErrChannelNotFound = errors.New("integration: channel not found")

	// Sync log errors
	ErrSyncLogNotFound       = errors.New("integration: sync log entry not found")
	ErrConflictNotReviewable = errors.New("integration: sync log entry is not an unresolved conflict")
	ErrInvalidResolution     = errors.New("integration: invalid conflict resolution")

	// Pipeline errors
	ErrPipelineNotFound          = errors.New("integration: pipeline not found")
	ErrPipelineExists            = errors.New("integration: pipeline already exists for channel")
	ErrPipelineCompleted         = errors.New("integration: pipeline already completed")
	ErrPipelineAlreadyRunning    = errors.New("integration: pipeline already in progress")
	ErrPipelineRetriesExhausted  = errors.New("integration: pipeline retry limit reached")
	ErrPipelineInvalidTransition = errors.New("integration: pipeline status does not allow this operation")
	ErrPipelineStatusChanged     = errors.New("integration: pipeline status changed concurrently")

	// External platform errors
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrRemoteNotFound          = errors.New("integration: remote record not found")
	ErrDuplicate               = errors.New("integration: remote record already exists")

	// Credential errors
	ErrCredentialNotFound      = errors.New("integration: credential not found")
	ErrReauthorizationRequired = errors.New("integration: account requires re-authorization")
)

// IsTransient reports whether err is worth retrying later
func IsTransient(err error) bool {
	return errors.Is(err, ErrPlatformUnavailable) || errors.Is(err, ErrPlatformRateLimited)
}
