package types

// Error kinds carried in ErrorResponse.Error.
const (
	ErrKindNotFound        = "not_found"
	ErrKindConflict        = "conflict"
	ErrKindInvalidState    = "invalid_state"
	ErrKindPayloadTooLarge = "payload_too_large"
	ErrKindStorage         = "storage_failure"
	ErrKindBadRequest      = "bad_request"
	ErrKindRateLimited     = "rate_limited"
	ErrKindInternal        = "internal"
)
