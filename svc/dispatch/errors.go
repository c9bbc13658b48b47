package dispatch

import "errors"

var (
	// ErrLockContention means another process owns the current minute window.
	ErrLockContention = errors.New("dispatch window already locked")

	// ErrConfigurationMissing means the owner has no active API settings or instance.
	ErrConfigurationMissing = errors.New("owner has no active messaging configuration")

	// ErrQuotaExceeded means the owner reached the daily send limit.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrMediaMissing means a media operation was requested without a media reference.
	ErrMediaMissing = errors.New("media not configured for definition")

	ErrPolicyNotFound = errors.New("quota policy not found")
	ErrMediaNotFound  = errors.New("media record not found")

	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidTime       = errors.New("invalid time of day")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrInvalidDefinition = errors.New("invalid message definition")
	ErrInvalidBatchSize  = errors.New("batch size must be positive")
	ErrInvalidTimezone   = errors.New("invalid timezone")
	ErrUnknownOperation  = errors.New("unknown send operation kind")
	ErrStoreNil          = errors.New("store cannot be nil")
	ErrLockerNil         = errors.New("locker cannot be nil")
	ErrSubmitterNil      = errors.New("submitter cannot be nil")
	ErrEnqueuerNil       = errors.New("enqueuer cannot be nil")
	ErrCredentialsNil    = errors.New("credential resolver cannot be nil")
	ErrQuotaTrackerNil   = errors.New("quota tracker cannot be nil")
	ErrTriggerRunning    = errors.New("trigger already running")
	ErrTriggerNotRunning = errors.New("trigger not running")
)
