package core

import "errors"

// Error families. Package-specific errors wrap one of these so callers can
// branch on the family with errors.Is.
var (
	ErrInitialization     = errors.New("initialization error")
	ErrAttestation        = errors.New("attestation error")
	ErrExecution          = errors.New("execution error")
	ErrResultMismatch     = errors.New("result mismatch between backends")
	ErrStateMismatch      = errors.New("state hash mismatch between backends")
	ErrConfiguration      = errors.New("configuration error")
	ErrNetwork            = errors.New("network error")
	ErrRegion             = errors.New("region error")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

var (
	ErrUnknownPlatform    = errors.New("unknown platform")
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrInvalidExecutor    = errors.New("invalid executor ID")
)

// Retryable reports whether err is a transient transport failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
