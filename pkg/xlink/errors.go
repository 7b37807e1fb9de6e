// pkg/xlink/errors.go
package xlink

import "errors"

// Public error taxonomy. Manager operations return exactly one of these,
// possibly wrapped with context; callers match with errors.Is.
var (
	// ErrInvalidArgument indicates a malformed descriptor, path or request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrResourceExhausted indicates the link pool or ID space is full.
	// This is a resource-limit condition, not a transient failure.
	ErrResourceExhausted = errors.New("link pool exhausted")

	// ErrDeviceNotFound indicates no device matched the discovery criteria
	ErrDeviceNotFound = errors.New("device not found")

	// ErrLinkNotFound indicates no active link holds the given ID
	ErrLinkNotFound = errors.New("link not found")

	// ErrTimeout indicates a platform call exceeded its bound
	ErrTimeout = errors.New("platform call timed out")

	// ErrCommunication indicates a transport-level failure during
	// connect or boot
	ErrCommunication = errors.New("communication failure")

	// ErrAlreadyInState indicates the requested transition is a no-op,
	// e.g. resetting a link that is already down
	ErrAlreadyInState = errors.New("link already in requested state")

	// ErrGeneric covers unclassified platform failures
	ErrGeneric = errors.New("link operation failed")
)

// PlatformCode is the closed set of result codes reported by the
// platform layer. The link manager translates these into the public
// taxonomy at every boundary crossing.
type PlatformCode int

const (
	PlatformSuccess PlatformCode = iota
	PlatformDeviceNotFound
	PlatformTimeout
	PlatformDriverError
	PlatformInvalidParameter
	PlatformError
)

// String returns the code name for logging
func (c PlatformCode) String() string {
	switch c {
	case PlatformSuccess:
		return "SUCCESS"
	case PlatformDeviceNotFound:
		return "DEVICE_NOT_FOUND"
	case PlatformTimeout:
		return "TIMEOUT"
	case PlatformDriverError:
		return "DRIVER_ERROR"
	case PlatformInvalidParameter:
		return "INVALID_PARAMETER"
	case PlatformError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
