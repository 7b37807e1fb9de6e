// internal/link/errors.go
package link

import "accel-link-service/pkg/xlink"

// translatePlatformCode maps a platform result code into the public error
// taxonomy. The mapping is total: every member of the closed PlatformCode
// set has an explicit arm and anything unrecognized falls through to
// ErrGeneric. Success maps to nil.
func translatePlatformCode(code xlink.PlatformCode) error {
	switch code {
	case xlink.PlatformSuccess:
		return nil
	case xlink.PlatformDeviceNotFound:
		return xlink.ErrDeviceNotFound
	case xlink.PlatformTimeout:
		return xlink.ErrTimeout
	case xlink.PlatformDriverError:
		return xlink.ErrCommunication
	case xlink.PlatformInvalidParameter:
		return xlink.ErrInvalidArgument
	case xlink.PlatformError:
		return xlink.ErrGeneric
	default:
		return xlink.ErrGeneric
	}
}
