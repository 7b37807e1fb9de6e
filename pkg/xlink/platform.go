// pkg/xlink/platform.go
package xlink

import (
	"context"
	"time"
)

// DeviceHandle is an opaque transport-owned handle to one connected
// device. It is exclusively owned by the link holding it while the link
// is up.
type DeviceHandle interface {
	Close() error
}

// Platform is the transport layer consumed by the link manager. It
// performs device discovery, firmware boot and per-connection setup and
// teardown; the manager never touches wire bytes itself.
//
// All blocking calls honor the context deadline and report PlatformTimeout
// when it is exceeded.
type Platform interface {
	// Init prepares the platform layer. Called once at manager start.
	Init() error

	// FindDevice returns the first device matching state and requirements
	FindDevice(ctx context.Context, state DeviceState, req DeviceRequirements) (DeviceDescriptor, PlatformCode)

	// FindAllDevices returns all matching devices and the total match count
	FindAllDevices(ctx context.Context, state DeviceState, req DeviceRequirements) ([]DeviceDescriptor, PlatformCode)

	// Boot uploads a firmware image to an unconnected device
	Boot(ctx context.Context, desc DeviceDescriptor, imagePath string) PlatformCode

	// Connect establishes the transport connection for one link
	Connect(ctx context.Context, desc DeviceDescriptor) (DeviceHandle, PlatformCode)

	// Reset asks the remote side to reset and tears the transport down
	Reset(ctx context.Context, handle DeviceHandle) PlatformCode

	// Clean releases a handle without a remote reset. Never fails.
	Clean(handle DeviceHandle)

	// IsDescriptorValid reports whether a descriptor is well formed for
	// the given device state
	IsDescriptorValid(desc DeviceDescriptor, state DeviceState) bool
}

// Transport is one protocol-specific backend behind the composite
// platform. Implementations live under internal/platform.
type Transport interface {
	Protocol() Protocol
	Enumerate(ctx context.Context, state DeviceState) ([]DeviceDescriptor, PlatformCode)
	Boot(ctx context.Context, desc DeviceDescriptor, imagePath string) PlatformCode
	Connect(ctx context.Context, desc DeviceDescriptor) (DeviceHandle, PlatformCode)
	Reset(ctx context.Context, handle DeviceHandle) PlatformCode
}

// ProfilingRecorder is the side channel transports use to feed the
// profiling aggregator. Implementations must be safe for concurrent use
// and cheap when profiling is disabled.
type ProfilingRecorder interface {
	RecordRead(bytes int64, elapsed time.Duration)
	RecordWrite(bytes int64, elapsed time.Duration)
	RecordBoot(elapsed time.Duration)
}
