// internal/link/manager.go
package link

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"accel-link-service/pkg/xlink"
)

// Config carries the manager's runtime settings
type Config struct {
	MaxLinks       int
	ConnectTimeout time.Duration
	BootTimeout    time.Duration
	ResetTimeout   time.Duration

	// SkipDeviceReset turns ResetAll into a no-op for configurations
	// where devices must not be restarted
	SkipDeviceReset bool
}

// Manager drives links through their connect/boot/reset lifecycle and
// fronts device discovery. Registry mutation happens in short critical
// sections; blocking platform calls are made with no registry lock held
// so a slow boot on one link never stalls the others.
type Manager struct {
	registry *Registry
	platform xlink.Platform
	profiler *Profiler
	config   Config
	logger   *zap.Logger
}

// NewManager initializes the platform layer and creates a manager with an
// empty registry. The profiler may be shared with the platform layer so
// transport reads and writes land in the same counters; a nil profiler
// gets a fresh one.
func NewManager(cfg Config, platform xlink.Platform, profiler *Profiler, logger *zap.Logger) (*Manager, error) {
	if platform == nil {
		return nil, fmt.Errorf("%w: platform is required", xlink.ErrInvalidArgument)
	}
	if profiler == nil {
		profiler = NewProfiler()
	}

	registry, err := NewRegistry(cfg.MaxLinks, logger)
	if err != nil {
		return nil, err
	}

	if err := platform.Init(); err != nil {
		return nil, fmt.Errorf("platform init failed: %w", err)
	}

	return &Manager{
		registry: registry,
		platform: platform,
		profiler: profiler,
		config:   cfg,
		logger:   logger.With(zap.String("component", "link-manager")),
	}, nil
}

// Registry exposes the slot table for read-only inspection
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Profiler returns the profiling aggregator
func (m *Manager) Profiler() *Profiler {
	return m.profiler
}

// Connect allocates a slot and a unique ID, performs the transport
// connect and returns the new link's ID with the link up. On any platform
// failure the reservation is fully unwound before the error is returned;
// a failed connect never leaks a busy slot.
func (m *Manager) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.LinkID, error) {
	if desc.Name == "" {
		return xlink.InvalidLinkID, fmt.Errorf("%w: device name is required", xlink.ErrInvalidArgument)
	}

	id, err := m.registry.Allocate(desc)
	if err != nil {
		return xlink.InvalidLinkID, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	handle, code := m.platform.Connect(connectCtx, desc)
	if err := translatePlatformCode(code); err != nil {
		m.logger.Error("Transport connect failed",
			zap.Uint32("link_id", uint32(id)),
			zap.String("device", desc.Name),
			zap.String("platform_code", code.String()),
		)
		if relErr := m.registry.Release(id); relErr != nil {
			m.logger.Error("Failed to unwind link slot", zap.Error(relErr))
		}
		return xlink.InvalidLinkID, fmt.Errorf("connect %s: %w", desc.Name, err)
	}

	if err := m.registry.MarkUp(id, handle); err != nil {
		m.platform.Clean(handle)
		return xlink.InvalidLinkID, err
	}

	m.logger.Info("Link up",
		zap.Uint32("link_id", uint32(id)),
		zap.String("device", desc.Name),
		zap.String("protocol", string(desc.Protocol)),
	)
	return id, nil
}

// Reset resets an Up link and frees its slot. Resetting a link that is
// not up returns ErrAlreadyInState without side effects, so repeated
// resets are safe to issue.
func (m *Manager) Reset(ctx context.Context, id xlink.LinkID) error {
	handle, err := m.registry.MarkResetting(id)
	if err != nil {
		return err
	}

	resetCtx, cancel := context.WithTimeout(ctx, m.config.ResetTimeout)
	defer cancel()

	code := m.platform.Reset(resetCtx, handle)
	if resetErr := translatePlatformCode(code); resetErr != nil {
		// The slot is still released: a failed remote reset must not
		// strand the slot as busy forever.
		m.logger.Warn("Remote reset failed, releasing slot anyway",
			zap.Uint32("link_id", uint32(id)),
			zap.String("platform_code", code.String()),
		)
		m.platform.Clean(handle)
	}

	if err := m.registry.Release(id); err != nil {
		return err
	}

	m.logger.Info("Link down", zap.Uint32("link_id", uint32(id)))
	return translatePlatformCode(code)
}

// ResetAll resets every active link independently, best effort: a failure
// on one link does not stop the iteration. When device resets are
// disabled by configuration this is a no-op.
func (m *Manager) ResetAll(ctx context.Context) (reset int, failed int) {
	if m.config.SkipDeviceReset {
		m.logger.Info("Device resets disabled by configuration, skipping reset-all")
		return 0, 0
	}

	for _, id := range m.registry.ActiveIDs() {
		if err := m.Reset(ctx, id); err != nil {
			m.logger.Warn("Reset failed during reset-all",
				zap.Uint32("link_id", uint32(id)),
				zap.Error(err),
			)
			failed++
			continue
		}
		reset++
	}
	return reset, failed
}

// Boot uploads a firmware image to an unconnected device. No slot is held
// for a boot-only operation.
func (m *Manager) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) error {
	if desc.Name == "" || imagePath == "" {
		return fmt.Errorf("%w: device name and image path are required", xlink.ErrInvalidArgument)
	}

	bootCtx, cancel := context.WithTimeout(ctx, m.config.BootTimeout)
	defer cancel()

	start := time.Now()
	code := m.platform.Boot(bootCtx, desc, imagePath)
	if err := translatePlatformCode(code); err != nil {
		m.logger.Error("Device boot failed",
			zap.String("device", desc.Name),
			zap.String("image", imagePath),
			zap.String("platform_code", code.String()),
		)
		return fmt.Errorf("boot %s: %w", desc.Name, err)
	}

	m.profiler.RecordBoot(time.Since(start))
	m.logger.Info("Device booted",
		zap.String("device", desc.Name),
		zap.Duration("boot_time", time.Since(start)),
	)
	return nil
}

// FindFirst returns the first device matching the given state and
// requirements
func (m *Manager) FindFirst(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, error) {
	desc, code := m.platform.FindDevice(ctx, state, req)
	if err := translatePlatformCode(code); err != nil {
		return xlink.DeviceDescriptor{}, err
	}
	return desc, nil
}

// FindAll returns up to capacity matching devices plus the total match
// count. The list is truncated rather than overflowing the requested
// capacity; total reports how many actually matched.
func (m *Manager) FindAll(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements, capacity int) ([]xlink.DeviceDescriptor, int, error) {
	if capacity <= 0 {
		return nil, 0, fmt.Errorf("%w: capacity must be positive", xlink.ErrInvalidArgument)
	}

	devices, code := m.platform.FindAllDevices(ctx, state, req)
	if err := translatePlatformCode(code); err != nil {
		return nil, 0, err
	}

	total := len(devices)
	if total > capacity {
		devices = devices[:capacity]
	}
	return devices, total, nil
}

// IsDescriptorValid delegates descriptor validation to the platform
func (m *Manager) IsDescriptorValid(desc xlink.DeviceDescriptor, state xlink.DeviceState) bool {
	return m.platform.IsDescriptorValid(desc, state)
}

// Links returns the external view of all active links
func (m *Manager) Links() []xlink.LinkInfo {
	return m.registry.Links()
}

// Shutdown tears down all active links
func (m *Manager) Shutdown(ctx context.Context) {
	reset, failed := m.ResetAll(ctx)
	m.logger.Info("Link manager shut down",
		zap.Int("links_reset", reset),
		zap.Int("links_failed", failed),
	)
}
