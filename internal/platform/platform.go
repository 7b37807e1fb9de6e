// internal/platform/platform.go
package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/internal/platform/serial"
	"accel-link-service/internal/platform/tcp"
	"accel-link-service/internal/platform/usb"
	"accel-link-service/pkg/xlink"
)

// ProtocolHandle is implemented by every transport's device handle so the
// composite platform can route reset and cleanup calls back to the
// owning transport.
type ProtocolHandle interface {
	xlink.DeviceHandle
	Protocol() xlink.Protocol
}

// Platform multiplexes per-protocol transports behind the single
// xlink.Platform contract consumed by the link manager
type Platform struct {
	transports map[xlink.Protocol]xlink.Transport
	order      []xlink.Protocol
	logger     *zap.Logger
}

// New builds the platform from the enabled transport backends
func New(cfg *config.PlatformConfig, recorder xlink.ProfilingRecorder, logger *zap.Logger) (*Platform, error) {
	p := &Platform{
		transports: make(map[xlink.Protocol]xlink.Transport),
		logger:     logger.With(zap.String("component", "platform")),
	}

	if cfg.TCP.Enabled {
		p.register(tcp.NewTransport(&cfg.TCP, recorder, logger))
	}
	if cfg.Serial.Enabled {
		p.register(serial.NewTransport(&cfg.Serial, recorder, logger))
	}
	if cfg.USB.Enabled {
		transport, err := usb.NewTransport(&cfg.USB, recorder, logger)
		if err != nil {
			return nil, fmt.Errorf("usb transport: %w", err)
		}
		p.register(transport)
	}

	if len(p.transports) == 0 {
		return nil, fmt.Errorf("no transport backend enabled")
	}
	return p, nil
}

func (p *Platform) register(t xlink.Transport) {
	p.transports[t.Protocol()] = t
	p.order = append(p.order, t.Protocol())
	p.logger.Info("Transport registered", zap.String("protocol", string(t.Protocol())))
}

// Init logs the active backends. Transports initialize lazily on first use.
func (p *Platform) Init() error {
	protocols := make([]string, 0, len(p.order))
	for _, proto := range p.order {
		protocols = append(protocols, string(proto))
	}
	p.logger.Info("Platform initialized", zap.Strings("transports", protocols))
	return nil
}

// FindDevice returns the first device matching state and requirements,
// scanning transports in registration order
func (p *Platform) FindDevice(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) (xlink.DeviceDescriptor, xlink.PlatformCode) {
	sawTimeout := false
	for _, proto := range p.order {
		if req.Protocol != "" && req.Protocol != xlink.ProtocolAny && req.Protocol != proto {
			continue
		}
		devices, code := p.transports[proto].Enumerate(ctx, state)
		if code == xlink.PlatformTimeout {
			sawTimeout = true
			continue
		}
		if code != xlink.PlatformSuccess {
			p.logger.Warn("Transport enumeration failed",
				zap.String("protocol", string(proto)),
				zap.String("platform_code", code.String()),
			)
			continue
		}
		for _, d := range devices {
			if matches(d, state, req) {
				return d, xlink.PlatformSuccess
			}
		}
	}

	if sawTimeout {
		return xlink.DeviceDescriptor{}, xlink.PlatformTimeout
	}
	return xlink.DeviceDescriptor{}, xlink.PlatformDeviceNotFound
}

// FindAllDevices returns every matching device across all transports
func (p *Platform) FindAllDevices(ctx context.Context, state xlink.DeviceState, req xlink.DeviceRequirements) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	var all []xlink.DeviceDescriptor
	for _, proto := range p.order {
		if req.Protocol != "" && req.Protocol != xlink.ProtocolAny && req.Protocol != proto {
			continue
		}
		devices, code := p.transports[proto].Enumerate(ctx, state)
		if code != xlink.PlatformSuccess {
			p.logger.Warn("Transport enumeration failed",
				zap.String("protocol", string(proto)),
				zap.String("platform_code", code.String()),
			)
			continue
		}
		for _, d := range devices {
			if matches(d, state, req) {
				all = append(all, d)
			}
		}
	}
	return all, xlink.PlatformSuccess
}

// Boot routes the firmware upload to the device's transport
func (p *Platform) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	transport, ok := p.transports[desc.Protocol]
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	return transport.Boot(ctx, desc, imagePath)
}

// Connect routes the transport connect to the device's transport
func (p *Platform) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	transport, ok := p.transports[desc.Protocol]
	if !ok {
		return nil, xlink.PlatformInvalidParameter
	}
	return transport.Connect(ctx, desc)
}

// Reset routes a remote reset through the handle's owning transport
func (p *Platform) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	ph, ok := handle.(ProtocolHandle)
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	transport, ok := p.transports[ph.Protocol()]
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	return transport.Reset(ctx, handle)
}

// Clean releases a handle without a remote reset
func (p *Platform) Clean(handle xlink.DeviceHandle) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		p.logger.Warn("Handle cleanup failed", zap.Error(err))
	}
}

// IsDescriptorValid reports whether a descriptor can be acted on
func (p *Platform) IsDescriptorValid(desc xlink.DeviceDescriptor, state xlink.DeviceState) bool {
	if desc.Name == "" {
		return false
	}
	if _, ok := p.transports[desc.Protocol]; !ok {
		return false
	}
	if state != xlink.DeviceStateAny && desc.State != xlink.DeviceStateAny && desc.State != state {
		return false
	}
	return true
}

func matches(desc xlink.DeviceDescriptor, state xlink.DeviceState, req xlink.DeviceRequirements) bool {
	if state != xlink.DeviceStateAny && desc.State != state {
		return false
	}
	return req.Matches(desc)
}
