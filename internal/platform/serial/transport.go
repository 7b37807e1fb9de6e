// internal/platform/serial/transport.go
package serial

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/pkg/xlink"
)

// resetSequence asks the attached device firmware to reboot
var resetSequence = []byte("RST\r\n")

// Transport reaches accelerator devices attached over serial ports
type Transport struct {
	config   *config.SerialPlatformConfig
	recorder xlink.ProfilingRecorder
	logger   *zap.Logger
}

// Handle is the transport handle for one open serial port
type Handle struct {
	port serial.Port
	name string
}

// Close closes the port
func (h *Handle) Close() error {
	if h.port == nil {
		return nil
	}
	return h.port.Close()
}

// Protocol identifies the owning transport
func (h *Handle) Protocol() xlink.Protocol {
	return xlink.ProtocolSerial
}

// NewTransport creates the serial transport
func NewTransport(cfg *config.SerialPlatformConfig, recorder xlink.ProfilingRecorder, logger *zap.Logger) *Transport {
	return &Transport{
		config:   cfg,
		recorder: recorder,
		logger:   logger.With(zap.String("transport", "serial")),
	}
}

// Protocol returns the transport protocol
func (t *Transport) Protocol() xlink.Protocol {
	return xlink.ProtocolSerial
}

// Enumerate lists serial ports matching the configured patterns. Boot
// state cannot be read from the port list, so devices report as booted.
func (t *Transport) Enumerate(ctx context.Context, state xlink.DeviceState) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	ports, err := serial.GetPortsList()
	if err != nil {
		t.logger.Error("Failed to list serial ports", zap.Error(err))
		return nil, xlink.PlatformDriverError
	}

	var devices []xlink.DeviceDescriptor
	for _, port := range ports {
		if !t.matchesPattern(port) {
			continue
		}
		devices = append(devices, xlink.DeviceDescriptor{
			Name:     port,
			Protocol: xlink.ProtocolSerial,
			State:    xlink.DeviceStateBooted,
		})
	}
	return devices, xlink.PlatformSuccess
}

// Boot streams a firmware image over the port
func (t *Transport) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	image, err := os.Open(imagePath)
	if err != nil {
		t.logger.Error("Failed to open boot image", zap.String("image", imagePath), zap.Error(err))
		return xlink.PlatformInvalidParameter
	}
	defer image.Close()

	port, code := t.open(desc.Name)
	if code != xlink.PlatformSuccess {
		return code
	}
	defer port.Close()

	start := time.Now()
	written, err := io.Copy(port, image)
	if err != nil {
		t.logger.Error("Boot image upload failed",
			zap.String("device", desc.Name),
			zap.Int64("bytes_written", written),
			zap.Error(err),
		)
		return xlink.PlatformDriverError
	}
	t.recorder.RecordWrite(written, time.Since(start))

	t.logger.Info("Boot image uploaded",
		zap.String("device", desc.Name),
		zap.Int64("image_bytes", written),
	)
	return xlink.PlatformSuccess
}

// Connect opens the device's port
func (t *Transport) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	port, code := t.open(desc.Name)
	if code != xlink.PlatformSuccess {
		return nil, code
	}

	t.logger.Info("Device connected", zap.String("device", desc.Name))
	return &Handle{port: port, name: desc.Name}, xlink.PlatformSuccess
}

// Reset sends the reset sequence and closes the port
func (t *Transport) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	h, ok := handle.(*Handle)
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	defer h.Close()

	start := time.Now()
	n, err := h.port.Write(resetSequence)
	if err != nil {
		t.logger.Warn("Reset sequence write failed", zap.String("device", h.name), zap.Error(err))
		return xlink.PlatformDriverError
	}
	t.recorder.RecordWrite(int64(n), time.Since(start))

	t.logger.Info("Device reset", zap.String("device", h.name))
	return xlink.PlatformSuccess
}

func (t *Transport) open(portName string) (serial.Port, xlink.PlatformCode) {
	mode := &serial.Mode{
		BaudRate: t.config.BaudRate,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		t.logger.Error("Failed to open serial port", zap.String("port", portName), zap.Error(err))
		return nil, xlink.PlatformDeviceNotFound
	}

	if t.config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(t.config.ReadTimeout); err != nil {
			port.Close()
			t.logger.Error("Failed to set read timeout", zap.String("port", portName), zap.Error(err))
			return nil, xlink.PlatformDriverError
		}
	}
	return port, xlink.PlatformSuccess
}

func (t *Transport) matchesPattern(port string) bool {
	if len(t.config.PortPatterns) == 0 {
		return true
	}
	for _, pattern := range t.config.PortPatterns {
		if strings.Contains(port, pattern) {
			return true
		}
	}
	return false
}
