// internal/platform/tcp/transport.go
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/pkg/xlink"
)

// resetCommand is the control frame asking the remote side to reboot
var resetCommand = []byte{0x52, 0x53, 0x54, 0x00}

// Transport reaches network-attached accelerator devices listed in the
// configuration
type Transport struct {
	config   *config.TCPPlatformConfig
	recorder xlink.ProfilingRecorder
	logger   *zap.Logger
}

// Handle is the transport handle for one connected TCP device
type Handle struct {
	conn net.Conn
	name string
}

// Close closes the underlying connection
func (h *Handle) Close() error {
	if h.conn == nil {
		return nil
	}
	return h.conn.Close()
}

// Protocol identifies the owning transport
func (h *Handle) Protocol() xlink.Protocol {
	return xlink.ProtocolTCP
}

// NewTransport creates the TCP transport
func NewTransport(cfg *config.TCPPlatformConfig, recorder xlink.ProfilingRecorder, logger *zap.Logger) *Transport {
	return &Transport{
		config:   cfg,
		recorder: recorder,
		logger:   logger.With(zap.String("transport", "tcp")),
	}
}

// Protocol returns the transport protocol
func (t *Transport) Protocol() xlink.Protocol {
	return xlink.ProtocolTCP
}

// Enumerate lists the configured network devices. Reachability is not
// probed here; connect failures surface on Connect.
func (t *Transport) Enumerate(ctx context.Context, state xlink.DeviceState) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	devices := make([]xlink.DeviceDescriptor, 0, len(t.config.Devices))
	for _, dev := range t.config.Devices {
		deviceState := xlink.DeviceStateUnbooted
		if dev.Booted {
			deviceState = xlink.DeviceStateBooted
		}
		devices = append(devices, xlink.DeviceDescriptor{
			Name:     dev.Name,
			Protocol: xlink.ProtocolTCP,
			State:    deviceState,
		})
	}
	return devices, xlink.PlatformSuccess
}

// Boot streams a firmware image to the device's boot listener
func (t *Transport) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	address, ok := t.addressOf(desc.Name)
	if !ok {
		return xlink.PlatformDeviceNotFound
	}

	image, err := os.Open(imagePath)
	if err != nil {
		t.logger.Error("Failed to open boot image", zap.String("image", imagePath), zap.Error(err))
		return xlink.PlatformInvalidParameter
	}
	defer image.Close()

	conn, code := t.dial(ctx, address)
	if code != xlink.PlatformSuccess {
		return code
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	start := time.Now()
	written, err := io.Copy(conn, image)
	if err != nil {
		t.logger.Error("Boot image upload failed",
			zap.String("device", desc.Name),
			zap.Int64("bytes_written", written),
			zap.Error(err),
		)
		return codeForNetError(err)
	}
	t.recorder.RecordWrite(written, time.Since(start))

	t.logger.Info("Boot image uploaded",
		zap.String("device", desc.Name),
		zap.Int64("image_bytes", written),
	)
	return xlink.PlatformSuccess
}

// Connect dials the device and returns the connection handle
func (t *Transport) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	address, ok := t.addressOf(desc.Name)
	if !ok {
		return nil, xlink.PlatformDeviceNotFound
	}

	conn, code := t.dial(ctx, address)
	if code != xlink.PlatformSuccess {
		return nil, code
	}

	t.logger.Info("Device connected",
		zap.String("device", desc.Name),
		zap.String("address", address),
	)
	return &Handle{conn: conn, name: desc.Name}, xlink.PlatformSuccess
}

// Reset sends the reset command and tears the connection down
func (t *Transport) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	h, ok := handle.(*Handle)
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	defer h.Close()

	if deadline, ok := ctx.Deadline(); ok {
		h.conn.SetWriteDeadline(deadline)
	}

	start := time.Now()
	n, err := h.conn.Write(resetCommand)
	if err != nil {
		t.logger.Warn("Reset command write failed", zap.String("device", h.name), zap.Error(err))
		return codeForNetError(err)
	}
	t.recorder.RecordWrite(int64(n), time.Since(start))

	t.logger.Info("Device reset", zap.String("device", h.name))
	return xlink.PlatformSuccess
}

func (t *Transport) dial(ctx context.Context, address string) (net.Conn, xlink.PlatformCode) {
	dialer := &net.Dialer{
		Timeout: t.config.ConnectTimeout,
	}
	if t.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		t.logger.Error("Failed to dial device", zap.String("address", address), zap.Error(err))
		return nil, codeForNetError(err)
	}
	return conn, xlink.PlatformSuccess
}

func (t *Transport) addressOf(name string) (string, bool) {
	for _, dev := range t.config.Devices {
		if dev.Name == name {
			return dev.Address, true
		}
	}
	return "", false
}

func codeForNetError(err error) xlink.PlatformCode {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return xlink.PlatformTimeout
	}
	return xlink.PlatformDriverError
}
