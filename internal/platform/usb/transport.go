// internal/platform/usb/transport.go
package usb

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"accel-link-service/internal/config"
	"accel-link-service/pkg/xlink"
)

// Transport reaches accelerator devices on the USB bus. Unbooted devices
// enumerate under the boot product ID and re-enumerate under the runtime
// product ID after a firmware upload.
type Transport struct {
	config        *config.USBPlatformConfig
	recorder      xlink.ProfilingRecorder
	logger        *zap.Logger
	vendorID      gousb.ID
	productID     gousb.ID
	bootProductID gousb.ID
}

// Handle is the transport handle for one claimed USB device
type Handle struct {
	ctx      *gousb.Context
	dev      *gousb.Device
	intfDone func()
	out      *gousb.OutEndpoint
	name     string
}

// Close releases the claimed interface and the device
func (h *Handle) Close() error {
	if h.intfDone != nil {
		h.intfDone()
		h.intfDone = nil
	}
	var err error
	if h.dev != nil {
		err = h.dev.Close()
		h.dev = nil
	}
	if h.ctx != nil {
		if cerr := h.ctx.Close(); err == nil {
			err = cerr
		}
		h.ctx = nil
	}
	return err
}

// Protocol identifies the owning transport
func (h *Handle) Protocol() xlink.Protocol {
	return xlink.ProtocolUSB
}

// NewTransport creates the USB transport. The configured IDs are
// validated here so a bad config fails at startup rather than on the
// first bus scan.
func NewTransport(cfg *config.USBPlatformConfig, recorder xlink.ProfilingRecorder, logger *zap.Logger) (*Transport, error) {
	vendorID, err := parseUSBID(cfg.VendorID)
	if err != nil {
		return nil, fmt.Errorf("invalid vendor_id %q: %w", cfg.VendorID, err)
	}
	productID, err := parseUSBID(cfg.ProductID)
	if err != nil {
		return nil, fmt.Errorf("invalid product_id %q: %w", cfg.ProductID, err)
	}
	bootProductID, err := parseUSBID(cfg.BootProductID)
	if err != nil {
		return nil, fmt.Errorf("invalid boot_product_id %q: %w", cfg.BootProductID, err)
	}

	return &Transport{
		config:        cfg,
		recorder:      recorder,
		logger:        logger.With(zap.String("transport", "usb")),
		vendorID:      vendorID,
		productID:     productID,
		bootProductID: bootProductID,
	}, nil
}

// Protocol returns the transport protocol
func (t *Transport) Protocol() xlink.Protocol {
	return xlink.ProtocolUSB
}

// Enumerate scans the bus for devices carrying either of the configured
// product IDs
func (t *Transport) Enumerate(ctx context.Context, state xlink.DeviceState) ([]xlink.DeviceDescriptor, xlink.PlatformCode) {
	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == t.vendorID &&
			(desc.Product == t.productID || desc.Product == t.bootProductID)
	})
	for _, dev := range devs {
		dev.Close()
	}
	if err != nil {
		t.logger.Error("USB bus scan failed", zap.Error(err))
		return nil, xlink.PlatformDriverError
	}

	var devices []xlink.DeviceDescriptor
	for _, dev := range devs {
		desc := dev.Desc
		deviceState := xlink.DeviceStateUnbooted
		if desc.Product == t.productID {
			deviceState = xlink.DeviceStateBooted
		}
		devices = append(devices, xlink.DeviceDescriptor{
			Name:     deviceName(desc),
			Protocol: xlink.ProtocolUSB,
			State:    deviceState,
		})
	}
	return devices, xlink.PlatformSuccess
}

// Boot streams a firmware image to the device's boot endpoint. The
// device re-enumerates under the runtime product ID afterwards.
func (t *Transport) Boot(ctx context.Context, desc xlink.DeviceDescriptor, imagePath string) xlink.PlatformCode {
	image, err := os.Open(imagePath)
	if err != nil {
		t.logger.Error("Failed to open boot image", zap.String("image", imagePath), zap.Error(err))
		return xlink.PlatformInvalidParameter
	}
	defer image.Close()

	handle, code := t.claim(desc.Name, t.bootProductID)
	if code != xlink.PlatformSuccess {
		return code
	}
	defer handle.Close()

	start := time.Now()
	written, err := io.Copy(handle.out, image)
	if err != nil {
		t.logger.Error("Firmware upload failed",
			zap.String("device", desc.Name),
			zap.Int64("bytes_written", written),
			zap.Error(err),
		)
		return codeForUSBError(err)
	}
	t.recorder.RecordWrite(written, time.Since(start))

	t.logger.Info("Firmware uploaded",
		zap.String("device", desc.Name),
		zap.Int64("image_bytes", written),
	)
	return xlink.PlatformSuccess
}

// Connect claims the runtime device and returns the handle
func (t *Transport) Connect(ctx context.Context, desc xlink.DeviceDescriptor) (xlink.DeviceHandle, xlink.PlatformCode) {
	handle, code := t.claim(desc.Name, t.productID)
	if code != xlink.PlatformSuccess {
		return nil, code
	}

	t.logger.Info("Device connected", zap.String("device", desc.Name))
	return handle, xlink.PlatformSuccess
}

// Reset issues a USB port reset and releases the device
func (t *Transport) Reset(ctx context.Context, handle xlink.DeviceHandle) xlink.PlatformCode {
	h, ok := handle.(*Handle)
	if !ok {
		return xlink.PlatformInvalidParameter
	}
	defer h.Close()

	if err := h.dev.Reset(); err != nil {
		t.logger.Warn("USB reset failed", zap.String("device", h.name), zap.Error(err))
		return codeForUSBError(err)
	}

	t.logger.Info("Device reset", zap.String("device", h.name))
	return xlink.PlatformSuccess
}

// claim opens the named device under the given product ID and claims the
// configured interface and OUT endpoint
func (t *Transport) claim(name string, product gousb.ID) (*Handle, xlink.PlatformCode) {
	usbCtx := gousb.NewContext()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == t.vendorID && desc.Product == product
	})
	if err != nil {
		for _, dev := range devs {
			dev.Close()
		}
		usbCtx.Close()
		t.logger.Error("USB bus scan failed", zap.Error(err))
		return nil, xlink.PlatformDriverError
	}

	var target *gousb.Device
	for _, dev := range devs {
		if target == nil && deviceName(dev.Desc) == name {
			target = dev
			continue
		}
		dev.Close()
	}
	if target == nil {
		usbCtx.Close()
		return nil, xlink.PlatformDeviceNotFound
	}

	if t.config.Timeout > 0 {
		target.ControlTimeout = t.config.Timeout
	}
	if err := target.SetAutoDetach(true); err != nil {
		t.logger.Warn("Auto-detach not available", zap.String("device", name), zap.Error(err))
	}

	devCfg, err := target.Config(1)
	if err != nil {
		target.Close()
		usbCtx.Close()
		t.logger.Error("Failed to select USB configuration", zap.String("device", name), zap.Error(err))
		return nil, xlink.PlatformDriverError
	}

	intf, err := devCfg.Interface(t.config.Interface, 0)
	if err != nil {
		devCfg.Close()
		target.Close()
		usbCtx.Close()
		t.logger.Error("Failed to claim USB interface",
			zap.String("device", name),
			zap.Int("interface", t.config.Interface),
			zap.Error(err),
		)
		return nil, xlink.PlatformDriverError
	}

	out, err := intf.OutEndpoint(t.config.OutEndpoint)
	if err != nil {
		intf.Close()
		devCfg.Close()
		target.Close()
		usbCtx.Close()
		t.logger.Error("Failed to open OUT endpoint",
			zap.String("device", name),
			zap.Int("endpoint", t.config.OutEndpoint),
			zap.Error(err),
		)
		return nil, xlink.PlatformDriverError
	}

	done := func() {
		intf.Close()
		devCfg.Close()
	}
	return &Handle{ctx: usbCtx, dev: target, intfDone: done, out: out, name: name}, xlink.PlatformSuccess
}

// deviceName derives a stable bus-position name for a device
func deviceName(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("usb-%d.%d", desc.Bus, desc.Address)
}

func parseUSBID(raw string) (gousb.ID, error) {
	value, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(value), nil
}

func codeForUSBError(err error) xlink.PlatformCode {
	if err == gousb.TransferTimedOut || err == gousb.ErrorTimeout || err == context.DeadlineExceeded {
		return xlink.PlatformTimeout
	}
	return xlink.PlatformDriverError
}
