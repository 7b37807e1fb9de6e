// internal/link/connection.go
package link

import (
	"time"

	"accel-link-service/pkg/xlink"
)

// Connection is one slot in the registry table. The registry exclusively
// owns all Connection values and only ever hands out LinkIDs and Info
// snapshots; slot memory is reused across link lifetimes.
type Connection struct {
	id     xlink.LinkID
	state  xlink.ConnectionState
	device xlink.DeviceDescriptor
	handle xlink.DeviceHandle
	since  time.Time
}

// Info returns the externally visible view of the slot. The registry
// calls this under its lock; the returned value is a plain copy.
func (c *Connection) Info() xlink.LinkInfo {
	info := xlink.LinkInfo{
		ID:       c.id,
		State:    c.state,
		Device:   c.device,
		Protocol: c.device.Protocol,
	}
	if c.state == xlink.StateUp && !c.since.IsZero() {
		t := c.since
		info.UpSince = &t
	}
	return info
}

// reset returns the slot to its free-pool zero state. The caller must
// have cleaned the handle first.
func (c *Connection) reset() {
	c.id = xlink.InvalidLinkID
	c.state = xlink.StateDown
	c.device = xlink.DeviceDescriptor{}
	c.handle = nil
	c.since = time.Time{}
}
