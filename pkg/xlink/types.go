// pkg/xlink/types.go
package xlink

import "time"

// LinkID identifies an active link to external callers. IDs are assigned
// monotonically with wraparound and are unique among simultaneously
// active links.
type LinkID uint32

// InvalidLinkID marks a free slot. It is never handed out to a caller.
const InvalidLinkID LinkID = ^LinkID(0)

// ConnectionState represents the lifecycle state of a link
type ConnectionState string

const (
	StateDown       ConnectionState = "DOWN"
	StateConnecting ConnectionState = "CONNECTING"
	StateUp         ConnectionState = "UP"
	StateResetting  ConnectionState = "RESETTING"
)

// DeviceState filters discovery by the boot state of a device
type DeviceState string

const (
	DeviceStateAny      DeviceState = "ANY"
	DeviceStateBooted   DeviceState = "BOOTED"
	DeviceStateUnbooted DeviceState = "UNBOOTED"
)

// Protocol represents the transport a device is reachable over
type Protocol string

const (
	ProtocolTCP    Protocol = "TCP"
	ProtocolSerial Protocol = "SERIAL"
	ProtocolUSB    Protocol = "USB"
	ProtocolAny    Protocol = "ANY"
)

// DeviceDescriptor describes a discovered accelerator device
type DeviceDescriptor struct {
	Name     string      `json:"name"`
	Protocol Protocol    `json:"protocol"`
	Platform string      `json:"platform,omitempty"`
	State    DeviceState `json:"state"`
}

// DeviceRequirements narrows discovery to matching devices. Zero values
// match anything.
type DeviceRequirements struct {
	Name     string   `json:"name,omitempty"`
	Platform string   `json:"platform,omitempty"`
	Protocol Protocol `json:"protocol,omitempty"`
}

// Matches reports whether a descriptor satisfies the requirements
func (r DeviceRequirements) Matches(desc DeviceDescriptor) bool {
	if r.Name != "" && r.Name != desc.Name {
		return false
	}
	if r.Platform != "" && r.Platform != desc.Platform {
		return false
	}
	if r.Protocol != "" && r.Protocol != ProtocolAny && r.Protocol != desc.Protocol {
		return false
	}
	return true
}

// LinkInfo is the externally visible view of one link slot
type LinkInfo struct {
	ID       LinkID           `json:"id"`
	State    ConnectionState  `json:"state"`
	Device   DeviceDescriptor `json:"device"`
	UpSince  *time.Time       `json:"up_since,omitempty"`
	Protocol Protocol         `json:"protocol"`
}

// ProfilingSummary reports aggregated transfer and boot counters.
// Throughput fields are present only when the corresponding time
// accumulator is non-zero.
type ProfilingSummary struct {
	Enabled              bool     `json:"enabled"`
	TotalReadBytes       uint64   `json:"total_read_bytes"`
	TotalWriteBytes      uint64   `json:"total_write_bytes"`
	TotalReadTime        float64  `json:"total_read_time_seconds"`
	TotalWriteTime       float64  `json:"total_write_time_seconds"`
	TotalBootCount       uint64   `json:"total_boot_count"`
	TotalBootTime        float64  `json:"total_boot_time_seconds"`
	ReadThroughputMBps   *float64 `json:"read_throughput_mbps,omitempty"`
	WriteThroughputMBps  *float64 `json:"write_throughput_mbps,omitempty"`
	AverageBootSeconds   *float64 `json:"average_boot_seconds,omitempty"`
}
