package sadp

import (
	"context"
	"fmt"
)

// Vendor error codes reported by the SDK after a failed operation.
const (
	// CodeDeviceLocked means too many wrong passwords; the device is locked for a while.
	CodeDeviceLocked = 2018

	// CodeNotActivated means the device has no admin password yet.
	CodeNotActivated = 2019

	// CodePasswordError means the admin password was wrong.
	CodePasswordError = 2024
)

// EventSink receives raw discovery events, one at a time, in delivery order.
type EventSink func(RawEvent)

// Transport is the vendor discovery, activation and reconfiguration service.
//
// Implementations deliver events to the sink sequentially: the sink call for
// one event returns before the next event is delivered.
type Transport interface {
	// StartDiscovery begins delivering discovery events to sink.
	StartDiscovery(ctx context.Context, sink EventSink) error

	// StopDiscovery ends the discovery session. No events are delivered after it returns.
	StopDiscovery(ctx context.Context) error

	// SetAutoRequestInterval sets the periodic re-broadcast interval in seconds; 0 disables it.
	SetAutoRequestInterval(ctx context.Context, seconds int) error

	// Version reports the vendor SDK version.
	Version(ctx context.Context) (Version, error)

	// Activate sets the initial admin password on the device with the given serial number.
	// A false result with a nil error is a device-side refusal; see LastErrorCode.
	Activate(ctx context.Context, serial, password string) (bool, error)

	// ModifyNetworkParams applies p to the device identified by mac.
	// A result with OK false and a nil error is a device-side refusal; see LastErrorCode.
	ModifyNetworkParams(ctx context.Context, mac, password string, p NetParams) (ModifyResult, error)

	// LastErrorCode returns the vendor error code of the most recent failed operation.
	LastErrorCode() int
}

// NetParams is the full set of network parameters sent with a reconfiguration.
type NetParams struct {
	IPv4Address    string `json:"ipv4_address"`
	IPv4SubnetMask string `json:"ipv4_subnet_mask"`
	IPv4Gateway    string `json:"ipv4_gateway"`
	IPv6Address    string `json:"ipv6_address"`
	IPv6Gateway    string `json:"ipv6_gateway"`
	IPv6MaskLen    uint8  `json:"ipv6_mask_len"`
	Port           uint16 `json:"port"`
	HTTPPort       uint16 `json:"http_port"`
	DHCPEnabled    bool   `json:"dhcp_enabled"`
	SDKOverTLSPort uint32 `json:"sdk_over_tls_port"`
}

// ModifyResult is the device's answer to a reconfiguration.
type ModifyResult struct {
	OK bool `json:"ok"`

	// RetryCount is the number of password attempts left before lockout.
	RetryCount int `json:"retry_modify_time"`

	// LockMinutes is the remaining lockout time, meaningful when the device is locked.
	LockMinutes int `json:"surplus_lock_time"`
}

// Version is the SDK version packed as four bytes, most significant first.
type Version uint32

// Parts returns the four version components.
func (v Version) Parts() [4]uint8 {
	return [4]uint8{
		uint8(v >> 24),
		uint8(v >> 16),
		uint8(v >> 8),
		uint8(v),
	}
}

// String renders the version as "Va.b.c.d".
func (v Version) String() string {
	p := v.Parts()
	return fmt.Sprintf("V%d.%d.%d.%d", p[0], p[1], p[2], p[3])
}
