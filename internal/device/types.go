package device

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// EventKind is the discovery result reported with every device announcement.
type EventKind int

// Event kinds, numbered as the vendor transport reports them.
const (
	KindAdded        EventKind = 1
	KindUpdated      EventKind = 2
	KindOffline      EventKind = 3
	KindRestarted    EventKind = 4
	KindUpdateFailed EventKind = 5
)

// ParseEventKind converts a raw result code into an EventKind.
func ParseEventKind(code int) (EventKind, error) {
	k := EventKind(code)
	if !k.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEventKind, code)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	return k >= KindAdded && k <= KindUpdateFailed
}

func (k EventKind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindUpdated:
		return "updated"
	case KindOffline:
		return "offline"
	case KindRestarted:
		return "restarted"
	case KindUpdateFailed:
		return "update_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Description returns the operator-facing wording for k.
func (k EventKind) Description() string {
	switch k {
	case KindAdded:
		return "device online"
	case KindUpdated:
		return "device updated"
	case KindOffline:
		return "device offline"
	case KindRestarted:
		return "device restarted"
	case KindUpdateFailed:
		return "device update failed"
	default:
		return "unknown event"
	}
}

// Record is the latest known snapshot of one physical device.
// HardwareAddress is the identity key and is always in canonical form.
type Record struct {
	HardwareAddress string `json:"mac"`
	SerialNumber    string `json:"serial"`

	IPv4Address    string `json:"ipv4_address"`
	IPv4SubnetMask string `json:"ipv4_subnet_mask"`
	IPv4Gateway    string `json:"ipv4_gateway"`

	IPv6Address   string `json:"ipv6_address,omitempty"`
	IPv6Gateway   string `json:"ipv6_gateway,omitempty"`
	IPv6PrefixLen uint8  `json:"ipv6_prefix_len,omitempty"`

	Activated   bool `json:"activated"`
	DHCPEnabled bool `json:"dhcp_enabled"`

	Port           uint16 `json:"port"`
	HTTPPort       uint16 `json:"http_port"`
	SDKOverTLSPort uint32 `json:"sdk_over_tls_port,omitempty"`

	LastEvent EventKind `json:"last_event"`
	SeenAt    time.Time `json:"seen_at"`

	Details Details `json:"details"`
}

// Details holds vendor metadata carried through unchanged.
type Details struct {
	Series          string `json:"series,omitempty"`
	Model           string `json:"model,omitempty"`
	BaseModel       string `json:"base_model,omitempty"`
	DeviceType      uint32 `json:"device_type,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	DSPVersion      string `json:"dsp_version,omitempty"`
	BootTime        string `json:"boot_time,omitempty"`
	OEMInfo         string `json:"oem_info,omitempty"`
	Encoders        uint32 `json:"encoders,omitempty"`
	HardDisks       uint32 `json:"hard_disks,omitempty"`
	DigitalChannels uint16 `json:"digital_channels,omitempty"`
	UserName        string `json:"user_name,omitempty"`
	WifiMAC         string `json:"wifi_mac,omitempty"`
	Licensed        uint8  `json:"licensed,omitempty"`
	SecurityMode    uint8  `json:"security_mode,omitempty"`
}

// CanonicalMAC parses a 6-byte hardware address in any of the notations
// accepted by net.ParseMAC (colons, dashes, dots) and returns it in lower
// case colon form.
func CanonicalMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidHardwareAddress, s)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("%w: %q is not a 6-byte address", ErrInvalidHardwareAddress, s)
	}
	return hw.String(), nil
}
