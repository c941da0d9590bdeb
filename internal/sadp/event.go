package sadp

// Discovery result codes carried in RawEvent.Result.
const (
	ResultAdded        = 1
	ResultUpdated      = 2
	ResultOffline      = 3
	ResultRestarted    = 4
	ResultUpdateFailed = 5
)

// RawEvent is one discovery notification as published by the gateway.
// Field values are passed through unvalidated; the discovery router decides
// what is well formed.
type RawEvent struct {
	Result int `json:"result"`

	MAC      string `json:"mac"`
	SerialNo string `json:"serial_no"`
	Series   string `json:"series,omitempty"`

	IPv4Address    string `json:"ipv4_address"`
	IPv4SubnetMask string `json:"ipv4_subnet_mask"`
	IPv4Gateway    string `json:"ipv4_gateway"`
	IPv6Address    string `json:"ipv6_address,omitempty"`
	IPv6Gateway    string `json:"ipv6_gateway,omitempty"`
	IPv6MaskLen    uint8  `json:"ipv6_mask_len,omitempty"`
	DHCPEnabled    uint8  `json:"dhcp_enabled"`

	Port           uint32 `json:"port"`
	HTTPPort       uint16 `json:"http_port"`
	SDKOverTLSPort uint32 `json:"sdk_over_tls_port,omitempty"`

	// Activated follows the vendor convention: 0 activated, 1 not activated.
	Activated uint8 `json:"activated"`

	DeviceType        uint32 `json:"device_type"`
	DevDesc           string `json:"dev_desc"`
	BaseDesc          string `json:"base_desc,omitempty"`
	SoftwareVersion   string `json:"software_version"`
	DSPVersion        string `json:"dsp_version,omitempty"`
	BootTime          string `json:"boot_time,omitempty"`
	OEMInfo           string `json:"oem_info,omitempty"`
	NumberOfEncoders  uint32 `json:"encoders,omitempty"`
	NumberOfHardDisk  uint32 `json:"hard_disks,omitempty"`
	DigitalChannelNum uint16 `json:"digital_channels,omitempty"`
	Licensed          uint8  `json:"licensed,omitempty"`
	SecurityMode      uint8  `json:"security_mode,omitempty"`
	UserName          string `json:"user_name,omitempty"`
	WifiMAC           string `json:"wifi_mac,omitempty"`
	DataFromMulticast uint8  `json:"data_from_multicast,omitempty"`
}

// IsActivated reports whether the device already has an admin password.
func (e RawEvent) IsActivated() bool {
	return e.Activated == 0
}
