package discovery

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// ParseEvent converts a raw transport event into a device record observed
// at seenAt. The hardware address is canonicalised and the result code
// must be a known EventKind.
func ParseEvent(raw sadp.RawEvent, seenAt time.Time) (device.Record, error) {
	mac, err := device.CanonicalMAC(raw.MAC)
	if err != nil {
		return device.Record{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	kind, err := device.ParseEventKind(raw.Result)
	if err != nil {
		return device.Record{}, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, mac, err)
	}
	if raw.Port > math.MaxUint16 {
		return device.Record{}, fmt.Errorf("%w: %s: port %d out of range", ErrMalformedEvent, mac, raw.Port)
	}

	return device.Record{
		HardwareAddress: mac,
		SerialNumber:    strings.TrimSpace(raw.SerialNo),
		IPv4Address:     strings.TrimSpace(raw.IPv4Address),
		IPv4SubnetMask:  strings.TrimSpace(raw.IPv4SubnetMask),
		IPv4Gateway:     strings.TrimSpace(raw.IPv4Gateway),
		IPv6Address:     strings.TrimSpace(raw.IPv6Address),
		IPv6Gateway:     strings.TrimSpace(raw.IPv6Gateway),
		IPv6PrefixLen:   raw.IPv6MaskLen,
		Activated:       raw.IsActivated(),
		DHCPEnabled:     raw.DHCPEnabled != 0,
		Port:            uint16(raw.Port),
		HTTPPort:        raw.HTTPPort,
		SDKOverTLSPort:  raw.SDKOverTLSPort,
		LastEvent:       kind,
		SeenAt:          seenAt,
		Details: device.Details{
			Series:          raw.Series,
			Model:           raw.DevDesc,
			BaseModel:       raw.BaseDesc,
			DeviceType:      raw.DeviceType,
			FirmwareVersion: raw.SoftwareVersion,
			DSPVersion:      raw.DSPVersion,
			BootTime:        raw.BootTime,
			OEMInfo:         raw.OEMInfo,
			Encoders:        raw.NumberOfEncoders,
			HardDisks:       raw.NumberOfHardDisk,
			DigitalChannels: raw.DigitalChannelNum,
			UserName:        raw.UserName,
			WifiMAC:         raw.WifiMAC,
			Licensed:        raw.Licensed,
			SecurityMode:    raw.SecurityMode,
		},
	}, nil
}
