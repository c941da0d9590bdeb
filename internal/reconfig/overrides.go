package reconfig

import (
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// Overrides holds optional replacements for a device's current network
// parameters. A nil field keeps the value the device last reported.
type Overrides struct {
	IPv4Address    *string
	IPv4SubnetMask *string
	IPv4Gateway    *string
	IPv6Address    *string
	IPv6Gateway    *string
	IPv6PrefixLen  *uint8
	Port           *uint16
	HTTPPort       *uint16
	DHCPEnabled    *bool
	SDKOverTLSPort *uint32
}

// Ptr returns a pointer to v, for building Overrides literals.
func Ptr[T any](v T) *T {
	return &v
}

// Address returns overrides that change only the IPv4 address, mask and gateway.
func Address(ip, mask, gateway string) Overrides {
	return Overrides{
		IPv4Address:    &ip,
		IPv4SubnetMask: &mask,
		IPv4Gateway:    &gateway,
	}
}

// IsZero reports whether no field is set.
func (o Overrides) IsZero() bool {
	return o == Overrides{}
}

// Resolve merges ov onto the record's current parameters.
func Resolve(rec device.Record, ov Overrides) sadp.NetParams {
	return sadp.NetParams{
		IPv4Address:    pick(ov.IPv4Address, rec.IPv4Address),
		IPv4SubnetMask: pick(ov.IPv4SubnetMask, rec.IPv4SubnetMask),
		IPv4Gateway:    pick(ov.IPv4Gateway, rec.IPv4Gateway),
		IPv6Address:    pick(ov.IPv6Address, rec.IPv6Address),
		IPv6Gateway:    pick(ov.IPv6Gateway, rec.IPv6Gateway),
		IPv6MaskLen:    pick(ov.IPv6PrefixLen, rec.IPv6PrefixLen),
		Port:           pick(ov.Port, rec.Port),
		HTTPPort:       pick(ov.HTTPPort, rec.HTTPPort),
		DHCPEnabled:    pick(ov.DHCPEnabled, rec.DHCPEnabled),
		SDKOverTLSPort: pick(ov.SDKOverTLSPort, rec.SDKOverTLSPort),
	}
}

func pick[T any](override *T, current T) T {
	if override != nil {
		return *override
	}
	return current
}
