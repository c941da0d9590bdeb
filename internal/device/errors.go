package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no record exists for a hardware address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidHardwareAddress is returned when a MAC address cannot be parsed
	// or is not a 6-byte Ethernet address.
	ErrInvalidHardwareAddress = errors.New("device: invalid hardware address")

	// ErrUnknownEventKind is returned for discovery result codes outside 1..5.
	ErrUnknownEventKind = errors.New("device: unknown event kind")
)
