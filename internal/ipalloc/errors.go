package ipalloc

import "errors"

// Domain errors returned by the allocator.
// Callers match them with errors.Is; the returned errors wrap them with detail.
var (
	// ErrInvalidAddress is returned when the start address is not an IPv4 address.
	ErrInvalidAddress = errors.New("ipalloc: invalid start address")

	// ErrInvalidNetmask is returned when the netmask is neither a contiguous
	// dotted mask nor a prefix length between 0 and 32.
	ErrInvalidNetmask = errors.New("ipalloc: invalid netmask")

	// ErrInvalidNetwork is returned when the block has no usable host addresses.
	ErrInvalidNetwork = errors.New("ipalloc: network has no usable hosts")

	// ErrInvalidGateway is returned when an explicit gateway is unparseable or
	// lies outside the block.
	ErrInvalidGateway = errors.New("ipalloc: gateway outside network")

	// ErrExhausted is returned by Next once every host has been issued.
	ErrExhausted = errors.New("ipalloc: address pool exhausted")
)
