package reconfig

import (
	"errors"
	"fmt"
)

// ErrUnknownDevice is returned when the target hardware address is not in
// the registry.
var ErrUnknownDevice = errors.New("reconfig: unknown device")

// FailureError describes a reconfiguration the device refused.
// It is available from Outcome.Err for callers that prefer errors.As.
type FailureError struct {
	HardwareAddress string
	Code            int
	Classification  Classification
	Message         string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("reconfig: %s: %s (code %d)", e.HardwareAddress, e.Message, e.Code)
}
