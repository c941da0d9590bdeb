package reconfig

import (
	"fmt"

	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// Classification groups vendor error codes into the failures callers act on.
type Classification int

const (
	// None means the reconfiguration succeeded.
	None Classification = iota
	// DeviceLocked means too many wrong passwords; see Outcome.LockMinutes.
	DeviceLocked
	// PasswordIncorrect means the admin password was wrong; see Outcome.RetriesRemaining.
	PasswordIncorrect
	// DeviceNotActivated means the device must be activated first.
	DeviceNotActivated
	// Unclassified is any other vendor code, kept in Outcome.ErrorCode.
	Unclassified
)

func (c Classification) String() string {
	switch c {
	case None:
		return "none"
	case DeviceLocked:
		return "device_locked"
	case PasswordIncorrect:
		return "password_incorrect"
	case DeviceNotActivated:
		return "device_not_activated"
	default:
		return "unclassified"
	}
}

// MarshalText renders the classification name in JSON output.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify maps a vendor error code to a Classification.
func Classify(code int) Classification {
	switch code {
	case sadp.CodeDeviceLocked:
		return DeviceLocked
	case sadp.CodePasswordError:
		return PasswordIncorrect
	case sadp.CodeNotActivated:
		return DeviceNotActivated
	default:
		return Unclassified
	}
}

func describe(c Classification, code int, res sadp.ModifyResult) string {
	switch c {
	case DeviceLocked:
		return fmt.Sprintf("device locked, %d minutes remaining", res.LockMinutes)
	case PasswordIncorrect:
		return fmt.Sprintf("incorrect password, %d attempts remaining", res.RetryCount)
	case DeviceNotActivated:
		return "device not activated"
	default:
		return fmt.Sprintf("device rejected network parameters with code %d", code)
	}
}
