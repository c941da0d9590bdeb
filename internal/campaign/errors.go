package campaign

import "errors"

// ErrNoPassword is returned when activation or reassignment is requested
// without a device password.
var ErrNoPassword = errors.New("campaign: device password not set")
