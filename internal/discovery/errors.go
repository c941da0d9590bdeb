package discovery

import "errors"

// ErrMalformedEvent is returned by ParseEvent for raw events that cannot be
// turned into a device record.
var ErrMalformedEvent = errors.New("discovery: malformed event")
