package sadp

import "errors"

// Transport errors.
var (
	// ErrTransportUnavailable is returned when the gateway did not answer at all:
	// publish failure, broker disconnect or request timeout.
	ErrTransportUnavailable = errors.New("sadp: transport unavailable")

	// ErrGatewayRejected is returned when the gateway answered with a failure
	// for an operation that has no structured result (start, stop, version).
	ErrGatewayRejected = errors.New("sadp: gateway rejected request")

	// ErrNotOpen is returned when a request is made before Open or after Close.
	ErrNotOpen = errors.New("sadp: gateway client not open")

	// ErrDiscoveryRunning is returned by StartDiscovery when a session is active.
	ErrDiscoveryRunning = errors.New("sadp: discovery already running")

	// ErrInvalidArgument is returned for arguments rejected before any request is sent.
	ErrInvalidArgument = errors.New("sadp: invalid argument")
)
