package reconfig

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// Logger is the logging interface used by the workflow.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Outcome is the result of one reconfiguration attempt.
type Outcome struct {
	HardwareAddress  string         `json:"mac"`
	Success          bool           `json:"success"`
	ErrorCode        int            `json:"error_code,omitempty"`
	Classification   Classification `json:"classification"`
	Message          string         `json:"message"`
	RetriesRemaining int            `json:"retries_remaining"`
	LockMinutes      int            `json:"lock_minutes"`
	Params           sadp.NetParams `json:"params"`
}

// Err returns nil for a successful outcome and a *FailureError otherwise.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return &FailureError{
		HardwareAddress: o.HardwareAddress,
		Code:            o.ErrorCode,
		Classification:  o.Classification,
		Message:         o.Message,
	}
}

// Workflow applies network parameter changes to discovered devices.
type Workflow struct {
	transport sadp.Transport
	registry  device.RecordSource
	logger    Logger
}

// NewWorkflow creates a workflow that looks devices up in registry.
func NewWorkflow(transport sadp.Transport, registry device.RecordSource) *Workflow {
	return &Workflow{
		transport: transport,
		registry:  registry,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the workflow.
func (w *Workflow) SetLogger(logger Logger) {
	w.logger = logger
}

// Reconfigure sends the device's current parameters with ov applied.
//
// A device-side refusal is reported in the Outcome, not as an error. The
// returned error is non-nil only when the device is unknown or the
// transport could not be reached; the latter wraps
// sadp.ErrTransportUnavailable. No timeout is added here.
func (w *Workflow) Reconfigure(ctx context.Context, mac, password string, ov Overrides) (Outcome, error) {
	rec, err := w.registry.Get(mac)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) || errors.Is(err, device.ErrInvalidHardwareAddress) {
			return Outcome{}, fmt.Errorf("%w: %s: %w", ErrUnknownDevice, mac, err)
		}
		return Outcome{}, fmt.Errorf("looking up %s: %w", mac, err)
	}

	params := Resolve(rec, ov)
	out := Outcome{
		HardwareAddress: rec.HardwareAddress,
		Params:          params,
	}

	res, err := w.transport.ModifyNetworkParams(ctx, rec.HardwareAddress, password, params)
	if err != nil {
		return out, fmt.Errorf("reconfiguring %s: %w", rec.HardwareAddress, err)
	}

	out.RetriesRemaining = res.RetryCount
	out.LockMinutes = res.LockMinutes
	if res.OK {
		out.Success = true
		out.Classification = None
		out.Message = "network parameters updated"
		w.logger.Info("device reconfigured",
			"mac", rec.HardwareAddress, "ipv4", params.IPv4Address, "port", params.Port)
		return out, nil
	}

	out.ErrorCode = w.transport.LastErrorCode()
	out.Classification = Classify(out.ErrorCode)
	out.Message = describe(out.Classification, out.ErrorCode, res)
	w.logger.Warn("device rejected reconfiguration",
		"mac", rec.HardwareAddress,
		"code", out.ErrorCode,
		"classification", out.Classification.String(),
		"message", out.Message)
	return out, nil
}
