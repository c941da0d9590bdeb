package audit

import (
	"context"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

// writeTimeout bounds each trail insert.
const writeTimeout = 2 * time.Second

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder writes campaign results to a Repository. It satisfies
// campaign.OutcomeSink.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a Recorder tagging every entry with source, usually
// the command that made the attempt.
func NewRecorder(repo Repository, source string) *Recorder {
	return &Recorder{repo: repo, source: source, logger: noopLogger{}}
}

// SetLogger sets the logger for failed writes.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// ActivationAttempted records one activation call.
func (r *Recorder) ActivationAttempted(rec device.Record, ok bool, code int) {
	r.write(&Entry{
		Action:    ActionActivate,
		MAC:       rec.HardwareAddress,
		Serial:    rec.SerialNumber,
		Source:    r.source,
		Success:   ok,
		ErrorCode: code,
	})
}

// Reconfigured records one reconfiguration outcome with the parameters sent.
func (r *Recorder) Reconfigured(out reconfig.Outcome) {
	details := map[string]any{
		"ipv4_address":     out.Params.IPv4Address,
		"ipv4_subnet_mask": out.Params.IPv4SubnetMask,
		"ipv4_gateway":     out.Params.IPv4Gateway,
		"port":             out.Params.Port,
		"http_port":        out.Params.HTTPPort,
		"dhcp_enabled":     out.Params.DHCPEnabled,
	}
	if !out.Success {
		details["classification"] = out.Classification.String()
		details["message"] = out.Message
		switch out.Classification {
		case reconfig.PasswordIncorrect:
			details["retries_remaining"] = out.RetriesRemaining
		case reconfig.DeviceLocked:
			details["lock_minutes"] = out.LockMinutes
		}
	}

	r.write(&Entry{
		Action:    ActionReconfigure,
		MAC:       out.HardwareAddress,
		Source:    r.source,
		Success:   out.Success,
		ErrorCode: out.ErrorCode,
		Details:   details,
	})
}

func (r *Recorder) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Warn("failed to write audit entry", "action", e.Action, "mac", e.MAC, "error", err)
	}
}
