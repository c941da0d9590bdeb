package campaign

import (
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

// OutcomeSink receives per-device results as the campaign runs.
// Calls are made from the campaign goroutine and should return promptly.
type OutcomeSink interface {
	ActivationAttempted(rec device.Record, ok bool, code int)
	Reconfigured(out reconfig.Outcome)
}

// InfluxWriter is the subset of the Influx client used by InfluxSink.
type InfluxWriter interface {
	WriteActivation(mac, serial string, success bool, errorCode int)
	WriteReconfigureOutcome(p influxdb.ReconfigurePoint)
}

// InfluxSink records campaign results as time-series points.
type InfluxSink struct {
	w InfluxWriter
}

// NewInfluxSink creates an InfluxSink.
func NewInfluxSink(w InfluxWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// ActivationAttempted implements OutcomeSink.
func (s *InfluxSink) ActivationAttempted(rec device.Record, ok bool, code int) {
	s.w.WriteActivation(rec.HardwareAddress, rec.SerialNumber, ok, code)
}

// Reconfigured implements OutcomeSink.
func (s *InfluxSink) Reconfigured(out reconfig.Outcome) {
	s.w.WriteReconfigureOutcome(influxdb.ReconfigurePoint{
		MAC:              out.HardwareAddress,
		Classification:   out.Classification.String(),
		IPv4:             out.Params.IPv4Address,
		Success:          out.Success,
		ErrorCode:        out.ErrorCode,
		RetriesRemaining: out.RetriesRemaining,
		LockMinutes:      out.LockMinutes,
	})
}
