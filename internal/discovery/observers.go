package discovery

import (
	"context"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
)

// LogObserver logs interesting events at info level and the rest at debug.
type LogObserver struct {
	logger Logger
}

// NewLogObserver creates a LogObserver writing to logger.
func NewLogObserver(logger Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnDeviceEvent implements Observer.
func (o *LogObserver) OnDeviceEvent(ev Event) {
	rec := ev.Record
	args := []any{
		"mac", rec.HardwareAddress,
		"kind", rec.LastEvent.String(),
		"ipv4", rec.IPv4Address,
		"serial", rec.SerialNumber,
		"model", rec.Details.Model,
		"activated", rec.Activated,
	}
	if ev.Interesting {
		o.logger.Info(rec.LastEvent.Description(), args...)
		return
	}
	o.logger.Debug(rec.LastEvent.Description(), args...)
}

// DiscoveryWriter records discovery events as time-series points.
type DiscoveryWriter interface {
	WriteDiscoveryEvent(p influxdb.DiscoveryPoint)
}

// InfluxObserver writes every event, interesting or not, to a DiscoveryWriter.
// The influx client batches writes itself, so no queue is needed.
type InfluxObserver struct {
	writer DiscoveryWriter
}

// NewInfluxObserver creates an InfluxObserver.
func NewInfluxObserver(w DiscoveryWriter) *InfluxObserver {
	return &InfluxObserver{writer: w}
}

// OnDeviceEvent implements Observer.
func (o *InfluxObserver) OnDeviceEvent(ev Event) {
	rec := ev.Record
	o.writer.WriteDiscoveryEvent(influxdb.DiscoveryPoint{
		MAC:       rec.HardwareAddress,
		Kind:      rec.LastEvent.String(),
		Model:     rec.Details.Model,
		Serial:    rec.SerialNumber,
		IPv4:      rec.IPv4Address,
		Activated: rec.Activated,
		Time:      rec.SeenAt,
	})
}

// EventAppender persists one event row per discovery event.
type EventAppender interface {
	AppendEvent(ctx context.Context, rec device.Record) error
}

const eventLogWriteTimeout = 5 * time.Second

// NewEventLog returns a queue that appends every event to repo.
func NewEventLog(repo EventAppender, size int, logger Logger) *Queue {
	q := NewQueue("event-log", size, func(ctx context.Context, ev Event) {
		// Buffered events are still written after shutdown begins.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventLogWriteTimeout)
		defer cancel()
		if err := repo.AppendEvent(writeCtx, ev.Record); err != nil {
			logger.Warn("failed to append device event", "mac", ev.Record.HardwareAddress, "error", err)
		}
	})
	q.SetLogger(logger)
	return q
}
