package discovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used by MQTTPublisher.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventMessage is published on the per-device event topic.
type EventMessage struct {
	MAC         string        `json:"mac"`
	Kind        string        `json:"kind"`
	Description string        `json:"description"`
	Interesting bool          `json:"interesting"`
	Mode        string        `json:"mode"`
	Record      device.Record `json:"record"`
	Timestamp   time.Time     `json:"timestamp"`
}

// MQTTPublisher mirrors registry changes onto the broker.
//
// Every event goes to {prefix}/fleet/device/{mac}/event. The retained
// {prefix}/fleet/device/{mac}/state message follows registry policy:
// Added, Updated and Restarted replace it, Offline clears it and
// UpdateFailed leaves it alone.
type MQTTPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	queue  *Queue
	logger Logger
	now    func() time.Time
}

// NewMQTTPublisher creates a publisher with a bounded queue of size events.
func NewMQTTPublisher(pub Publisher, topics mqtt.Topics, qos byte, size int) *MQTTPublisher {
	p := &MQTTPublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
		now:    time.Now,
	}
	p.queue = NewQueue("mqtt-publisher", size, func(_ context.Context, ev Event) { p.publish(ev) })
	return p
}

// SetLogger sets the logger for the publisher.
func (p *MQTTPublisher) SetLogger(logger Logger) {
	p.logger = logger
	p.queue.SetLogger(logger)
}

// OnDeviceEvent implements Observer. It only enqueues.
func (p *MQTTPublisher) OnDeviceEvent(ev Event) {
	p.queue.OnDeviceEvent(ev)
}

// Run publishes queued events until ctx is cancelled.
func (p *MQTTPublisher) Run(ctx context.Context) error {
	return p.queue.Run(ctx)
}

// Dropped returns the number of events discarded by a full queue.
func (p *MQTTPublisher) Dropped() uint64 {
	return p.queue.Dropped()
}

func (p *MQTTPublisher) publish(ev Event) {
	rec := ev.Record
	msg := EventMessage{
		MAC:         rec.HardwareAddress,
		Kind:        rec.LastEvent.String(),
		Description: rec.LastEvent.Description(),
		Interesting: ev.Interesting,
		Mode:        ev.Mode.String(),
		Record:      rec,
		Timestamp:   p.now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to marshal device event", "mac", rec.HardwareAddress, "error", err)
		return
	}
	if err := p.pub.Publish(p.topics.DeviceEvent(rec.HardwareAddress), payload, p.qos, false); err != nil {
		p.logger.Warn("failed to publish device event", "mac", rec.HardwareAddress, "error", err)
	}

	var state []byte
	switch rec.LastEvent {
	case device.KindAdded, device.KindUpdated, device.KindRestarted:
		if state, err = json.Marshal(rec); err != nil {
			p.logger.Error("failed to marshal device state", "mac", rec.HardwareAddress, "error", err)
			return
		}
	case device.KindOffline:
		// Empty retained payload clears the broker's copy.
	default:
		return
	}
	if err := p.pub.Publish(p.topics.DeviceState(rec.HardwareAddress), state, p.qos, true); err != nil {
		p.logger.Warn("failed to publish device state", "mac", rec.HardwareAddress, "error", err)
	}
}
