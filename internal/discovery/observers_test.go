package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/mqtt"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, payload, qos, retained})
	return p.err
}

func (p *fakePublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func event(mac string, kind device.EventKind) Event {
	return Event{
		Record: device.Record{
			HardwareAddress: mac,
			SerialNumber:    "SN-" + mac,
			IPv4Address:     "192.168.1.64",
			LastEvent:       kind,
			SeenAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Details:         device.Details{Model: "DS-2CD2143G0-I"},
		},
		Interesting: kind == device.KindAdded,
	}
}

// runUntilDrained runs fn's Run loop until every queued event is handled.
func runUntilDrained(t *testing.T, run func(context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx) //nolint:errcheck // Run only returns nil
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	var handled []string
	q := NewQueue("test", 2, func(_ context.Context, ev Event) {
		handled = append(handled, ev.Record.HardwareAddress)
	})
	log := &countingLogger{}
	q.SetLogger(log)

	for _, mac := range []string{"a", "b", "c", "d"} {
		q.OnDeviceEvent(event(mac, device.KindAdded))
	}
	if q.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", q.Dropped())
	}
	if log.warns != 1 {
		t.Errorf("warnings = %d, want 1 for the first drop only", log.warns)
	}

	runUntilDrained(t, q.Run)

	if len(handled) != 2 || handled[0] != "a" || handled[1] != "b" {
		t.Errorf("handled = %v, want [a b]", handled)
	}
	if q.Handled() != 2 || q.Pending() != 0 {
		t.Errorf("Handled()=%d Pending()=%d, want 2 and 0", q.Handled(), q.Pending())
	}
}

func TestQueue_RecoversHandlerPanic(t *testing.T) {
	calls := 0
	q := NewQueue("test", 4, func(_ context.Context, ev Event) {
		calls++
		if ev.Record.HardwareAddress == "bad" {
			panic("handler failure")
		}
	})
	q.OnDeviceEvent(event("bad", device.KindAdded))
	q.OnDeviceEvent(event("good", device.KindAdded))

	runUntilDrained(t, q.Run)

	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
	if q.Handled() != 1 {
		t.Errorf("Handled() = %d, want 1", q.Handled())
	}
}

func TestMQTTPublisher_TopicsPerKind(t *testing.T) {
	const mac = "aa:bb:cc:dd:ee:01"
	topics := mqtt.NewTopics("site")

	tests := []struct {
		kind      device.EventKind
		wantState bool
		wantClear bool
	}{
		{device.KindAdded, true, false},
		{device.KindUpdated, true, false},
		{device.KindRestarted, true, false},
		{device.KindOffline, true, true},
		{device.KindUpdateFailed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			pub := &fakePublisher{}
			p := NewMQTTPublisher(pub, topics, 1, 8)
			p.OnDeviceEvent(event(mac, tt.kind))
			runUntilDrained(t, p.Run)

			msgs := pub.messages()
			wantCount := 1
			if tt.wantState {
				wantCount = 2
			}
			if len(msgs) != wantCount {
				t.Fatalf("published %d messages, want %d", len(msgs), wantCount)
			}

			ev := msgs[0]
			if ev.topic != "site/fleet/device/aa-bb-cc-dd-ee-01/event" || ev.retained || ev.qos != 1 {
				t.Errorf("event message = %s retained=%v qos=%d", ev.topic, ev.retained, ev.qos)
			}
			var body EventMessage
			if err := json.Unmarshal(ev.payload, &body); err != nil {
				t.Fatalf("event payload: %v", err)
			}
			if body.Kind != tt.kind.String() || body.MAC != mac || body.Record.SerialNumber != "SN-"+mac {
				t.Errorf("event body = %+v", body)
			}

			if !tt.wantState {
				return
			}
			st := msgs[1]
			if st.topic != "site/fleet/device/aa-bb-cc-dd-ee-01/state" || !st.retained {
				t.Errorf("state message = %s retained=%v", st.topic, st.retained)
			}
			if tt.wantClear != (len(st.payload) == 0) {
				t.Errorf("state payload length = %d, clear expected %v", len(st.payload), tt.wantClear)
			}
		})
	}
}

func TestMQTTPublisher_PublishErrorsAreLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	p := NewMQTTPublisher(pub, mqtt.NewTopics(""), 0, 8)
	log := &countingLogger{}
	p.SetLogger(log)

	p.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindAdded))
	runUntilDrained(t, p.Run)

	if log.warns != 2 {
		t.Errorf("warnings = %d, want 2 (event and state)", log.warns)
	}
	if p.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", p.Dropped())
	}
}

type fakeDiscoveryWriter struct {
	points []influxdb.DiscoveryPoint
}

func (w *fakeDiscoveryWriter) WriteDiscoveryEvent(p influxdb.DiscoveryPoint) {
	w.points = append(w.points, p)
}

func TestInfluxObserver_WritesEveryEvent(t *testing.T) {
	w := &fakeDiscoveryWriter{}
	o := NewInfluxObserver(w)

	o.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindAdded))
	o.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindOffline))

	if len(w.points) != 2 {
		t.Fatalf("points = %d, want 2", len(w.points))
	}
	p := w.points[1]
	if p.MAC != "aa:bb:cc:dd:ee:01" || p.Kind != "offline" || p.Model != "DS-2CD2143G0-I" {
		t.Errorf("point = %+v", p)
	}
	if !p.Time.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("point time = %v, want record SeenAt", p.Time)
	}
}

func TestLogObserver_Levels(t *testing.T) {
	log := &countingLogger{}
	o := NewLogObserver(log)

	o.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindAdded))
	o.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindUpdated))

	if log.infos != 1 {
		t.Errorf("info lines = %d, want 1 for the interesting event", log.infos)
	}
}

type fakeAppender struct {
	mu   sync.Mutex
	macs []string
	err  error
}

func (a *fakeAppender) AppendEvent(ctx context.Context, rec device.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	a.macs = append(a.macs, rec.HardwareAddress)
	return a.err
}

func TestEventLog_WritesBufferedEventsAfterCancel(t *testing.T) {
	repo := &fakeAppender{}
	q := NewEventLog(repo, 8, &countingLogger{})

	q.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindAdded))
	q.OnDeviceEvent(event("aa:bb:cc:dd:ee:02", device.KindAdded))
	runUntilDrained(t, q.Run)

	if len(repo.macs) != 2 {
		t.Errorf("appended %d events, want 2", len(repo.macs))
	}
}

func TestEventLog_LogsFailures(t *testing.T) {
	repo := &fakeAppender{err: errors.New("disk full")}
	log := &countingLogger{}
	q := NewEventLog(repo, 8, log)

	q.OnDeviceEvent(event("aa:bb:cc:dd:ee:01", device.KindAdded))
	runUntilDrained(t, q.Run)

	if log.warns != 1 {
		t.Errorf("warnings = %d, want 1", log.warns)
	}
}
