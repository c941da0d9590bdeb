package discovery

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// Logger is the logging interface used by this package.
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

// Mode selects which event kinds observers should treat as interesting.
type Mode int32

const (
	// ModeInitialScan surfaces only Added events.
	ModeInitialScan Mode = iota
	// ModeSteadyState surfaces Added and Updated events.
	ModeSteadyState
)

func (m Mode) String() string {
	if m == ModeSteadyState {
		return "steady_state"
	}
	return "initial_scan"
}

// Interesting reports whether events of kind k are surfaced in mode m.
func (m Mode) Interesting(k device.EventKind) bool {
	switch k {
	case device.KindAdded:
		return true
	case device.KindUpdated:
		return m == ModeSteadyState
	default:
		return false
	}
}

// Event is what observers receive for every applied discovery event.
type Event struct {
	Record      device.Record
	Interesting bool
	Mode        Mode
}

// Observer receives events after the registry has been updated.
//
// OnDeviceEvent runs on the discovery delivery goroutine. It must return
// quickly; anything that does I/O should hand off to a Queue.
type Observer interface {
	OnDeviceEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnDeviceEvent implements Observer.
func (f ObserverFunc) OnDeviceEvent(ev Event) { f(ev) }

// RouterStats are cumulative router counters.
type RouterStats struct {
	Processed      uint64
	Dropped        uint64
	ObserverPanics uint64
}

// Router turns raw transport events into registry updates and observer
// notifications.
//
// Handle is the transport's event sink. Calls are serialised, so for event
// N the registry update and every observer call complete before event N+1
// is applied, whatever the transport's threading.
type Router struct {
	registry *device.Registry

	handleMu  sync.Mutex
	observers atomic.Pointer[[]Observer]
	subMu     sync.Mutex

	mode      atomic.Int32
	processed atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	logger Logger
	now    func() time.Time
}

// NewRouter creates a router in initial-scan mode that applies events to reg.
func NewRouter(reg *device.Registry) *Router {
	r := &Router{
		registry: reg,
		logger:   noopLogger{},
		now:      time.Now,
	}
	r.observers.Store(&[]Observer{})
	return r
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe appends o to the observer list. Observers are called in
// subscription order.
func (r *Router) Subscribe(o Observer) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	current := *r.observers.Load()
	next := make([]Observer, len(current), len(current)+1)
	copy(next, current)
	next = append(next, o)
	r.observers.Store(&next)
}

// SetMode switches the filtering mode. Registry policy is unaffected.
func (r *Router) SetMode(m Mode) {
	if Mode(r.mode.Swap(int32(m))) != m {
		r.logger.Info("discovery mode changed", "mode", m.String())
	}
}

// Mode returns the current filtering mode.
func (r *Router) Mode() Mode {
	return Mode(r.mode.Load())
}

// Sink returns Handle as a transport event sink.
func (r *Router) Sink() sadp.EventSink {
	return r.Handle
}

// Handle applies one raw event. Malformed events are dropped and counted;
// a panicking observer is recovered and the remaining observers still run.
func (r *Router) Handle(raw sadp.RawEvent) {
	r.handleMu.Lock()
	defer r.handleMu.Unlock()

	rec, err := ParseEvent(raw, r.now().UTC())
	if err != nil {
		r.dropped.Add(1)
		r.logger.Warn("dropping discovery event", "mac", raw.MAC, "result", raw.Result, "error", err)
		return
	}

	rec = r.registry.Apply(rec)

	mode := r.Mode()
	ev := Event{Record: rec, Interesting: mode.Interesting(rec.LastEvent), Mode: mode}
	for _, o := range *r.observers.Load() {
		r.notify(o, ev)
	}
	r.processed.Add(1)
}

func (r *Router) notify(o Observer, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("discovery observer panic recovered",
				"mac", ev.Record.HardwareAddress, "kind", ev.Record.LastEvent.String(), "panic", p)
		}
	}()
	o.OnDeviceEvent(ev)
}

// Stats returns the router counters.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		Processed:      r.processed.Load(),
		Dropped:        r.dropped.Load(),
		ObserverPanics: r.panics.Load(),
	}
}
