package device

import (
	"context"
	"fmt"
	"time"
)

// Default settle timings.
const (
	DefaultSettleWindow = 3 * time.Second
	DefaultPollInterval = time.Second
)

// Settler waits for discovery to go quiet, or for a single device to reach
// a wanted state.
//
// Both waits poll. Neither imposes its own deadline; bound them with ctx.
type Settler struct {
	// Window is how long the registry must go without growing.
	Window time.Duration

	// Poll is the sampling cadence.
	Poll time.Duration

	logger Logger
}

// NewSettler returns a Settler, substituting defaults for non-positive values.
func NewSettler(window, poll time.Duration) *Settler {
	if window <= 0 {
		window = DefaultSettleWindow
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Settler{Window: window, Poll: poll, logger: noopLogger{}}
}

// SetLogger sets the logger for the settler.
func (s *Settler) SetLogger(logger Logger) {
	s.logger = logger
}

// WaitQuiet blocks until sizer has not grown for a full Window and returns
// the last observed size. Shrinking does not reset the window.
func (s *Settler) WaitQuiet(ctx context.Context, sizer Sizer) (int, error) {
	window, poll := s.timings()

	size := sizer.Len()
	quietSince := time.Now()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return size, fmt.Errorf("waiting for discovery to settle: %w", ctx.Err())
		case now := <-ticker.C:
			n := sizer.Len()
			if n > size {
				s.log().Debug("discovery still growing", "devices", n, "previous", size)
				quietSince = now
			}
			size = n
			if now.Sub(quietSince) >= window {
				s.log().Info("discovery settled", "devices", size, "window", window)
				return size, nil
			}
		}
	}
}

// WaitFor blocks until the record for mac exists and satisfies pred, and
// returns that record. On cancellation it returns the last record seen, if
// any, with the context error.
func (s *Settler) WaitFor(ctx context.Context, source RecordSource, mac string, pred func(Record) bool) (Record, error) {
	if _, err := CanonicalMAC(mac); err != nil {
		return Record{}, err
	}
	_, poll := s.timings()

	var last Record
	check := func() bool {
		rec, err := source.Get(mac)
		if err != nil {
			return false
		}
		last = rec
		return pred(rec)
	}

	if check() {
		return last, nil
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("waiting for device %s: %w", mac, ctx.Err())
		case <-ticker.C:
			if check() {
				return last, nil
			}
		}
	}
}

// Activated is a WaitFor predicate matching activated devices.
func Activated(r Record) bool {
	return r.Activated
}

func (s *Settler) timings() (window, poll time.Duration) {
	window, poll = s.Window, s.Poll
	if window <= 0 {
		window = DefaultSettleWindow
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return window, poll
}

func (s *Settler) log() Logger {
	if s.logger == nil {
		return noopLogger{}
	}
	return s.logger
}
