// Package sadptest provides an in-memory sadp.Transport for tests.
package sadptest

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// ErrUnavailable is returned by Transport methods when Unavailable is set.
var ErrUnavailable = errors.New("sadptest: transport unavailable")

// ActivateCall records one Activate invocation.
type ActivateCall struct {
	Serial   string
	Password string
}

// ModifyCall records one ModifyNetworkParams invocation.
type ModifyCall struct {
	MAC      string
	Password string
	Params   sadp.NetParams
}

// Transport is a scriptable sadp.Transport. The zero value accepts every
// request; set the hook functions to script device answers.
type Transport struct {
	// OnActivate decides the activation result and the error code to record on refusal.
	OnActivate func(serial, password string) (ok bool, code int)

	// OnModify decides the reconfiguration result and the error code to record on refusal.
	OnModify func(mac, password string, p sadp.NetParams) (result sadp.ModifyResult, code int)

	// VersionValue is returned by Version.
	VersionValue sadp.Version

	// Unavailable makes every request fail with ErrUnavailable wrapped in
	// sadp.ErrTransportUnavailable.
	Unavailable bool

	mu        sync.Mutex
	sink      sadp.EventSink
	lastErr   int
	interval  int
	starts    int
	stops     int
	activates []ActivateCall
	modifies  []ModifyCall
}

var _ sadp.Transport = (*Transport)(nil)

func (t *Transport) unavailable() error {
	if t.Unavailable {
		return errors.Join(sadp.ErrTransportUnavailable, ErrUnavailable)
	}
	return nil
}

// StartDiscovery implements sadp.Transport.
func (t *Transport) StartDiscovery(_ context.Context, sink sadp.EventSink) error {
	if err := t.unavailable(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink != nil {
		return sadp.ErrDiscoveryRunning
	}
	t.sink = sink
	t.starts++
	return nil
}

// StopDiscovery implements sadp.Transport.
func (t *Transport) StopDiscovery(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = nil
	t.stops++
	return nil
}

// SetAutoRequestInterval implements sadp.Transport.
func (t *Transport) SetAutoRequestInterval(_ context.Context, seconds int) error {
	if err := t.unavailable(); err != nil {
		return err
	}
	t.mu.Lock()
	t.interval = seconds
	t.mu.Unlock()
	return nil
}

// Version implements sadp.Transport.
func (t *Transport) Version(context.Context) (sadp.Version, error) {
	if err := t.unavailable(); err != nil {
		return 0, err
	}
	return t.VersionValue, nil
}

// Activate implements sadp.Transport.
func (t *Transport) Activate(_ context.Context, serial, password string) (bool, error) {
	if err := t.unavailable(); err != nil {
		return false, err
	}
	t.mu.Lock()
	t.activates = append(t.activates, ActivateCall{Serial: serial, Password: password})
	t.mu.Unlock()

	ok, code := true, 0
	if t.OnActivate != nil {
		ok, code = t.OnActivate(serial, password)
	}
	if !ok {
		t.setLastErr(code)
	}
	return ok, nil
}

// ModifyNetworkParams implements sadp.Transport.
func (t *Transport) ModifyNetworkParams(_ context.Context, mac, password string, p sadp.NetParams) (sadp.ModifyResult, error) {
	if err := t.unavailable(); err != nil {
		return sadp.ModifyResult{}, err
	}
	t.mu.Lock()
	t.modifies = append(t.modifies, ModifyCall{MAC: mac, Password: password, Params: p})
	t.mu.Unlock()

	result, code := sadp.ModifyResult{OK: true}, 0
	if t.OnModify != nil {
		result, code = t.OnModify(mac, password, p)
	}
	if !result.OK {
		t.setLastErr(code)
	}
	return result, nil
}

// LastErrorCode implements sadp.Transport.
func (t *Transport) LastErrorCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Transport) setLastErr(code int) {
	t.mu.Lock()
	t.lastErr = code
	t.mu.Unlock()
}

// Emit delivers ev to the active sink synchronously. It reports false when
// discovery is not running.
func (t *Transport) Emit(ev sadp.RawEvent) bool {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return false
	}
	sink(ev)
	return true
}

// Running reports whether a discovery session is active.
func (t *Transport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink != nil
}

// Interval returns the last auto request interval set.
func (t *Transport) Interval() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Starts returns how often discovery was started.
func (t *Transport) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

// Stops returns how often discovery was stopped.
func (t *Transport) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// ActivateCalls returns a copy of recorded activations.
func (t *Transport) ActivateCalls() []ActivateCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ActivateCall(nil), t.activates...)
}

// ModifyCalls returns a copy of recorded reconfigurations.
func (t *Transport) ModifyCalls() []ModifyCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ModifyCall(nil), t.modifies...)
}
