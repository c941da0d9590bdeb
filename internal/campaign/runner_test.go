package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/sadp-fleet/internal/ipalloc"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
	"github.com/nerrad567/sadp-fleet/internal/sadp/sadptest"
)

const password = "Passw0rd!"

type harness struct {
	runner    *Runner
	transport *sadptest.Transport
	registry  *device.Registry
	router    *discovery.Router
	sink      *recordingSink
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	if cfg.SettleWindow == 0 {
		cfg.SettleWindow = 60 * time.Millisecond
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	if cfg.MatchAddress == "" {
		cfg.MatchAddress = "192.168.1.64"
	}

	h := &harness{
		transport: &sadptest.Transport{},
		registry:  device.NewRegistry(),
		sink:      &recordingSink{},
	}
	h.router = discovery.NewRouter(h.registry)
	h.runner = NewRunner(h.transport, h.registry, h.router, cfg)
	h.runner.AddSink(h.sink)
	return h
}

func macN(n int) string {
	return fmt.Sprintf("aa:bb:cc:dd:ee:%02x", n)
}

func raw(n, result int, ip string, activated bool) sadp.RawEvent {
	ev := sadp.RawEvent{
		Result:         result,
		MAC:            macN(n),
		SerialNo:       fmt.Sprintf("SERIAL%03d", n),
		IPv4Address:    ip,
		IPv4SubnetMask: "255.255.255.0",
		IPv4Gateway:    "192.168.1.1",
		Port:           8000,
		HTTPPort:       80,
		Activated:      1,
	}
	if activated {
		ev.Activated = 0
	}
	return ev
}

// startDiscovery opens a discovery session on the fake transport so that
// Emit reaches the router.
func (h *harness) startDiscovery(t *testing.T) {
	t.Helper()
	if err := h.transport.StartDiscovery(context.Background(), h.router.Sink()); err != nil {
		t.Fatalf("StartDiscovery() error = %v", err)
	}
}

// emitWhenRunning waits for discovery to start and then emits events.
func (h *harness) emitWhenRunning(events ...sadp.RawEvent) {
	go func() {
		for !h.transport.Running() {
			time.Sleep(time.Millisecond)
		}
		for _, ev := range events {
			h.transport.Emit(ev)
		}
	}()
}

// activateOnRequest makes the fake device announce itself activated once
// activation succeeds, unless its serial is listed in refuse.
func (h *harness) activateOnRequest(refuse map[string]int) {
	h.transport.OnActivate = func(serial, _ string) (bool, int) {
		if code, ok := refuse[serial]; ok {
			return false, code
		}
		for _, rec := range h.registry.List() {
			if rec.SerialNumber == serial {
				var n int
				fmt.Sscanf(serial, "SERIAL%03d", &n) //nolint:errcheck // test serials are well formed
				h.transport.Emit(raw(n, sadp.ResultUpdated, rec.IPv4Address, true))
			}
		}
		return true, 0
	}
}

type recordingSink struct {
	mu          sync.Mutex
	activations []string
	outcomes    []reconfig.Outcome
}

func (s *recordingSink) ActivationAttempted(rec device.Record, ok bool, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations = append(s.activations, fmt.Sprintf("%s:%v:%d", rec.HardwareAddress, ok, code))
}

func (s *recordingSink) Reconfigured(out reconfig.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
}

func mustAlloc(t *testing.T, start, mask string) *ipalloc.Allocator {
	t.Helper()
	a, err := ipalloc.New(start, mask)
	if err != nil {
		t.Fatalf("ipalloc.New() error = %v", err)
	}
	return a
}

func TestDiscover_SettlesAndSwitchesMode(t *testing.T) {
	h := newHarness(t, Config{AutoRequestInterval: 5})
	h.transport.VersionValue = sadp.Version(0x03010103)
	h.emitWhenRunning(
		raw(1, sadp.ResultAdded, "192.168.1.64", false),
		raw(2, sadp.ResultAdded, "192.168.1.64", false),
		raw(3, sadp.ResultAdded, "192.168.1.20", true),
	)

	n, err := h.runner.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Discover() = %d devices, want 3", n)
	}
	if h.router.Mode() != discovery.ModeSteadyState {
		t.Errorf("router mode = %v, want steady_state", h.router.Mode())
	}
	if h.transport.Interval() != 5 {
		t.Errorf("auto request interval = %d, want 5", h.transport.Interval())
	}
	if !h.transport.Running() {
		t.Error("discovery stopped by Discover, want it left running")
	}

	if err := h.runner.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.transport.Running() {
		t.Error("discovery still running after Stop")
	}
}

func TestDiscover_TransportUnavailable(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.Unavailable = true

	if _, err := h.runner.Discover(context.Background()); !errors.Is(err, sadp.ErrTransportUnavailable) {
		t.Errorf("Discover() error = %v, want ErrTransportUnavailable", err)
	}
}

func TestActivatePending(t *testing.T) {
	h := newHarness(t, Config{ActivationTimeout: 50 * time.Millisecond})
	h.startDiscovery(t)
	h.router.Handle(raw(1, sadp.ResultAdded, "192.168.1.64", false))
	h.router.Handle(raw(2, sadp.ResultAdded, "192.168.1.64", false))
	h.router.Handle(raw(3, sadp.ResultAdded, "192.168.1.64", true))
	h.activateOnRequest(map[string]int{"SERIAL002": 2025})

	report, err := h.runner.ActivatePending(context.Background(), password)
	if err != nil {
		t.Fatalf("ActivatePending() error = %v", err)
	}
	if len(report.Activated) != 1 || report.Activated[0] != macN(1) {
		t.Errorf("Activated = %v, want [%s]", report.Activated, macN(1))
	}
	if len(report.Failed) != 1 || report.Failed[0].MAC != macN(2) || report.Failed[0].Code != 2025 {
		t.Errorf("Failed = %+v", report.Failed)
	}

	calls := h.transport.ActivateCalls()
	if len(calls) != 2 {
		t.Fatalf("Activate calls = %d, want 2 (already activated device skipped)", len(calls))
	}
	if calls[0].Password != password {
		t.Errorf("password sent = %q", calls[0].Password)
	}
	if len(h.sink.activations) != 2 || h.sink.activations[1] != macN(2)+":false:2025" {
		t.Errorf("sink activations = %v", h.sink.activations)
	}

	unconfirmed, err := h.runner.AwaitActivation(context.Background(), []string{macN(1), macN(2)})
	if err != nil {
		t.Fatalf("AwaitActivation() error = %v", err)
	}
	if len(unconfirmed) != 1 || unconfirmed[0] != macN(2) {
		t.Errorf("unconfirmed = %v, want [%s]", unconfirmed, macN(2))
	}
}

func TestActivatePending_NoPassword(t *testing.T) {
	h := newHarness(t, Config{})
	if _, err := h.runner.ActivatePending(context.Background(), ""); !errors.Is(err, ErrNoPassword) {
		t.Errorf("ActivatePending() error = %v, want ErrNoPassword", err)
	}
	if _, err := h.runner.ReassignDefaults(context.Background(), "", mustAlloc(t, "10.0.0.1", "24")); !errors.Is(err, ErrNoPassword) {
		t.Errorf("ReassignDefaults() error = %v, want ErrNoPassword", err)
	}
}

func TestAwaitActivation_CallerCancel(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.Handle(raw(1, sadp.ResultAdded, "192.168.1.64", false))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := h.runner.AwaitActivation(ctx, []string{macN(1)}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AwaitActivation() error = %v, want deadline exceeded", err)
	}
}

func TestReassignDefaults_RecyclesRefusedAddress(t *testing.T) {
	h := newHarness(t, Config{HTTPPort: 8080})
	h.router.Handle(raw(1, sadp.ResultAdded, "192.168.1.64", true))
	h.router.Handle(raw(2, sadp.ResultAdded, "192.168.1.64", true))
	h.router.Handle(raw(3, sadp.ResultAdded, "192.168.1.64", true))
	h.router.Handle(raw(4, sadp.ResultAdded, "192.168.1.30", true))  // not on the default address
	h.router.Handle(raw(5, sadp.ResultAdded, "192.168.1.64", false)) // not activated

	h.transport.OnModify = func(mac, _ string, _ sadp.NetParams) (sadp.ModifyResult, int) {
		if mac == macN(2) {
			return sadp.ModifyResult{OK: false, RetryCount: 6}, sadp.CodePasswordError
		}
		return sadp.ModifyResult{OK: true}, 0
	}
	alloc := mustAlloc(t, "10.0.0.10", "24")

	outcomes, err := h.runner.ReassignDefaults(context.Background(), password, alloc)
	if err != nil {
		t.Fatalf("ReassignDefaults() error = %v", err)
	}

	calls := h.transport.ModifyCalls()
	want := []struct{ mac, ip string }{
		{macN(1), "10.0.0.10"},
		{macN(2), "10.0.0.11"},
		{macN(3), "10.0.0.11"},
	}
	if len(calls) != len(want) {
		t.Fatalf("ModifyNetworkParams calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].MAC != w.mac || calls[i].Params.IPv4Address != w.ip {
			t.Errorf("call %d = %s -> %s, want %s -> %s", i, calls[i].MAC, calls[i].Params.IPv4Address, w.mac, w.ip)
		}
		if calls[i].Params.IPv4Gateway != "10.0.0.1" || calls[i].Params.IPv4SubnetMask != "255.255.255.0" {
			t.Errorf("call %d gateway/mask = %s/%s", i, calls[i].Params.IPv4Gateway, calls[i].Params.IPv4SubnetMask)
		}
		if calls[i].Params.HTTPPort != 8080 || calls[i].Params.Port != 8000 {
			t.Errorf("call %d ports = %d/%d, want 8000/8080", i, calls[i].Params.Port, calls[i].Params.HTTPPort)
		}
	}

	if len(outcomes) != 3 || outcomes[1].Classification != reconfig.PasswordIncorrect {
		t.Errorf("outcomes = %+v", outcomes)
	}
	report := Report{Outcomes: outcomes}
	if report.Succeeded() != 2 || report.Failed() != 1 {
		t.Errorf("succeeded=%d failed=%d, want 2 and 1", report.Succeeded(), report.Failed())
	}
	if len(h.sink.outcomes) != 3 {
		t.Errorf("sink outcomes = %d, want 3", len(h.sink.outcomes))
	}
	if cur, _ := alloc.Current(); cur.String() != "10.0.0.11" {
		t.Errorf("allocator cursor at %s, want 10.0.0.11", cur)
	}
}

func TestReassignDefaults_Exhaustion(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 1; i <= 3; i++ {
		h.router.Handle(raw(i, sadp.ResultAdded, "192.168.1.64", true))
	}

	outcomes, err := h.runner.ReassignDefaults(context.Background(), password, mustAlloc(t, "10.0.0.1", "30"))
	if !errors.Is(err, ipalloc.ErrExhausted) {
		t.Fatalf("ReassignDefaults() error = %v, want ErrExhausted", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("outcomes = %d, want 2 before exhaustion", len(outcomes))
	}
}

func TestReassignDefaults_TransportFailureRecycles(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.Handle(raw(1, sadp.ResultAdded, "192.168.1.64", true))
	h.transport.Unavailable = true
	alloc := mustAlloc(t, "10.0.0.10", "24")
	before := alloc.Remaining()

	_, err := h.runner.ReassignDefaults(context.Background(), password, alloc)
	if !errors.Is(err, sadp.ErrTransportUnavailable) {
		t.Fatalf("ReassignDefaults() error = %v, want ErrTransportUnavailable", err)
	}
	if alloc.Remaining() != before {
		t.Errorf("Remaining() = %d, want %d after recycle", alloc.Remaining(), before)
	}
}

func TestRun_FullCampaign(t *testing.T) {
	h := newHarness(t, Config{Activate: true, ActivationTimeout: time.Second})
	h.activateOnRequest(nil)
	h.emitWhenRunning(
		raw(1, sadp.ResultAdded, "192.168.1.64", false),
		raw(2, sadp.ResultAdded, "192.168.1.64", true),
		raw(3, sadp.ResultAdded, "192.168.1.50", true),
	)

	report, err := h.runner.Run(context.Background(), password, mustAlloc(t, "10.0.0.100", "24"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Discovered != 3 {
		t.Errorf("Discovered = %d, want 3", report.Discovered)
	}
	if len(report.Activation.Activated) != 1 || len(report.Unconfirmed) != 0 {
		t.Errorf("activation = %+v unconfirmed = %v", report.Activation, report.Unconfirmed)
	}
	if report.Succeeded() != 2 || report.Exhausted {
		t.Errorf("succeeded = %d exhausted = %v, want 2 and false", report.Succeeded(), report.Exhausted)
	}
	if h.transport.Running() || h.transport.Stops() != 1 {
		t.Errorf("running=%v stops=%d, want discovery stopped once", h.transport.Running(), h.transport.Stops())
	}
}

func TestRun_StopsDiscoveryOnCancel(t *testing.T) {
	h := newHarness(t, Config{SettleWindow: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.runner.Run(ctx, password, mustAlloc(t, "10.0.0.1", "24"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if h.transport.Stops() != 1 {
		t.Errorf("Stops() = %d, want 1", h.transport.Stops())
	}
}

type fakeInflux struct {
	activations []string
	points      []influxdb.ReconfigurePoint
}

func (f *fakeInflux) WriteActivation(mac, serial string, success bool, code int) {
	f.activations = append(f.activations, fmt.Sprintf("%s/%s/%v/%d", mac, serial, success, code))
}

func (f *fakeInflux) WriteReconfigureOutcome(p influxdb.ReconfigurePoint) {
	f.points = append(f.points, p)
}

func TestInfluxSink(t *testing.T) {
	f := &fakeInflux{}
	s := NewInfluxSink(f)

	s.ActivationAttempted(device.Record{HardwareAddress: macN(1), SerialNumber: "SERIAL001"}, false, 2025)
	s.Reconfigured(reconfig.Outcome{
		HardwareAddress:  macN(1),
		ErrorCode:        2018,
		Classification:   reconfig.DeviceLocked,
		LockMinutes:      30,
		RetriesRemaining: 0,
		Params:           sadp.NetParams{IPv4Address: "10.0.0.5"},
	})

	if len(f.activations) != 1 || f.activations[0] != macN(1)+"/SERIAL001/false/2025" {
		t.Errorf("activations = %v", f.activations)
	}
	want := influxdb.ReconfigurePoint{
		MAC:            macN(1),
		Classification: "device_locked",
		IPv4:           "10.0.0.5",
		ErrorCode:      2018,
		LockMinutes:    30,
	}
	if len(f.points) != 1 || f.points[0] != want {
		t.Errorf("points = %+v, want %+v", f.points, want)
	}
}
