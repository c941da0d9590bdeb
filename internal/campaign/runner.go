package campaign

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/ipalloc"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

// stopTimeout bounds StopDiscovery when the campaign context is already done.
const stopTimeout = 5 * time.Second

// Logger is the logging interface used by the runner.
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

// Allocator hands out replacement addresses. *ipalloc.Allocator satisfies it.
type Allocator interface {
	Next() (netip.Addr, error)
	RecycleLast() bool
	Netmask() string
	Gateway() netip.Addr
	Remaining() int
}

// ActivationFailure is one device that refused activation.
type ActivationFailure struct {
	MAC    string `json:"mac"`
	Serial string `json:"serial"`
	Code   int    `json:"error_code"`
}

// ActivationReport summarises ActivatePending.
type ActivationReport struct {
	Activated []string            `json:"activated"`
	Failed    []ActivationFailure `json:"failed"`
}

// Report summarises a full Run.
type Report struct {
	Discovered  int                `json:"discovered"`
	Activation  ActivationReport   `json:"activation"`
	Unconfirmed []string           `json:"unconfirmed,omitempty"`
	Outcomes    []reconfig.Outcome `json:"outcomes"`
	Exhausted   bool               `json:"exhausted"`
}

// Succeeded returns the number of successful reconfigurations.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed returns the number of refused reconfigurations.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Runner drives discovery, activation and address reassignment against
// one transport and registry.
type Runner struct {
	transport sadp.Transport
	registry  *device.Registry
	router    *discovery.Router
	settler   *device.Settler
	workflow  *reconfig.Workflow
	cfg       Config
	sinks     []OutcomeSink
	logger    Logger
}

// NewRunner creates a runner. The router must apply events to registry.
func NewRunner(transport sadp.Transport, registry *device.Registry, router *discovery.Router, cfg Config) *Runner {
	return &Runner{
		transport: transport,
		registry:  registry,
		router:    router,
		settler:   device.NewSettler(cfg.SettleWindow, cfg.PollInterval),
		workflow:  reconfig.NewWorkflow(transport, registry),
		cfg:       cfg,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the runner and the components it owns.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
	r.settler.SetLogger(logger)
	r.workflow.SetLogger(logger)
}

// AddSink registers a sink for activation and reconfiguration results.
func (r *Runner) AddSink(s OutcomeSink) {
	r.sinks = append(r.sinks, s)
}

// Workflow returns the reconfiguration workflow used by the runner.
func (r *Runner) Workflow() *reconfig.Workflow {
	return r.workflow
}

// Discover starts discovery and blocks until the registry stops growing.
// The router is in steady-state mode when Discover returns successfully.
// Discovery keeps running; call Stop when done.
func (r *Runner) Discover(ctx context.Context) (int, error) {
	if err := r.transport.SetAutoRequestInterval(ctx, r.cfg.AutoRequestInterval); err != nil {
		return 0, fmt.Errorf("setting auto request interval: %w", err)
	}

	r.router.SetMode(discovery.ModeInitialScan)
	if err := r.transport.StartDiscovery(ctx, r.router.Sink()); err != nil {
		return 0, fmt.Errorf("starting discovery: %w", err)
	}

	if v, err := r.transport.Version(ctx); err != nil {
		r.logger.Warn("failed to read SDK version", "error", err)
	} else {
		r.logger.Info("discovery started", "sdk_version", v.String())
	}

	n, err := r.settler.WaitQuiet(ctx, r.registry)
	if err != nil {
		return n, err
	}
	r.router.SetMode(discovery.ModeSteadyState)
	r.logger.Info("discovery settled", "devices", n)
	return n, nil
}

// Stop ends discovery. It still reaches the transport when ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
	}
	if err := r.transport.StopDiscovery(ctx); err != nil {
		return fmt.Errorf("stopping discovery: %w", err)
	}
	return nil
}

// ActivatePending activates every device the registry reports as not
// activated. Refusals are collected; a transport failure stops the loop.
func (r *Runner) ActivatePending(ctx context.Context, password string) (ActivationReport, error) {
	var report ActivationReport
	if password == "" {
		return report, ErrNoPassword
	}

	pending := r.registry.Filter(func(rec device.Record) bool { return !rec.Activated })
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ok, err := r.transport.Activate(ctx, rec.SerialNumber, password)
		if err != nil {
			return report, fmt.Errorf("activating %s: %w", rec.HardwareAddress, err)
		}

		code := 0
		if ok {
			report.Activated = append(report.Activated, rec.HardwareAddress)
			r.logger.Info("device activated", "mac", rec.HardwareAddress, "serial", rec.SerialNumber)
		} else {
			code = r.transport.LastErrorCode()
			report.Failed = append(report.Failed, ActivationFailure{
				MAC:    rec.HardwareAddress,
				Serial: rec.SerialNumber,
				Code:   code,
			})
			r.logger.Warn("device refused activation", "mac", rec.HardwareAddress, "code", code)
		}
		for _, s := range r.sinks {
			s.ActivationAttempted(rec, ok, code)
		}
	}
	return report, nil
}

// AwaitActivation waits until each device reports itself activated, bounded
// by the configured activation timeout. It returns the MACs that did not
// confirm in time. An error is returned only if ctx itself ends.
func (r *Runner) AwaitActivation(ctx context.Context, macs []string) ([]string, error) {
	waitCtx := ctx
	if r.cfg.ActivationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.cfg.ActivationTimeout)
		defer cancel()
	}

	var unconfirmed []string
	for _, mac := range macs {
		if _, err := r.settler.WaitFor(waitCtx, r.registry, mac, device.Activated); err != nil {
			if ctx.Err() != nil {
				return unconfirmed, ctx.Err()
			}
			r.logger.Warn("device did not confirm activation", "mac", mac, "error", err)
			unconfirmed = append(unconfirmed, mac)
		}
	}
	return unconfirmed, nil
}

// ReassignDefaults gives every activated device still on the match address
// a new address from alloc. The address is recycled whenever the device did
// not take it. Exhaustion ends the loop with an error wrapping
// ipalloc.ErrExhausted.
func (r *Runner) ReassignDefaults(ctx context.Context, password string, alloc Allocator) ([]reconfig.Outcome, error) {
	if password == "" {
		return nil, ErrNoPassword
	}

	targets := r.registry.Filter(func(rec device.Record) bool {
		return rec.Activated && rec.IPv4Address == r.cfg.MatchAddress
	})
	r.logger.Info("reassigning default addresses",
		"match_address", r.cfg.MatchAddress, "devices", len(targets), "available", alloc.Remaining())

	outcomes := make([]reconfig.Outcome, 0, len(targets))
	for _, rec := range targets {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		ip, err := alloc.Next()
		if err != nil {
			r.logger.Warn("address pool exhausted", "unassigned_from", rec.HardwareAddress)
			return outcomes, fmt.Errorf("assigning %s: %w", rec.HardwareAddress, err)
		}

		out, err := r.workflow.Reconfigure(ctx, rec.HardwareAddress, password, r.overrides(ip, alloc))
		if err != nil {
			alloc.RecycleLast()
			if errors.Is(err, reconfig.ErrUnknownDevice) {
				// Went offline since the snapshot.
				r.logger.Warn("device disappeared before reassignment", "mac", rec.HardwareAddress)
				continue
			}
			return outcomes, err
		}

		if !out.Success {
			alloc.RecycleLast()
		}
		for _, s := range r.sinks {
			s.Reconfigured(out)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (r *Runner) overrides(ip netip.Addr, alloc Allocator) reconfig.Overrides {
	ov := reconfig.Address(ip.String(), alloc.Netmask(), alloc.Gateway().String())
	if r.cfg.Port != 0 {
		ov.Port = reconfig.Ptr(r.cfg.Port)
	}
	if r.cfg.HTTPPort != 0 {
		ov.HTTPPort = reconfig.Ptr(r.cfg.HTTPPort)
	}
	return ov
}

// Run performs discovery, optional activation and address reassignment.
// Discovery is always stopped before Run returns.
func (r *Runner) Run(ctx context.Context, password string, alloc Allocator) (report Report, err error) {
	defer func() {
		if stopErr := r.Stop(ctx); stopErr != nil {
			r.logger.Warn("failed to stop discovery", "error", stopErr)
			if err == nil {
				err = stopErr
			}
		}
	}()

	if report.Discovered, err = r.Discover(ctx); err != nil {
		return report, err
	}

	if r.cfg.Activate {
		if report.Activation, err = r.ActivatePending(ctx, password); err != nil {
			return report, err
		}
		if report.Unconfirmed, err = r.AwaitActivation(ctx, report.Activation.Activated); err != nil {
			return report, err
		}
	}

	report.Outcomes, err = r.ReassignDefaults(ctx, password, alloc)
	if errors.Is(err, ipalloc.ErrExhausted) {
		report.Exhausted = true
	}
	if err != nil {
		return report, err
	}

	r.logger.Info("campaign finished",
		"discovered", report.Discovered,
		"reassigned", report.Succeeded(),
		"failed", report.Failed())
	return report, nil
}
