package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sadp-fleet/internal/audit"
	"github.com/nerrad567/sadp-fleet/internal/campaign"
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/metrics"
	"github.com/nerrad567/sadp-fleet/internal/ipalloc"
)

// metricsPushTimeout bounds the final Pushgateway upload.
const metricsPushTimeout = 10 * time.Second

// errCampaignFailed is returned when at least one device could not be
// activated or readdressed.
var errCampaignFailed = errors.New("campaign finished with failures")

func newProvisionCommand(opts *globalOptions) *cobra.Command {
	var (
		dryRun bool
		asJSON bool
		start  string
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Activate devices and move those on the factory address to a new block",
		Long: `provision discovers every device, optionally activates the unactivated ones,
then gives each activated device still on provision.match_address the next free
address from provision.start_address / provision.netmask.

With --dry-run nothing is sent to the devices: the discovered inventory is used
to print the allocator range and the planned assignments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				if start != "" {
					s.cfg.Provision.StartAddress = start
				}
				alloc, err := newAllocator(s.cfg, s.log)
				if err != nil {
					return err
				}
				if dryRun {
					return planProvision(ctx, out, s, alloc)
				}
				return runProvision(ctx, out, s, alloc, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "discover and print planned assignments without changing any device")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the campaign report as JSON")
	cmd.Flags().StringVar(&start, "start", "", "override provision.start_address")
	return cmd
}

// newAllocator builds the address pool described by the provision section.
func newAllocator(cfg *config.Config, log *logging.Logger) (*ipalloc.Allocator, error) {
	allocOpts := []ipalloc.Option{ipalloc.WithLogger(log.Component("ipalloc"))}
	if cfg.Provision.Gateway != "" {
		allocOpts = append(allocOpts, ipalloc.WithGateway(cfg.Provision.Gateway))
	}
	alloc, err := ipalloc.New(cfg.Provision.StartAddress, cfg.Provision.Netmask, allocOpts...)
	if err != nil {
		return nil, fmt.Errorf("building address pool: %w", err)
	}
	return alloc, nil
}

// assignment is one planned readdress.
type assignment struct {
	MAC     string
	Serial  string
	From    string
	To      string
	Pending bool // not activated yet; only assigned if activation succeeds
}

// planAssignments pairs every record on match with the next pool address,
// in enumeration order. Unactivated records are included only when activate
// is set, mirroring what a campaign run would do. The returned bool is
// false when the pool ran out.
func planAssignments(records []device.Record, match string, activate bool, alloc campaign.Allocator) ([]assignment, bool) {
	var plan []assignment
	for _, r := range records {
		if r.IPv4Address != match || (!r.Activated && !activate) {
			continue
		}
		ip, err := alloc.Next()
		if err != nil {
			return plan, false
		}
		plan = append(plan, assignment{
			MAC:     r.HardwareAddress,
			Serial:  r.SerialNumber,
			From:    r.IPv4Address,
			To:      ip.String(),
			Pending: !r.Activated,
		})
	}
	return plan, true
}

func planProvision(ctx context.Context, out io.Writer, s *session, alloc *ipalloc.Allocator) error {
	defer func() {
		if err := s.runner.Stop(ctx); err != nil {
			s.log.Warn("failed to stop discovery", "error", err)
		}
	}()
	if _, err := s.runner.Discover(ctx); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	info := alloc.Info()
	fmt.Fprintf(out, "network:   %s (broadcast %s)\n", alloc.Prefix(), info.Broadcast)
	fmt.Fprintf(out, "netmask:   %s\n", info.Netmask)
	fmt.Fprintf(out, "gateway:   %s\n", info.Gateway)
	fmt.Fprintf(out, "pool:      %d available of %d hosts\n\n", info.Available, info.Total)

	plan, complete := planAssignments(s.registry.List(), s.cfg.Provision.MatchAddress, s.cfg.Provision.Activate, alloc)

	tw := newTable(out)
	fmt.Fprintln(tw, "MAC\tSERIAL\tFROM\tTO\tNOTE")
	for _, a := range plan {
		note := ""
		if a.Pending {
			note = "after activation"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.MAC, a.Serial, a.From, a.To, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d device(s) would be readdressed\n", len(plan))
	if !complete {
		fmt.Fprintln(out, "the pool is too small for every matching device")
	}
	return nil
}

func runProvision(ctx context.Context, out io.Writer, s *session, alloc *ipalloc.Allocator, asJSON bool) error {
	if s.cfg.InfluxDB.Enabled {
		ic, err := influxdb.Connect(s.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if err := ic.Close(); err != nil {
				s.log.Error("error closing InfluxDB", "error", err)
			}
		}()
		ic.SetOnError(func(err error) { s.log.Error("InfluxDB write error", "error", err) })
		s.runner.AddSink(campaign.NewInfluxSink(ic))
	}
	if s.cfg.Database.Enabled {
		recorder, closeTrail, err := openTrail(ctx, s, "provision")
		if err != nil {
			return err
		}
		defer closeTrail()
		s.runner.AddSink(recorder)
	}

	if s.cfg.Metrics.Enabled && s.cfg.Metrics.PushURL != "" {
		m := metrics.New(s.cfg.Metrics.Namespace)
		m.WatchRegistry(s.registry)
		m.WatchRouter(s.router)
		m.WatchAllocator(alloc)
		s.router.Subscribe(m)
		s.runner.AddSink(m)
		defer pushMetrics(ctx, s, m)
	}

	report, err := s.runner.Run(ctx, s.cfg.Provision.DevicePassword, alloc)
	if errors.Is(err, campaign.ErrNoPassword) {
		return fmt.Errorf("%w (set %sDEVICE_PASSWORD)", err, config.EnvPrefix)
	}

	var printErr error
	if asJSON {
		printErr = writeJSON(out, report)
	} else {
		printErr = printReport(out, report)
	}

	switch {
	case err != nil:
		return err
	case printErr != nil:
		return printErr
	case report.Failed() > 0 || len(report.Activation.Failed) > 0 || len(report.Unconfirmed) > 0:
		return errCampaignFailed
	}
	return nil
}

// pushMetrics uploads the campaign's final metric values. It runs after
// cancellation too, so an interrupted campaign is still reported.
func pushMetrics(ctx context.Context, s *session, m *metrics.Metrics) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	grouping := map[string]string{"site": s.cfg.Site.ID, "gateway": s.cfg.Transport.GatewayID}
	if err := m.Push(pushCtx, s.cfg.Metrics.PushURL, "provision", grouping); err != nil {
		s.log.Warn("failed to push campaign metrics", "error", err)
		return
	}
	s.log.Info("campaign metrics pushed", "url", s.cfg.Metrics.PushURL)
}

// openTrail opens the inventory database and returns an audit recorder
// tagged with source, plus a func that closes the database.
func openTrail(ctx context.Context, s *session, source string) (*audit.Recorder, func(), error) {
	db, err := openInventory(ctx, s.cfg, s.log)
	if err != nil {
		return nil, nil, err
	}
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db), source)
	recorder.SetLogger(s.log.Component("audit"))
	return recorder, func() {
		if err := db.Close(); err != nil {
			s.log.Error("error closing database", "error", err)
		}
	}, nil
}
