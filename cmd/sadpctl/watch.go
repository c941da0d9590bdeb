package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/sadp-fleet/internal/api"
	"github.com/nerrad567/sadp-fleet/internal/audit"
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/influxdb"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/metrics"
)

const snapshotWriteTimeout = 10 * time.Second

func newWatchCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep discovery running and serve the live inventory",
		Long: `watch runs discovery until interrupted. After the initial scan settles, device
changes are logged, published to MQTT, recorded in SQLite and InfluxDB when
enabled, and served by the status API and websocket feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
}

func runWatch(ctx context.Context, opts *globalOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	log.Info("starting sadp-fleet watch", "version", version, "commit", commit, "build_date", date)

	s, err := openSession(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	// fail stops everything already started before a setup error is returned.
	fail := func(err error) error {
		stop()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			return errors.Join(err, werr)
		}
		return err
	}

	// The supervisor lives for the whole run; session.Close stops it again,
	// which is a no-op once Run has returned.
	if s.supervisor != nil {
		g.Go(func() error { return s.supervisor.Run(gctx) })
	}
	if err := s.waitOnline(gctx); err != nil {
		return fail(err)
	}

	checks := map[string]api.HealthChecker{
		"mqtt":    s.mqtt,
		"gateway": s.client,
	}
	if s.supervisor != nil {
		checks["gateway_process"] = s.supervisor
	}

	// Observers are subscribed before discovery starts so the initial scan
	// is seen by all of them.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		m.WatchRegistry(s.registry)
		m.WatchRouter(s.router)
		s.router.Subscribe(m)
		s.runner.AddSink(m)
	}

	publisher := discovery.NewMQTTPublisher(s.mqtt, s.mqtt.Topics(), byte(cfg.MQTT.QoS), cfg.Transport.EventBuffer)
	publisher.SetLogger(log.Component("publisher"))
	s.router.Subscribe(publisher)
	g.Go(func() error { return publisher.Run(gctx) })

	if cfg.InfluxDB.Enabled {
		ic, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fail(fmt.Errorf("connecting to InfluxDB: %w", err))
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if err := ic.Close(); err != nil {
				log.Error("error closing InfluxDB", "error", err)
			}
		}()
		ic.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		s.router.Subscribe(discovery.NewInfluxObserver(ic))
		checks["influxdb"] = ic
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	var trail audit.Repository
	if cfg.Database.Enabled {
		db, err := openInventory(ctx, cfg, log)
		if err != nil {
			return fail(err)
		}
		defer func() {
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}()
		repo := device.NewSQLiteRepository(db)
		if previous, err := repo.ListSnapshot(ctx); err == nil {
			log.Info("previous inventory snapshot", "devices", len(previous))
		}

		eventLog := discovery.NewEventLog(repo, cfg.Transport.EventBuffer, log.Component("event-log"))
		s.router.Subscribe(eventLog)
		g.Go(func() error { return eventLog.Run(gctx) })
		g.Go(func() error { return snapshotLoop(gctx, repo, s, cfg.Database.SnapshotInterval) })
		checks["database"] = db
		trail = audit.NewSQLiteRepository(db)
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Registry: s.registry,
			Router:   s.router,
			Audit:    trail,
			Checks:   checks,
			Version:  version,
		}
		if m != nil {
			deps.Metrics = m.Handler()
		}
		srv, err := api.New(deps)
		if err != nil {
			return fail(fmt.Errorf("creating API server: %w", err))
		}
		s.router.Subscribe(srv.Hub())
		if err := srv.Start(gctx); err != nil {
			return fail(err)
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Error("error closing API server", "error", err)
			}
		}()
	} else if m != nil {
		log.Info("metrics enabled without the API server; /metrics is not served")
	}

	defer func() {
		if err := s.runner.Stop(ctx); err != nil {
			log.Warn("failed to stop discovery", "error", err)
		}
	}()
	n, err := s.runner.Discover(gctx)
	switch {
	case err == nil:
		log.Info("initial scan complete, watching for changes", "devices", n)
	case gctx.Err() == nil:
		return fail(fmt.Errorf("discovery: %w", err))
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("sadp-fleet watch stopped")
	return nil
}

// snapshotLoop persists the registry every interval and once more on
// shutdown. A zero interval only writes the final snapshot.
func snapshotLoop(ctx context.Context, repo device.Repository, s *session, interval time.Duration) error {
	save := func(ctx context.Context) {
		records := s.registry.List()
		if err := repo.SaveSnapshot(ctx, records); err != nil {
			s.log.Warn("failed to save inventory snapshot", "error", err)
			return
		}
		s.log.Debug("inventory snapshot saved", "devices", len(records))
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotWriteTimeout)
			save(finalCtx)
			cancel()
			return nil
		case <-tick:
			save(ctx)
		}
	}
}
