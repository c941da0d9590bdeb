package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/database"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/logging"
)

func newDiscoverCommand(opts *globalOptions) *cobra.Command {
	var (
		save    bool
		asJSON  bool
		onlyNew bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover devices until the network goes quiet and list them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				defer func() {
					if err := s.runner.Stop(ctx); err != nil {
						s.log.Warn("failed to stop discovery", "error", err)
					}
				}()

				if _, err := s.runner.Discover(ctx); err != nil {
					return fmt.Errorf("discovery: %w", err)
				}

				records := s.registry.List()
				if onlyNew {
					records = s.registry.Filter(func(r device.Record) bool { return !r.Activated })
				}

				if save {
					if err := saveSnapshot(ctx, s.cfg, s.log, s.registry.List()); err != nil {
						return err
					}
				}

				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return printDevices(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the discovered inventory to the SQLite database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&onlyNew, "unactivated", false, "list only devices that are not activated")
	return cmd
}

// openInventory opens and migrates the SQLite inventory.
func openInventory(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("inventory database ready", "path", cfg.Database.Path)
	return db, nil
}

// saveSnapshot replaces the stored inventory with records.
func saveSnapshot(ctx context.Context, cfg *config.Config, log *logging.Logger, records []device.Record) error {
	db, err := openInventory(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := device.NewSQLiteRepository(db).SaveSnapshot(ctx, records); err != nil {
		return fmt.Errorf("saving inventory snapshot: %w", err)
	}
	log.Info("inventory snapshot saved", "devices", len(records))
	return nil
}
