package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/logging"
)

const (
	name = "sadpctl"

	// defaultConfigPath is used when neither --config nor SADPFLEET_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	configEnv = config.EnvPrefix + "CONFIG"
)

// globalOptions holds persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           name,
		Short:         "Discover, activate and readdress SADP devices",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to the YAML config file (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newVersionCommand(opts),
		newDiscoverCommand(opts),
		newProvisionCommand(opts),
		newReconfigureCommand(opts),
		newWatchCommand(opts),
	)
	return root
}

// resolveConfigPath returns the config path and whether it was asked for
// explicitly. The built-in default path may be absent.
func (o *globalOptions) resolveConfigPath() (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// load reads the configuration and builds the logger it describes.
// Without an explicit path and without configs/config.yaml, built-in
// defaults plus environment overrides are used.
func (o *globalOptions) load() (*config.Config, *logging.Logger, error) {
	path, explicit := o.resolveConfigPath()

	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		if cfg, err = config.Default(); err != nil {
			return nil, nil, fmt.Errorf("loading default config: %w", err)
		}
		path = "(defaults)"
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", path, "site", cfg.Site.ID)
	return cfg, log, nil
}
