package campaign

import (
	"time"

	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
)

// Config tunes one provisioning campaign.
type Config struct {
	// AutoRequestInterval is passed to the transport before discovery starts.
	AutoRequestInterval int

	SettleWindow time.Duration
	PollInterval time.Duration

	// ActivationTimeout bounds AwaitActivation as a whole. 0 means no bound
	// beyond the caller's context.
	ActivationTimeout time.Duration

	// Activate makes Run activate unactivated devices before reassignment.
	Activate bool

	// MatchAddress selects devices to readdress, normally the factory default.
	MatchAddress string

	// Port and HTTPPort replace the device service ports when non-zero.
	Port     uint16
	HTTPPort uint16
}

// FromConfig builds a campaign Config from the loaded configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		AutoRequestInterval: cfg.Transport.AutoRequestInterval,
		SettleWindow:        cfg.Discovery.SettleWindow,
		PollInterval:        cfg.Discovery.PollInterval,
		ActivationTimeout:   cfg.Discovery.ActivationTimeout,
		Activate:            cfg.Provision.Activate,
		MatchAddress:        cfg.Provision.MatchAddress,
		Port:                uint16(cfg.Provision.Port),
		HTTPPort:            uint16(cfg.Provision.HTTPPort),
	}
}
