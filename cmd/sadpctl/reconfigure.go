package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

// reconfigureFlags holds the raw flag values. Only flags the user set
// become overrides; everything else keeps the device's current value.
type reconfigureFlags struct {
	mac      string
	password string
	asJSON   bool

	ip          string
	mask        string
	gateway     string
	ipv6        string
	ipv6Gateway string
	ipv6Prefix  uint8
	port        uint16
	httpPort    uint16
	tlsPort     uint32
	dhcp        bool
}

func newReconfigureCommand(opts *globalOptions) *cobra.Command {
	f := &reconfigureFlags{}

	cmd := &cobra.Command{
		Use:   "reconfigure --mac <address> [flags]",
		Short: "Change the network parameters of one device",
		Long: `reconfigure discovers the network, then applies the given parameters to the
device with the given hardware address. Parameters that are not given keep the
value the device currently reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov, err := f.overrides(cmd.Flags())
			if err != nil {
				return err
			}
			if ov.IsZero() {
				return errors.New("nothing to change: give at least one network parameter")
			}

			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				password := f.password
				if password == "" {
					password = s.cfg.Provision.DevicePassword
				}

				defer func() {
					if err := s.runner.Stop(ctx); err != nil {
						s.log.Warn("failed to stop discovery", "error", err)
					}
				}()
				if _, err := s.runner.Discover(ctx); err != nil {
					return fmt.Errorf("discovery: %w", err)
				}

				out, err := s.runner.Workflow().Reconfigure(ctx, f.mac, password, ov)
				if err != nil {
					return err
				}
				if s.cfg.Database.Enabled {
					recorder, closeTrail, err := openTrail(ctx, s, "reconfigure")
					if err != nil {
						return err
					}
					recorder.Reconfigured(out)
					closeTrail()
				}

				if f.asJSON {
					if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				} else if err := printOutcomes(cmd.OutOrStdout(), []reconfig.Outcome{out}); err != nil {
					return err
				}
				return out.Err()
			})
		},
	}

	f.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("mac")
	return cmd
}

// register binds the flags to fs.
func (f *reconfigureFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.mac, "mac", "", "hardware address of the device (any common notation)")
	fs.StringVar(&f.password, "password", "", "admin password (default provision.device_password)")
	fs.BoolVar(&f.asJSON, "json", false, "print the outcome as JSON")
	fs.StringVar(&f.ip, "ip", "", "IPv4 address")
	fs.StringVar(&f.mask, "mask", "", "IPv4 subnet mask")
	fs.StringVar(&f.gateway, "gateway", "", "IPv4 gateway")
	fs.StringVar(&f.ipv6, "ipv6", "", "IPv6 address")
	fs.StringVar(&f.ipv6Gateway, "ipv6-gateway", "", "IPv6 gateway")
	fs.Uint8Var(&f.ipv6Prefix, "ipv6-prefix", 0, "IPv6 prefix length")
	fs.Uint16Var(&f.port, "port", 0, "SDK service port")
	fs.Uint16Var(&f.httpPort, "http-port", 0, "HTTP port")
	fs.Uint32Var(&f.tlsPort, "tls-port", 0, "SDK over TLS port")
	fs.BoolVar(&f.dhcp, "dhcp", false, "enable DHCP (--dhcp=false disables it)")
}

// overrides turns the flags that were set into reconfig.Overrides,
// validating address syntax before anything is sent.
func (f *reconfigureFlags) overrides(fs *pflag.FlagSet) (reconfig.Overrides, error) {
	var ov reconfig.Overrides

	addrs := []struct {
		flag string
		val  string
		v6   bool
		dst  **string
	}{
		{"ip", f.ip, false, &ov.IPv4Address},
		{"mask", f.mask, false, &ov.IPv4SubnetMask},
		{"gateway", f.gateway, false, &ov.IPv4Gateway},
		{"ipv6", f.ipv6, true, &ov.IPv6Address},
		{"ipv6-gateway", f.ipv6Gateway, true, &ov.IPv6Gateway},
	}
	for _, a := range addrs {
		if !fs.Changed(a.flag) {
			continue
		}
		ip, err := netip.ParseAddr(a.val)
		if err != nil || ip.Is6() != a.v6 {
			return ov, fmt.Errorf("--%s: %q is not a valid address", a.flag, a.val)
		}
		*a.dst = reconfig.Ptr(ip.String())
	}

	if fs.Changed("ipv6-prefix") {
		if f.ipv6Prefix > 128 {
			return ov, fmt.Errorf("--ipv6-prefix: %d is out of range", f.ipv6Prefix)
		}
		ov.IPv6PrefixLen = reconfig.Ptr(f.ipv6Prefix)
	}
	if fs.Changed("port") {
		ov.Port = reconfig.Ptr(f.port)
	}
	if fs.Changed("http-port") {
		ov.HTTPPort = reconfig.Ptr(f.httpPort)
	}
	if fs.Changed("tls-port") {
		ov.SDKOverTLSPort = reconfig.Ptr(f.tlsPort)
	}
	if fs.Changed("dhcp") {
		ov.DHCPEnabled = reconfig.Ptr(f.dhcp)
	}
	return ov, nil
}
