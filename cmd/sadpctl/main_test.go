package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/sadp-fleet/internal/campaign"
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/sadp-fleet/internal/ipalloc"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	for _, name := range []string{"version", "discover", "provision", "reconfigure", "watch"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config persistent flag missing")
	}
}

func TestVersionCommand_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	if err != nil {
		t.Fatalf("version --short error = %v", err)
	}
	if !strings.HasPrefix(out, "sadpctl dev (commit unknown") {
		t.Errorf("output = %q", out)
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name         string
		flag         string
		env          string
		wantPath     string
		wantExplicit bool
	}{
		{"flag wins", "/etc/sadp/flag.yaml", "/etc/sadp/env.yaml", "/etc/sadp/flag.yaml", true},
		{"environment", "", "/etc/sadp/env.yaml", "/etc/sadp/env.yaml", true},
		{"default", "", "", defaultConfigPath, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(configEnv, tt.env)
			opts := &globalOptions{configPath: tt.flag}

			path, explicit := opts.resolveConfigPath()
			if path != tt.wantPath || explicit != tt.wantExplicit {
				t.Errorf("resolveConfigPath() = %q, %v; want %q, %v", path, explicit, tt.wantPath, tt.wantExplicit)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("explicit path must exist", func(t *testing.T) {
		opts := &globalOptions{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
		if _, _, err := opts.load(); err == nil {
			t.Error("load() with missing explicit config succeeded")
		}
	})

	t.Run("defaults without a config file", func(t *testing.T) {
		t.Setenv(configEnv, "")
		cfg, log, err := (&globalOptions{}).load()
		if err != nil {
			t.Fatalf("load() error = %v", err)
		}
		if log == nil || cfg.Provision.MatchAddress != "192.168.1.64" {
			t.Errorf("load() = %+v", cfg.Provision)
		}
	})

	t.Run("file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "site:\n  id: lab\nprovision:\n  start_address: 10.9.0.20\n  netmask: \"24\"\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		cfg, _, err := (&globalOptions{configPath: path}).load()
		if err != nil {
			t.Fatalf("load() error = %v", err)
		}
		if cfg.Site.ID != "lab" || cfg.Provision.StartAddress != "10.9.0.20" {
			t.Errorf("config = site %q start %q", cfg.Site.ID, cfg.Provision.StartAddress)
		}
	})
}

func TestReconfigureCommand_ValidatesBeforeConnecting(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing mac", []string{"reconfigure", "--ip", "10.0.0.5"}, `required flag(s) "mac" not set`},
		{"no parameters", []string{"reconfigure", "--mac", "aa:bb:cc:dd:ee:01"}, "nothing to change"},
		{"bad address", []string{"reconfigure", "--mac", "aa:bb:cc:dd:ee:01", "--ip", "10.0.0"}, "--ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func parseReconfigureFlags(t *testing.T, args ...string) (*reconfigureFlags, *pflag.FlagSet) {
	t.Helper()
	f := &reconfigureFlags{}
	fs := pflag.NewFlagSet("reconfigure", pflag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
	return f, fs
}

func TestReconfigureFlags_Overrides(t *testing.T) {
	f, fs := parseReconfigureFlags(t,
		"--ip", "10.0.0.5", "--mask", "255.255.255.0", "--http-port", "8080", "--dhcp=false",
		"--ipv6", "fd00::5", "--ipv6-prefix", "64")

	ov, err := f.overrides(fs)
	if err != nil {
		t.Fatalf("overrides() error = %v", err)
	}

	want := reconfig.Overrides{
		IPv4Address:    reconfig.Ptr("10.0.0.5"),
		IPv4SubnetMask: reconfig.Ptr("255.255.255.0"),
		IPv6Address:    reconfig.Ptr("fd00::5"),
		IPv6PrefixLen:  reconfig.Ptr(uint8(64)),
		HTTPPort:       reconfig.Ptr(uint16(8080)),
		DHCPEnabled:    reconfig.Ptr(false),
	}
	rec := device.Record{
		IPv4Address:    "192.168.1.64",
		IPv4SubnetMask: "255.255.255.0",
		IPv4Gateway:    "192.168.1.1",
		Port:           8000,
		HTTPPort:       80,
		DHCPEnabled:    true,
	}
	if got, exp := reconfig.Resolve(rec, ov), reconfig.Resolve(rec, want); got != exp {
		t.Errorf("resolved params = %+v, want %+v", got, exp)
	}
	if ov.IPv4Gateway != nil || ov.Port != nil || ov.SDKOverTLSPort != nil {
		t.Error("unset flags produced overrides")
	}
}

func TestReconfigureFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"ipv6 in ipv4 flag", []string{"--ip", "fd00::1"}},
		{"ipv4 in ipv6 flag", []string{"--ipv6", "10.0.0.1"}},
		{"garbage gateway", []string{"--gateway", "router"}},
		{"prefix too long", []string{"--ipv6-prefix", "200"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, fs := parseReconfigureFlags(t, tt.args...)
			if _, err := f.overrides(fs); err == nil {
				t.Error("overrides() succeeded, want error")
			}
		})
	}
}

func record(mac, ip string, activated bool) device.Record {
	return device.Record{
		HardwareAddress: mac,
		SerialNumber:    "SN-" + mac[len(mac)-2:],
		IPv4Address:     ip,
		Activated:       activated,
		LastEvent:       device.KindAdded,
	}
}

func TestPlanAssignments(t *testing.T) {
	records := []device.Record{
		record("aa:bb:cc:dd:ee:01", "192.168.1.64", true),
		record("aa:bb:cc:dd:ee:02", "10.0.0.7", true),
		record("aa:bb:cc:dd:ee:03", "192.168.1.64", false),
		record("aa:bb:cc:dd:ee:04", "192.168.1.64", true),
	}

	tests := []struct {
		name     string
		activate bool
		mask     string
		wantTo   []string
		complete bool
	}{
		{"activated only", false, "24", []string{"10.0.0.10", "10.0.0.11"}, true},
		{"with activation", true, "24", []string{"10.0.0.10", "10.0.0.11", "10.0.0.12"}, true},
		{"pool too small", true, "30", []string{"10.0.0.10"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// In 10.0.0.8/30 only .10 is left from this start.
			alloc, err := ipalloc.New("10.0.0.10", tt.mask)
			if err != nil {
				t.Fatalf("ipalloc.New() error = %v", err)
			}

			plan, complete := planAssignments(records, "192.168.1.64", tt.activate, alloc)
			if complete != tt.complete {
				t.Errorf("complete = %v, want %v", complete, tt.complete)
			}
			if len(plan) != len(tt.wantTo) {
				t.Fatalf("plan = %+v, want %d entries", plan, len(tt.wantTo))
			}
			for i, a := range plan {
				if a.To != tt.wantTo[i] || a.From != "192.168.1.64" {
					t.Errorf("plan[%d] = %+v, want to %s", i, a, tt.wantTo[i])
				}
			}
			if tt.activate && tt.complete && !plan[1].Pending {
				t.Error("unactivated device not marked pending")
			}
		})
	}
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	rec := record("aa:bb:cc:dd:ee:01", "192.168.1.64", true)
	rec.Details.Model = "DS-2CD2143G0-I"

	if err := printDevices(&buf, []device.Record{rec}); err != nil {
		t.Fatalf("printDevices() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"MAC", "aa:bb:cc:dd:ee:01", "DS-2CD2143G0-I", "yes", "1 device(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReport(t *testing.T) {
	report := campaign.Report{
		Discovered: 3,
		Activation: campaign.ActivationReport{
			Activated: []string{"aa:bb:cc:dd:ee:01"},
			Failed:    []campaign.ActivationFailure{{MAC: "aa:bb:cc:dd:ee:02", Serial: "SN-02", Code: 2025}},
		},
		Outcomes: []reconfig.Outcome{
			{HardwareAddress: "aa:bb:cc:dd:ee:01", Success: true, Message: "network parameters updated",
				Params: sadp.NetParams{IPv4Address: "10.0.0.10"}},
			{HardwareAddress: "aa:bb:cc:dd:ee:03", ErrorCode: sadp.CodePasswordError,
				Classification: reconfig.PasswordIncorrect, Message: "incorrect password, 2 attempts remaining"},
		},
		Exhausted: true,
	}

	var buf bytes.Buffer
	if err := printReport(&buf, report); err != nil {
		t.Fatalf("printReport() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"discovered:  3",
		"activated:   1 of 2",
		"refused activation, code 2025",
		"1 succeeded, 1 failed",
		"pool exhausted",
		"password_incorrect",
		"10.0.0.10",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

type fakeRepo struct {
	mu    sync.Mutex
	saves int
	last  []device.Record
}

func (r *fakeRepo) SaveSnapshot(_ context.Context, records []device.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.last = records
	return nil
}

func (r *fakeRepo) ListSnapshot(context.Context) ([]device.Record, error) { return nil, nil }

func (r *fakeRepo) AppendEvent(context.Context, device.Record) error {
	return errors.New("not used")
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func TestSnapshotLoop(t *testing.T) {
	reg := device.NewRegistry()
	reg.Apply(record("aa:bb:cc:dd:ee:01", "10.0.0.10", true))
	s := &session{
		registry: reg,
		log:      logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard),
	}
	repo := &fakeRepo{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- snapshotLoop(ctx, repo, s, 10*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	periodic := repo.count()
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("snapshotLoop() error = %v", err)
	}
	if periodic < 2 {
		t.Errorf("periodic saves = %d, want at least 2", periodic)
	}
	if repo.count() != periodic+1 {
		t.Errorf("saves after cancel = %d, want a final save (%d)", repo.count(), periodic+1)
	}
	if len(repo.last) != 1 {
		t.Errorf("last snapshot = %d records, want 1", len(repo.last))
	}
}

func TestSnapshotLoop_ZeroIntervalSavesOnShutdown(t *testing.T) {
	s := &session{
		registry: device.NewRegistry(),
		log:      logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard),
	}
	repo := &fakeRepo{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := snapshotLoop(ctx, repo, s, 0); err != nil {
		t.Fatalf("snapshotLoop() error = %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("saves = %d, want 1", repo.count())
	}
}
