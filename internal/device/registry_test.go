package device

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func rec(mac string, kind EventKind, ip string) Record {
	return Record{
		HardwareAddress: mac,
		LastEvent:       kind,
		IPv4Address:     ip,
		SeenAt:          time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func macs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.HardwareAddress
	}
	return out
}

func TestRegistry_ApplyPolicy(t *testing.T) {
	const a, b = "aa:bb:cc:00:00:01", "aa:bb:cc:00:00:02"

	tests := []struct {
		name    string
		events  []Record
		wantLen int
		wantIP  map[string]string
	}{
		{
			name:    "added inserts",
			events:  []Record{rec(a, KindAdded, "192.168.1.64")},
			wantLen: 1,
			wantIP:  map[string]string{a: "192.168.1.64"},
		},
		{
			name:    "duplicate added keeps one record",
			events:  []Record{rec(a, KindAdded, "192.168.1.64"), rec(a, KindAdded, "192.168.1.65")},
			wantLen: 1,
			wantIP:  map[string]string{a: "192.168.1.65"},
		},
		{
			name:    "updated replaces",
			events:  []Record{rec(a, KindAdded, "192.168.1.64"), rec(a, KindUpdated, "10.0.0.5")},
			wantLen: 1,
			wantIP:  map[string]string{a: "10.0.0.5"},
		},
		{
			name:    "updated for unknown device inserts",
			events:  []Record{rec(a, KindUpdated, "10.0.0.5")},
			wantLen: 1,
			wantIP:  map[string]string{a: "10.0.0.5"},
		},
		{
			name:    "restarted replaces",
			events:  []Record{rec(a, KindAdded, "192.168.1.64"), rec(a, KindRestarted, "192.168.1.70")},
			wantLen: 1,
			wantIP:  map[string]string{a: "192.168.1.70"},
		},
		{
			name:    "offline removes",
			events:  []Record{rec(a, KindAdded, "192.168.1.64"), rec(b, KindAdded, "192.168.1.64"), rec(a, KindOffline, "")},
			wantLen: 1,
			wantIP:  map[string]string{b: "192.168.1.64"},
		},
		{
			name:    "offline for unknown device is a no-op",
			events:  []Record{rec(b, KindAdded, "192.168.1.64"), rec(a, KindOffline, "")},
			wantLen: 1,
			wantIP:  map[string]string{b: "192.168.1.64"},
		},
		{
			name:    "update failed leaves membership alone",
			events:  []Record{rec(a, KindAdded, "192.168.1.64"), rec(a, KindUpdateFailed, "10.9.9.9"), rec(b, KindUpdateFailed, "")},
			wantLen: 1,
			wantIP:  map[string]string{a: "192.168.1.64"},
		},
		{
			name:    "unknown kind is ignored",
			events:  []Record{rec(a, EventKind(9), "192.168.1.64")},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, ev := range tt.events {
				got := r.Apply(ev)
				if got != ev {
					t.Errorf("Apply() returned %+v, want the applied record", got)
				}
			}
			if r.Len() != tt.wantLen {
				t.Fatalf("Len() = %d, want %d", r.Len(), tt.wantLen)
			}
			for mac, ip := range tt.wantIP {
				got, err := r.Get(mac)
				if err != nil {
					t.Fatalf("Get(%s) error = %v", mac, err)
				}
				if got.IPv4Address != ip {
					t.Errorf("Get(%s).IPv4Address = %q, want %q", mac, got.IPv4Address, ip)
				}
			}
		})
	}
}

func TestRegistry_UpdateDiscardsStaleFields(t *testing.T) {
	const mac = "aa:bb:cc:00:00:01"
	r := NewRegistry()

	full := rec(mac, KindAdded, "192.168.1.64")
	full.IPv6Address = "fe80::1"
	full.Details.Model = "DS-2CD2143G2-I"
	r.Apply(full)

	r.Apply(rec(mac, KindUpdated, "192.168.1.64"))

	got, _ := r.Get(mac)
	if got.IPv6Address != "" || got.Details.Model != "" {
		t.Errorf("fields survived a wholesale update: %+v", got)
	}
}

func TestRegistry_ReinsertMovesToEnd(t *testing.T) {
	r := NewRegistry()
	r.Apply(rec("aa:bb:cc:00:00:01", KindAdded, ""))
	r.Apply(rec("aa:bb:cc:00:00:02", KindAdded, ""))
	r.Apply(rec("aa:bb:cc:00:00:03", KindAdded, ""))
	r.Apply(rec("aa:bb:cc:00:00:01", KindUpdated, ""))

	want := "[aa:bb:cc:00:00:02 aa:bb:cc:00:00:03 aa:bb:cc:00:00:01]"
	if got := fmt.Sprint(macs(r.List())); got != want {
		t.Errorf("List() order = %s, want %s", got, want)
	}
}

// TestRegistry_ReplayMatchesModel replays random event sequences against a
// plain map-and-slice model of the policy.
func TestRegistry_ReplayMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := []string{
		"aa:bb:cc:00:00:01", "aa:bb:cc:00:00:02", "aa:bb:cc:00:00:03",
		"aa:bb:cc:00:00:04", "aa:bb:cc:00:00:05",
	}

	for run := 0; run < 50; run++ {
		r := NewRegistry()
		var order []string
		model := make(map[string]string)

		remove := func(mac string) {
			delete(model, mac)
			for i, m := range order {
				if m == mac {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
		}

		for step := 0; step < 200; step++ {
			mac := pool[rng.Intn(len(pool))]
			kind := EventKind(rng.Intn(5) + 1)
			ip := fmt.Sprintf("10.0.%d.%d", run, step%250)

			r.Apply(rec(mac, kind, ip))

			switch kind {
			case KindAdded, KindUpdated, KindRestarted:
				remove(mac)
				model[mac] = ip
				order = append(order, mac)
			case KindOffline:
				remove(mac)
			}
		}

		got := r.List()
		if len(got) != len(order) {
			t.Fatalf("run %d: Len = %d, want %d", run, len(got), len(order))
		}
		seen := make(map[string]bool)
		for i, g := range got {
			if seen[g.HardwareAddress] {
				t.Fatalf("run %d: duplicate record for %s", run, g.HardwareAddress)
			}
			seen[g.HardwareAddress] = true
			if g.HardwareAddress != order[i] || g.IPv4Address != model[order[i]] {
				t.Fatalf("run %d: record %d = %s/%s, want %s/%s",
					run, i, g.HardwareAddress, g.IPv4Address, order[i], model[order[i]])
			}
		}
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Apply(rec("aa:bb:cc:00:00:01", KindAdded, "192.168.1.64"))

	if _, err := r.Get("AA-BB-CC-00-00-01"); err != nil {
		t.Errorf("Get() with dashed upper case error = %v", err)
	}
	if _, err := r.Get("aa:bb:cc:00:00:09"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() unknown error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := r.Get("bogus"); !errors.Is(err, ErrInvalidHardwareAddress) {
		t.Errorf("Get() malformed error = %v, want ErrInvalidHardwareAddress", err)
	}
}

func TestRegistry_FilterAndStats(t *testing.T) {
	r := NewRegistry()
	a := rec("aa:bb:cc:00:00:01", KindAdded, "192.168.1.64")
	a.Activated = true
	a.Details.Model = "DS-2CD2043G2-I"
	b := rec("aa:bb:cc:00:00:02", KindAdded, "192.168.1.64")
	b.DHCPEnabled = true
	c := rec("aa:bb:cc:00:00:03", KindUpdated, "192.168.1.100")
	c.Activated = true
	c.Details.Model = "DS-2CD2043G2-I"
	r.Apply(a)
	r.Apply(b)
	r.Apply(c)

	pending := r.Filter(func(x Record) bool { return !x.Activated })
	if len(pending) != 1 || pending[0].HardwareAddress != b.HardwareAddress {
		t.Errorf("Filter(unactivated) = %v", macs(pending))
	}

	stats := r.GetStats()
	if stats.Total != 3 || stats.Activated != 2 || stats.Unactivated != 1 || stats.DHCP != 1 {
		t.Errorf("GetStats() = %+v", stats)
	}
	if stats.ByModel["DS-2CD2043G2-I"] != 2 || stats.ByModel["unknown"] != 1 {
		t.Errorf("ByModel = %v", stats.ByModel)
	}
	if stats.ByLastEvent["added"] != 2 || stats.ByLastEvent["updated"] != 1 {
		t.Errorf("ByLastEvent = %v", stats.ByLastEvent)
	}
}

func TestRegistry_ListIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Apply(rec("aa:bb:cc:00:00:01", KindAdded, "192.168.1.64"))

	list := r.List()
	list[0].IPv4Address = "mutated"

	got, _ := r.Get("aa:bb:cc:00:00:01")
	if got.IPv4Address != "192.168.1.64" {
		t.Error("mutating a listed record changed the registry")
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	r.Apply(rec("aa:bb:cc:00:00:01", KindAdded, ""))
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = r.List()
					_ = r.Len()
					_ = r.GetStats()
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		mac := fmt.Sprintf("aa:bb:cc:00:%02x:%02x", i/256, i%256)
		r.Apply(rec(mac, KindAdded, ""))
		if i%3 == 0 {
			r.Apply(rec(mac, KindOffline, ""))
		}
	}
	close(stop)
	wg.Wait()

	if r.Len() != 333 {
		t.Errorf("Len() = %d, want 333", r.Len())
	}
}
