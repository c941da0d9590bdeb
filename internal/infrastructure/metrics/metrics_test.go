package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

type fakeStats struct{ stats device.Stats }

func (f fakeStats) GetStats() device.Stats { return f.stats }

type fakeRouter struct{ stats discovery.RouterStats }

func (f fakeRouter) Stats() discovery.RouterStats { return f.stats }

type fakeAllocator struct{ remaining int }

func (f *fakeAllocator) Remaining() int { return f.remaining }

// sample returns the value of the first sample of name matching the given
// labels, or -1 when absent.
func sample(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	return -1
}

func TestMetrics_DiscoveryEvents(t *testing.T) {
	m := New("test")

	added := discovery.Event{Record: device.Record{LastEvent: device.KindAdded}, Interesting: true}
	updated := discovery.Event{Record: device.Record{LastEvent: device.KindUpdated}}
	m.OnDeviceEvent(added)
	m.OnDeviceEvent(added)
	m.OnDeviceEvent(updated)

	if got := sample(t, m, "test_discovery_events_total", map[string]string{"kind": "added"}); got != 2 {
		t.Errorf("added events = %v, want 2", got)
	}
	if got := sample(t, m, "test_discovery_events_total", map[string]string{"kind": "updated", "interesting": "false"}); got != 1 {
		t.Errorf("updated events = %v, want 1", got)
	}
}

func TestMetrics_CampaignOutcomes(t *testing.T) {
	m := New("")

	m.ActivationAttempted(device.Record{}, true, 0)
	m.ActivationAttempted(device.Record{}, false, 2025)
	m.Reconfigured(reconfig.Outcome{Success: true, Classification: reconfig.None})
	m.Reconfigured(reconfig.Outcome{Classification: reconfig.DeviceLocked})
	m.Reconfigured(reconfig.Outcome{Classification: reconfig.DeviceLocked})

	if got := sample(t, m, "sadp_campaign_activations_total", map[string]string{"result": "failure", "error_code": "2025"}); got != 1 {
		t.Errorf("failed activations = %v, want 1", got)
	}
	if got := sample(t, m, "sadp_campaign_reconfigurations_total", map[string]string{"classification": "device_locked"}); got != 2 {
		t.Errorf("locked reconfigurations = %v, want 2", got)
	}
}

func TestMetrics_ScrapeTimeSources(t *testing.T) {
	m := New("test")

	if got := sample(t, m, "test_fleet_devices", nil); got != -1 {
		t.Errorf("fleet gauge present before WatchRegistry: %v", got)
	}

	m.WatchRegistry(fakeStats{device.Stats{
		Total:       5,
		Activated:   3,
		Unactivated: 2,
		DHCP:        1,
		ByModel:     map[string]int{"DS-2CD2143G0-I": 4, "unknown": 1},
	}})
	m.WatchRouter(fakeRouter{discovery.RouterStats{Processed: 40, Dropped: 2}})
	alloc := &fakeAllocator{remaining: 155}
	m.WatchAllocator(alloc)
	m.WatchAllocator(&fakeAllocator{remaining: 1})

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"test_fleet_devices", nil, 5},
		{"test_fleet_devices_by_activation", map[string]string{"activated": "false"}, 2},
		{"test_fleet_devices_dhcp", nil, 1},
		{"test_fleet_devices_by_model", map[string]string{"model": "DS-2CD2143G0-I"}, 4},
		{"test_discovery_dropped_events_total", nil, 2},
		{"test_discovery_processed_events_total", nil, 40},
		{"test_allocator_addresses_remaining", nil, 155},
	}
	for _, tt := range tests {
		if got := sample(t, m, tt.name, tt.labels); got != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}

	alloc.remaining = 154
	if got := sample(t, m, "test_allocator_addresses_remaining", nil); got != 154 {
		t.Errorf("allocator gauge after issue = %v, want 154", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New("test")
	m.OnDeviceEvent(discovery.Event{Record: device.Record{LastEvent: device.KindOffline}})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `test_discovery_events_total{interesting="false",kind="offline"} 1`) {
		t.Errorf("exposition missing event counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go runtime metrics")
	}
}
