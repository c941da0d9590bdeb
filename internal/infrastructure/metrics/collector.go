package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// fleetCollector reads the registry and router at scrape time instead of
// mirroring every change into gauges.
type fleetCollector struct {
	namespace string

	mu     sync.RWMutex
	stats  StatsSource
	router RouterSource

	devicesDesc   *prometheus.Desc
	activatedDesc *prometheus.Desc
	dhcpDesc      *prometheus.Desc
	modelDesc     *prometheus.Desc
	droppedDesc   *prometheus.Desc
	processedDesc *prometheus.Desc
	panicsDesc    *prometheus.Desc
}

func newFleetCollector(namespace string) *fleetCollector {
	return &fleetCollector{
		namespace: namespace,
		devicesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "fleet", "devices"),
			"Devices currently in the registry.",
			nil, nil,
		),
		activatedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "fleet", "devices_by_activation"),
			"Devices in the registry, by activation state.",
			[]string{"activated"}, nil,
		),
		dhcpDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "fleet", "devices_dhcp"),
			"Devices in the registry with DHCP enabled.",
			nil, nil,
		),
		modelDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "fleet", "devices_by_model"),
			"Devices in the registry, by model.",
			[]string{"model"}, nil,
		),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "discovery", "dropped_events_total"),
			"Malformed discovery events dropped by the router.",
			nil, nil,
		),
		processedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "discovery", "processed_events_total"),
			"Discovery events processed by the router.",
			nil, nil,
		),
		panicsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "discovery", "observer_panics_total"),
			"Observer panics recovered by the router.",
			nil, nil,
		),
	}
}

func (c *fleetCollector) setStats(src StatsSource) {
	c.mu.Lock()
	c.stats = src
	c.mu.Unlock()
}

func (c *fleetCollector) setRouter(src RouterSource) {
	c.mu.Lock()
	c.router = src
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *fleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.devicesDesc
	ch <- c.activatedDesc
	ch <- c.dhcpDesc
	ch <- c.modelDesc
	ch <- c.droppedDesc
	ch <- c.processedDesc
	ch <- c.panicsDesc
}

// Collect implements prometheus.Collector.
func (c *fleetCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	stats, router := c.stats, c.router
	c.mu.RUnlock()

	if stats != nil {
		s := stats.GetStats()
		ch <- prometheus.MustNewConstMetric(c.devicesDesc, prometheus.GaugeValue, float64(s.Total))
		ch <- prometheus.MustNewConstMetric(c.activatedDesc, prometheus.GaugeValue, float64(s.Activated), "true")
		ch <- prometheus.MustNewConstMetric(c.activatedDesc, prometheus.GaugeValue, float64(s.Unactivated), "false")
		ch <- prometheus.MustNewConstMetric(c.dhcpDesc, prometheus.GaugeValue, float64(s.DHCP))
		for model, n := range s.ByModel {
			ch <- prometheus.MustNewConstMetric(c.modelDesc, prometheus.GaugeValue, float64(n), model)
		}
	}

	if router != nil {
		rs := router.Stats()
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(rs.Dropped))
		ch <- prometheus.MustNewConstMetric(c.processedDesc, prometheus.CounterValue, float64(rs.Processed))
		ch <- prometheus.MustNewConstMetric(c.panicsDesc, prometheus.CounterValue, float64(rs.ObserverPanics))
	}
}
