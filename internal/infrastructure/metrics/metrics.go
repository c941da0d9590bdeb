package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "sadp"

// StatsSource provides fleet statistics at scrape time.
type StatsSource interface {
	GetStats() device.Stats
}

// RouterSource provides discovery router counters at scrape time.
type RouterSource interface {
	Stats() discovery.RouterStats
}

// AddressSource reports how many allocator addresses are left.
type AddressSource interface {
	Remaining() int
}

// Metrics holds the fleet metrics and the registry that exposes them.
//
// It is a discovery.Observer and a campaign outcome sink, so the same
// value is subscribed to the router and added to the campaign runner.
type Metrics struct {
	registry *prometheus.Registry

	discoveryEvents  *prometheus.CounterVec
	activations      *prometheus.CounterVec
	reconfigurations *prometheus.CounterVec

	fleet *fleetCollector

	allocMu    sync.Mutex
	allocGauge prometheus.GaugeFunc
}

// New creates the metrics set on a private registry. Go runtime and
// process collectors are included.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		discoveryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "events_total",
			Help:      "Discovery events applied to the registry, by kind.",
		}, []string{"kind", "interesting"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "activations_total",
			Help:      "Device activation attempts, by result.",
		}, []string{"result", "error_code"}),
		reconfigurations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "campaign",
			Name:      "reconfigurations_total",
			Help:      "Network reconfiguration attempts, by classification.",
		}, []string{"classification"}),
		fleet: newFleetCollector(namespace),
	}

	m.registry.MustRegister(
		m.discoveryEvents,
		m.activations,
		m.reconfigurations,
		m.fleet,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchRegistry reports fleet size gauges from src on every scrape.
func (m *Metrics) WatchRegistry(src StatsSource) {
	m.fleet.setStats(src)
}

// WatchRouter reports router drop and panic counters from src on every scrape.
func (m *Metrics) WatchRouter(src RouterSource) {
	m.fleet.setRouter(src)
}

// WatchAllocator exposes the allocator's remaining addresses. Only the first
// allocator is registered; later calls are ignored.
func (m *Metrics) WatchAllocator(src AddressSource) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()
	if m.allocGauge != nil {
		return
	}
	m.allocGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.fleet.namespace,
		Subsystem: "allocator",
		Name:      "addresses_remaining",
		Help:      "Addresses the campaign allocator can still issue.",
	}, func() float64 { return float64(src.Remaining()) })
	m.registry.MustRegister(m.allocGauge)
}

// OnDeviceEvent implements discovery.Observer.
func (m *Metrics) OnDeviceEvent(ev discovery.Event) {
	m.discoveryEvents.WithLabelValues(ev.Record.LastEvent.String(), strconv.FormatBool(ev.Interesting)).Inc()
}

// ActivationAttempted counts an activation result.
func (m *Metrics) ActivationAttempted(_ device.Record, ok bool, code int) {
	if ok {
		m.activations.WithLabelValues("success", "").Inc()
		return
	}
	m.activations.WithLabelValues("failure", strconv.Itoa(code)).Inc()
}

// Reconfigured counts a reconfiguration outcome.
func (m *Metrics) Reconfigured(out reconfig.Outcome) {
	m.reconfigurations.WithLabelValues(out.Classification.String()).Inc()
}
