package device

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sizer reports the current number of known devices.
type Sizer interface {
	Len() int
}

// RecordSource looks up a record by hardware address.
type RecordSource interface {
	Get(mac string) (Record, error)
}

type entry struct {
	rec Record
	seq uint64
}

// Registry is the in-memory set of discovered devices, keyed by hardware
// address.
//
// The discovery router is the only writer; any number of goroutines may read.
// Reads return copies, so callers may hold results across blocking calls.
// Enumeration order is the order in which records were last (re)inserted.
type Registry struct {
	mu      sync.RWMutex
	records map[string]entry
	seq     uint64
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]entry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Apply updates membership according to rec.LastEvent and returns rec.
//
//   - Added, Updated, Restarted: any existing record for the address is
//     removed and rec is inserted in its place. No fields are merged.
//   - Offline: the record is removed if present.
//   - UpdateFailed: membership is unchanged.
//
// rec.HardwareAddress must already be canonical (see CanonicalMAC).
func (r *Registry) Apply(rec Record) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch rec.LastEvent {
	case KindAdded, KindUpdated, KindRestarted:
		_, existed := r.records[rec.HardwareAddress]
		delete(r.records, rec.HardwareAddress)
		r.seq++
		r.records[rec.HardwareAddress] = entry{rec: rec, seq: r.seq}
		r.logger.Debug("device record stored",
			"mac", rec.HardwareAddress, "kind", rec.LastEvent, "replaced", existed, "ipv4", rec.IPv4Address)

	case KindOffline:
		if _, ok := r.records[rec.HardwareAddress]; ok {
			delete(r.records, rec.HardwareAddress)
			r.logger.Debug("device record removed", "mac", rec.HardwareAddress)
		}

	case KindUpdateFailed:
		// Informational only.

	default:
		r.logger.Warn("ignoring record with unknown event kind", "mac", rec.HardwareAddress, "kind", int(rec.LastEvent))
	}

	return rec
}

// Get returns the record for mac, which may be in any notation accepted by
// CanonicalMAC.
func (r *Registry) Get(mac string) (Record, error) {
	key, err := CanonicalMAC(mac)
	if err != nil {
		return Record{}, err
	}

	r.mu.RLock()
	e, ok := r.records[key]
	r.mu.RUnlock()
	if !ok {
		return Record{}, ErrDeviceNotFound
	}
	return e.rec, nil
}

// List returns a snapshot of all records in enumeration order.
func (r *Registry) List() []Record {
	return r.Filter(nil)
}

// Filter returns the records for which keep reports true, in enumeration
// order. A nil keep matches everything.
func (r *Registry) Filter(keep func(Record) bool) []Record {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.records))
	for _, e := range r.records {
		if keep == nil || keep(e.rec) {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Reset discards every record.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.records = make(map[string]entry)
	r.mu.Unlock()
	r.logger.Info("device registry reset")
}

// Stats summarises the registry for monitoring.
type Stats struct {
	Total       int            `json:"total"`
	Activated   int            `json:"activated"`
	Unactivated int            `json:"unactivated"`
	DHCP        int            `json:"dhcp"`
	ByModel     map[string]int `json:"by_model"`
	ByLastEvent map[string]int `json:"by_last_event"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:       len(r.records),
		ByModel:     make(map[string]int),
		ByLastEvent: make(map[string]int),
	}
	for _, e := range r.records {
		if e.rec.Activated {
			stats.Activated++
		} else {
			stats.Unactivated++
		}
		if e.rec.DHCPEnabled {
			stats.DHCP++
		}
		model := e.rec.Details.Model
		if model == "" {
			model = "unknown"
		}
		stats.ByModel[model]++
		stats.ByLastEvent[e.rec.LastEvent.String()]++
	}
	return stats
}
