// Package device holds the discovered fleet: the Record type, the in-memory
// Registry that reconciles discovery events, the Settler that waits for
// discovery to go quiet, and the SQLite inventory repository.
//
// # Reconciliation
//
// Every discovery event carries a full device snapshot and an EventKind.
// Registry.Apply keys records by canonical MAC and applies:
//
//	Added, Updated, Restarted  remove any existing record, insert the new one
//	Offline                    remove the record if present
//	UpdateFailed               no change
//
// Updates replace wholesale. A field missing from an Updated snapshot is
// gone from the registry afterwards; consumers rely on "last full snapshot
// wins".
//
// # Lifecycle
//
//	reg := device.NewRegistry()
//	router := discovery.NewRouter(reg)
//	transport.StartDiscovery(ctx, router.Handle)
//
//	n, err := device.NewSettler(3*time.Second, time.Second).WaitQuiet(ctx, reg)
//	...
//	transport.StopDiscovery(ctx)
//	reg.Reset()
//
// # Thread Safety
//
// The router is the single writer. Readers get copies from List, Filter and
// Get and may hold them across blocking operations.
package device
