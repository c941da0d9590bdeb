// Package campaign runs bulk provisioning over a discovered fleet.
//
// A campaign is the sequence an installer runs on a fresh site:
//
//  1. Discover: start discovery and wait for the registry to settle.
//  2. ActivatePending: set the admin password on unactivated devices.
//  3. AwaitActivation: wait for those devices to report themselves activated.
//  4. ReassignDefaults: move devices off the factory default address,
//     drawing new addresses from an ipalloc.Allocator.
//
// Run does all four and always stops discovery afterwards. Per-device
// results are reported to OutcomeSinks such as metrics and InfluxDB.
package campaign
