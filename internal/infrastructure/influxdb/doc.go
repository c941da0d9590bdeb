// Package influxdb records fleet history in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, health checks
// and typed writers for the three things sadp-fleet tracks over time:
//
//   - discovery events (sadp_discovery_event)
//   - activation attempts (sadp_activation)
//   - network reconfiguration outcomes (sadp_reconfigure)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteDiscoveryEvent(influxdb.DiscoveryPoint{MAC: mac, Kind: "added"})
//
// Writes never block; errors arrive through SetOnError.
package influxdb
