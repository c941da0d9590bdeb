package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDiscovery   = "sadp_discovery_event"
	MeasurementReconfigure = "sadp_reconfigure"
	MeasurementActivation  = "sadp_activation"
)

// DiscoveryPoint is one discovery event as stored in InfluxDB.
type DiscoveryPoint struct {
	MAC       string
	Kind      string
	Model     string
	Serial    string
	IPv4      string
	Activated bool
	Time      time.Time
}

// ReconfigurePoint is one reconfiguration outcome as stored in InfluxDB.
type ReconfigurePoint struct {
	MAC              string
	Classification   string
	IPv4             string
	Success          bool
	ErrorCode        int
	RetriesRemaining int
	LockMinutes      int
	Time             time.Time
}

// WriteDiscoveryEvent records a discovery event.
//
// Tags are mac, kind and model; address and serial are fields so that
// re-addressing a device does not create a new series.
func (c *Client) WriteDiscoveryEvent(p DiscoveryPoint) {
	c.writePoint(discoveryPoint(p))
}

// WriteReconfigureOutcome records the result of a network reconfiguration.
func (c *Client) WriteReconfigureOutcome(p ReconfigurePoint) {
	c.writePoint(reconfigurePoint(p))
}

// WriteActivation records the result of an activation attempt.
func (c *Client) WriteActivation(mac, serial string, success bool, errorCode int) {
	c.writePoint(write.NewPoint(
		MeasurementActivation,
		map[string]string{"mac": mac},
		map[string]interface{}{
			"serial":     serial,
			"success":    success,
			"error_code": errorCode,
		},
		time.Now(),
	))
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	c.writePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func discoveryPoint(p DiscoveryPoint) *write.Point {
	tags := map[string]string{
		"mac":  p.MAC,
		"kind": p.Kind,
	}
	if p.Model != "" {
		tags["model"] = p.Model
	}
	return write.NewPoint(
		MeasurementDiscovery,
		tags,
		map[string]interface{}{
			"ipv4":      p.IPv4,
			"serial":    p.Serial,
			"activated": p.Activated,
		},
		stamp(p.Time),
	)
}

func reconfigurePoint(p ReconfigurePoint) *write.Point {
	fields := map[string]interface{}{
		"success": p.Success,
	}
	if p.IPv4 != "" {
		fields["ipv4"] = p.IPv4
	}
	if !p.Success {
		fields["error_code"] = p.ErrorCode
		fields["retries_remaining"] = p.RetriesRemaining
		fields["lock_minutes"] = p.LockMinutes
	}
	return write.NewPoint(
		MeasurementReconfigure,
		map[string]string{
			"mac":            p.MAC,
			"classification": p.Classification,
		},
		fields,
		stamp(p.Time),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
