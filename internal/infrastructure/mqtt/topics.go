package mqtt

import "strings"

// DefaultTopicPrefix is the root of every sadp-fleet topic.
const DefaultTopicPrefix = "sadp"

// Topics builds the fleet topic hierarchy:
//
//	{prefix}/fleet/status                  controller presence (retained, LWT)
//	{prefix}/fleet/device/{mac}/event      every discovery event for a device
//	{prefix}/fleet/device/{mac}/state      latest record (retained, cleared when offline)
//
// Gateway request/response topics live in package sadp.
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix, or DefaultTopicPrefix when empty.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string { return t.prefix }

// FleetStatus returns the controller presence topic.
func (t Topics) FleetStatus() string { return t.prefix + "/fleet/status" }

// DeviceEvent returns the event topic for a device.
func (t Topics) DeviceEvent(mac string) string {
	return t.prefix + "/fleet/device/" + topicSegment(mac) + "/event"
}

// DeviceState returns the retained state topic for a device.
func (t Topics) DeviceState(mac string) string {
	return t.prefix + "/fleet/device/" + topicSegment(mac) + "/state"
}

// AllDeviceStates matches every device state topic.
func (t Topics) AllDeviceStates() string { return t.prefix + "/fleet/device/+/state" }

// AllDeviceEvents matches every device event topic.
func (t Topics) AllDeviceEvents() string { return t.prefix + "/fleet/device/+/event" }

// topicSegment makes a MAC safe as a single topic level: colons become
// dashes, and wildcard or separator characters are dropped.
func topicSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':':
			return '-'
		case '/', '+', '#':
			return -1
		}
		return r
	}, s)
}
