package sadp

import (
	"encoding/json"
	"strings"
	"time"
)

// Gateway request actions.
const (
	ActionStart               = "start"
	ActionStop                = "stop"
	ActionAutoRequestInterval = "set_auto_request_interval"
	ActionVersion             = "version"
	ActionActivate            = "activate"
	ActionModifyNetParams     = "modify_net_params"
)

// RequestMessage is published to the gateway to invoke an SDK call.
// Topic: {prefix}/gateway/{id}/request/{action}
type RequestMessage struct {
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ResponseMessage is published by the gateway when an SDK call returns.
// Topic: {prefix}/gateway/{id}/response
type ResponseMessage struct {
	RequestID string          `json:"request_id"`
	Success   bool            `json:"success"`
	ErrorCode int             `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusMessage is the gateway's retained presence message.
// Topic: {prefix}/gateway/{id}/status
type StatusMessage struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Gateway presence values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type activatePayload struct {
	SerialNo string `json:"serial_no"`
	Password string `json:"password"`
}

type modifyPayload struct {
	MAC      string    `json:"mac"`
	Password string    `json:"password"`
	Params   NetParams `json:"params"`
}

type intervalPayload struct {
	Seconds int `json:"seconds"`
}

type versionData struct {
	Version uint32 `json:"version"`
}

// Topics builds the gateway topic names.
type Topics struct {
	base string
}

// NewTopics returns the topic set for one gateway.
func NewTopics(prefix, gatewayID string) Topics {
	return Topics{base: strings.TrimSuffix(prefix, "/") + "/gateway/" + gatewayID}
}

// Request returns the topic for invoking action.
func (t Topics) Request(action string) string { return t.base + "/request/" + action }

// Response returns the topic the gateway answers on.
func (t Topics) Response() string { return t.base + "/response" }

// Events returns the discovery event topic.
func (t Topics) Events() string { return t.base + "/event" }

// Status returns the gateway presence topic.
func (t Topics) Status() string { return t.base + "/status" }
