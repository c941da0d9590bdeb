package sadp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultEventBuffer    = 256
	defaultQoS            = 1
)

// Conn is the MQTT surface the gateway client needs.
// cmd/sadpctl adapts the infrastructure MQTT client to it.
type Conn interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
}

// Logger is the logging interface used by the gateway client.
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

// GatewayOptions configures a GatewayClient.
type GatewayOptions struct {
	Conn           Conn
	TopicPrefix    string
	GatewayID      string
	RequestTimeout time.Duration
	EventBuffer    int
	QoS            byte
	Logger         Logger
}

// GatewayClient implements Transport by exchanging JSON messages with the
// vendor SDK gateway over MQTT.
//
// Requests carry a uuid request ID and are matched to responses on a single
// response topic. Discovery events are queued and handed to the sink by one
// goroutine, so the sink observes them in arrival order.
type GatewayClient struct {
	conn    Conn
	topics  Topics
	timeout time.Duration
	buffer  int
	qos     byte
	logger  Logger

	mu      sync.Mutex
	open    bool
	pending map[string]chan ResponseMessage
	session *discoverySession

	lastErr   atomic.Int64
	dropped   atomic.Uint64
	online    atomic.Bool
	gwVersion atomic.Value // string

	newID func() string
}

type discoverySession struct {
	events   chan RawEvent
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

// NewGatewayClient validates opts and returns an unopened client.
func NewGatewayClient(opts GatewayOptions) (*GatewayClient, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("%w: MQTT connection is required", ErrInvalidArgument)
	}
	if opts.GatewayID == "" || strings.ContainsAny(opts.GatewayID, "/#+") {
		return nil, fmt.Errorf("%w: gateway id %q", ErrInvalidArgument, opts.GatewayID)
	}
	prefix := opts.TopicPrefix
	if prefix == "" {
		prefix = "sadp"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	c := &GatewayClient{
		conn:    opts.Conn,
		topics:  NewTopics(prefix, opts.GatewayID),
		timeout: timeout,
		buffer:  buffer,
		qos:     qos,
		logger:  logger,
		pending: make(map[string]chan ResponseMessage),
		newID:   func() string { return uuid.NewString() },
	}
	c.gwVersion.Store("")
	return c, nil
}

// Topics returns the topic set used by the client.
func (c *GatewayClient) Topics() Topics {
	return c.topics
}

// Open subscribes to the gateway's response and status topics.
func (c *GatewayClient) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}
	if err := c.conn.Subscribe(c.topics.Response(), c.qos, c.handleResponse); err != nil {
		return fmt.Errorf("%w: subscribe responses: %v", ErrTransportUnavailable, err)
	}
	if err := c.conn.Subscribe(c.topics.Status(), c.qos, c.handleStatus); err != nil {
		c.conn.Unsubscribe(c.topics.Response()) //nolint:errcheck // already failing
		return fmt.Errorf("%w: subscribe status: %v", ErrTransportUnavailable, err)
	}
	c.open = true
	return nil
}

// Close stops any discovery session, fails pending requests and unsubscribes.
func (c *GatewayClient) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	session := c.session
	c.session = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	topics := []string{c.topics.Response(), c.topics.Status()}
	if session != nil {
		topics = append(topics, c.topics.Events())
		session.stop()
	}
	return c.conn.Unsubscribe(topics...)
}

// GatewayOnline reports the last presence status published by the gateway.
func (c *GatewayClient) GatewayOnline() bool {
	return c.online.Load()
}

// GatewayVersion returns the software version from the gateway's status message.
func (c *GatewayClient) GatewayVersion() string {
	v, _ := c.gwVersion.Load().(string)
	return v
}

// DroppedEvents returns the number of event payloads that could not be decoded.
func (c *GatewayClient) DroppedEvents() uint64 {
	return c.dropped.Load()
}

// HealthCheck reports whether the broker is connected and the gateway online.
func (c *GatewayClient) HealthCheck(_ context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("%w: broker disconnected", ErrTransportUnavailable)
	}
	if !c.GatewayOnline() {
		return fmt.Errorf("%w: gateway %s offline", ErrTransportUnavailable, c.topics.base)
	}
	return nil
}

// StartDiscovery implements Transport.
func (c *GatewayClient) StartDiscovery(ctx context.Context, sink EventSink) error {
	if sink == nil {
		return fmt.Errorf("%w: nil event sink", ErrInvalidArgument)
	}

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	if c.session != nil {
		c.mu.Unlock()
		return ErrDiscoveryRunning
	}
	s := &discoverySession{
		events: make(chan RawEvent, c.buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	c.session = s
	c.mu.Unlock()

	go s.deliver(sink)

	if err := c.conn.Subscribe(c.topics.Events(), c.qos, c.handleEvent); err != nil {
		c.endSession(s)
		return fmt.Errorf("%w: subscribe events: %v", ErrTransportUnavailable, err)
	}

	if err := c.call(ctx, ActionStart, nil, nil); err != nil {
		c.conn.Unsubscribe(c.topics.Events()) //nolint:errcheck // already failing
		c.endSession(s)
		return err
	}

	c.logger.Info("discovery started", "topic", c.topics.Events())
	return nil
}

// StopDiscovery implements Transport. Queued events are dropped.
func (c *GatewayClient) StopDiscovery(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	callErr := c.call(ctx, ActionStop, nil, nil)

	if err := c.conn.Unsubscribe(c.topics.Events()); err != nil {
		c.logger.Warn("unsubscribing discovery events failed", "error", err)
	}
	c.endSession(s)

	if callErr != nil {
		return callErr
	}
	c.logger.Info("discovery stopped")
	return nil
}

// SetAutoRequestInterval implements Transport.
func (c *GatewayClient) SetAutoRequestInterval(ctx context.Context, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative interval %d", ErrInvalidArgument, seconds)
	}
	return c.call(ctx, ActionAutoRequestInterval, intervalPayload{Seconds: seconds}, nil)
}

// Version implements Transport.
func (c *GatewayClient) Version(ctx context.Context) (Version, error) {
	var data versionData
	if err := c.call(ctx, ActionVersion, nil, &data); err != nil {
		return 0, err
	}
	return Version(data.Version), nil
}

// Activate implements Transport.
func (c *GatewayClient) Activate(ctx context.Context, serial, password string) (bool, error) {
	if serial == "" {
		return false, fmt.Errorf("%w: empty serial number", ErrInvalidArgument)
	}
	resp, err := c.request(ctx, ActionActivate, activatePayload{SerialNo: serial, Password: password})
	if err != nil {
		return false, err
	}
	if !resp.Success {
		c.lastErr.Store(int64(resp.ErrorCode))
		c.logger.Warn("activation refused", "serial", serial, "code", resp.ErrorCode, "error", resp.Error)
		return false, nil
	}
	return true, nil
}

// ModifyNetworkParams implements Transport.
func (c *GatewayClient) ModifyNetworkParams(ctx context.Context, mac, password string, p NetParams) (ModifyResult, error) {
	if mac == "" {
		return ModifyResult{}, fmt.Errorf("%w: empty hardware address", ErrInvalidArgument)
	}
	resp, err := c.request(ctx, ActionModifyNetParams, modifyPayload{MAC: mac, Password: password, Params: p})
	if err != nil {
		return ModifyResult{}, err
	}

	var result ModifyResult
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return ModifyResult{}, fmt.Errorf("%w: decoding modify result: %v", ErrTransportUnavailable, err)
		}
	}
	result.OK = resp.Success
	if !resp.Success {
		c.lastErr.Store(int64(resp.ErrorCode))
	}
	return result, nil
}

// LastErrorCode implements Transport.
func (c *GatewayClient) LastErrorCode() int {
	return int(c.lastErr.Load())
}

// call sends a request for an operation without a structured failure result.
// A refusal becomes ErrGatewayRejected. When out is non-nil, the response data
// is decoded into it.
func (c *GatewayClient) call(ctx context.Context, action string, payload, out any) error {
	resp, err := c.request(ctx, action, payload)
	if err != nil {
		return err
	}
	if !resp.Success {
		c.lastErr.Store(int64(resp.ErrorCode))
		return fmt.Errorf("%w: %s failed with code %d: %s", ErrGatewayRejected, action, resp.ErrorCode, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("%w: decoding %s response: %v", ErrTransportUnavailable, action, err)
		}
	}
	return nil
}

// request publishes one request and waits for its response.
func (c *GatewayClient) request(ctx context.Context, action string, payload any) (ResponseMessage, error) {
	msg := RequestMessage{
		RequestID: c.newID(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return ResponseMessage{}, fmt.Errorf("encoding %s payload: %w", action, err)
		}
		msg.Payload = raw
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return ResponseMessage{}, fmt.Errorf("encoding %s request: %w", action, err)
	}

	ch := make(chan ResponseMessage, 1)
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ResponseMessage{}, ErrNotOpen
	}
	c.pending[msg.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
	}()

	if err := c.conn.Publish(c.topics.Request(action), body, c.qos, false); err != nil {
		return ResponseMessage{}, fmt.Errorf("%w: publishing %s: %v", ErrTransportUnavailable, action, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return ResponseMessage{}, ErrNotOpen
		}
		return resp, nil
	case <-timer.C:
		return ResponseMessage{}, fmt.Errorf("%w: %s request %s timed out after %s",
			ErrTransportUnavailable, action, msg.RequestID, c.timeout)
	case <-ctx.Done():
		return ResponseMessage{}, ctx.Err()
	}
}

func (c *GatewayClient) handleResponse(_ string, payload []byte) {
	var resp ResponseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		c.logger.Warn("discarding malformed gateway response", "error", err)
		return
	}

	// Send under the lock so Close cannot close the channel mid-send.
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.pending[resp.RequestID]
	if !ok {
		c.logger.Debug("response for unknown request", "request_id", resp.RequestID)
		return
	}

	select {
	case ch <- resp:
	default:
		c.logger.Debug("duplicate response ignored", "request_id", resp.RequestID)
	}
}

func (c *GatewayClient) handleStatus(_ string, payload []byte) {
	if len(payload) == 0 {
		c.online.Store(false)
		return
	}
	var st StatusMessage
	if err := json.Unmarshal(payload, &st); err != nil {
		c.logger.Warn("discarding malformed gateway status", "error", err)
		return
	}
	online := st.Status == StatusOnline
	if c.online.Swap(online) != online {
		c.logger.Info("gateway status changed", "status", st.Status, "version", st.Version)
	}
	c.gwVersion.Store(st.Version)
}

// handleEvent decodes an event and queues it for the delivery goroutine.
// A full queue blocks the MQTT handler until the sink catches up.
func (c *GatewayClient) handleEvent(_ string, payload []byte) {
	var ev RawEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("discarding undecodable discovery event", "error", err)
		return
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return
	}

	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (c *GatewayClient) endSession(s *discoverySession) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	s.stop()
}

func (s *discoverySession) deliver(sink EventSink) {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			select {
			case <-s.quit:
				return
			default:
			}
			sink(ev)
		}
	}
}

// stop ends delivery and waits for an in-flight sink call to return.
// It must not be called from inside the sink.
func (s *discoverySession) stop() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}
