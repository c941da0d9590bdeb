package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/campaign"
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/discovery"
	"github.com/nerrad567/sadp-fleet/internal/gateway"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/logging"
	"github.com/nerrad567/sadp-fleet/internal/infrastructure/mqtt"
	"github.com/nerrad567/sadp-fleet/internal/sadp"
)

const gatewayPollInterval = 100 * time.Millisecond

// session is one connection to the SDK gateway plus the in-memory
// inventory fed by it.
type session struct {
	cfg *config.Config
	log *logging.Logger

	mqtt       *mqtt.Client
	client     *sadp.GatewayClient
	supervisor *gateway.Supervisor

	registry *device.Registry
	router   *discovery.Router
	runner   *campaign.Runner
}

// openSession connects to the broker and subscribes to the gateway topics.
// When the gateway process is managed a supervisor is created but not
// started; see startGateway.
func openSession(cfg *config.Config, log *logging.Logger) (*session, error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Transport.TopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	client, err := sadp.NewGatewayClient(sadp.GatewayOptions{
		Conn:           &mqttConn{client: mqttClient},
		TopicPrefix:    cfg.Transport.TopicPrefix,
		GatewayID:      cfg.Transport.GatewayID,
		RequestTimeout: cfg.Transport.RequestTimeout,
		EventBuffer:    cfg.Transport.EventBuffer,
		QoS:            byte(cfg.MQTT.QoS),
		Logger:         log.Component("sadp"),
	})
	if err == nil {
		err = client.Open()
	}
	if err != nil {
		mqttClient.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("opening gateway client: %w", err)
	}

	s := &session{
		cfg:      cfg,
		log:      log,
		mqtt:     mqttClient,
		client:   client,
		registry: device.NewRegistry(),
	}
	s.registry.SetLogger(log.Component("registry"))

	s.router = discovery.NewRouter(s.registry)
	s.router.SetLogger(log.Component("discovery"))
	s.router.Subscribe(discovery.NewLogObserver(log.Component("discovery")))

	s.runner = campaign.NewRunner(client, s.registry, s.router, campaign.FromConfig(cfg))
	s.runner.SetLogger(log.Component("campaign"))

	if cfg.Transport.Gateway.Managed {
		s.supervisor = gateway.New(cfg.Transport.Gateway, gateway.WithHealthCheck(client))
		s.supervisor.SetLogger(log.Component("gateway"))
	}
	return s, nil
}

// startGateway starts the managed gateway, if any, and waits for it to
// announce itself online.
func (s *session) startGateway(ctx context.Context) error {
	if s.supervisor != nil {
		if err := s.supervisor.Start(ctx); err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}
	}
	return s.waitOnline(ctx)
}

// waitOnline blocks until the gateway's retained status reports online,
// for at most the transport request timeout.
func (s *session) waitOnline(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Transport.RequestTimeout)
	defer cancel()

	ticker := time.NewTicker(gatewayPollInterval)
	defer ticker.Stop()

	for !s.client.GatewayOnline() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: gateway %q did not come online: %v",
				sadp.ErrTransportUnavailable, s.cfg.Transport.GatewayID, ctx.Err())
		case <-ticker.C:
		}
	}
	s.log.Info("gateway online", "gateway_id", s.cfg.Transport.GatewayID, "version", s.client.GatewayVersion())
	return nil
}

// Close releases the gateway client, supervisor and broker connection in
// reverse order of acquisition.
func (s *session) Close() {
	if n := s.client.DroppedEvents(); n > 0 {
		s.log.Warn("undecodable gateway events were dropped", "count", n)
	}
	if err := s.client.Close(); err != nil {
		s.log.Warn("error closing gateway client", "error", err)
	}
	if s.supervisor != nil {
		if err := s.supervisor.Stop(); err != nil {
			s.log.Warn("error stopping gateway", "error", err)
		}
	}
	s.log.Info("disconnecting from MQTT")
	if err := s.mqtt.Close(); err != nil {
		s.log.Error("error closing MQTT", "error", err)
	}
}

// withSession runs fn against a started gateway and cleans up afterwards.
func withSession(ctx context.Context, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}
	s, err := openSession(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.startGateway(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

// mqttConn adapts the infrastructure MQTT client to sadp.Conn. The two
// differ only in the handler signature: gateway handlers return nothing.
type mqttConn struct {
	client *mqtt.Client
}

// Publish implements sadp.Conn.
func (c *mqttConn) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return c.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements sadp.Conn.
func (c *mqttConn) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return c.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements sadp.Conn.
func (c *mqttConn) Unsubscribe(topics ...string) error {
	return c.client.Unsubscribe(topics...)
}

// IsConnected implements sadp.Conn.
func (c *mqttConn) IsConnected() bool {
	return c.client.IsConnected()
}
