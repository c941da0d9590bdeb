// Package mqtt provides the broker connection for sadp-fleet.
//
// The broker is the bus between sadpctl and the vendor SDK gateway, and the
// channel on which fleet state is published for other consumers:
//
//	sadpctl ↔ MQTT broker ↔ SDK gateway (SADP multicast)
//	            │
//	            └─► {prefix}/fleet/device/{mac}/state  (dashboards, automations)
//
// The client handles auto-reconnect with backoff, restores subscriptions
// after a reconnect, recovers panics in message handlers, and keeps a
// retained presence message on {prefix}/fleet/status with an LWT so
// consumers notice a crashed controller.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Transport.TopicPrefix)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllDeviceStates(), 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
