// Package discovery applies SADP discovery events to the device registry and
// fans them out to observers.
//
// The Router is installed as the transport's event sink. For each raw event
// it parses a device.Record, applies it to the registry, and then calls
// every subscribed Observer in order with an Event that says whether the
// change is interesting in the current Mode:
//
//	ModeInitialScan   only Added is interesting
//	ModeSteadyState   Added and Updated are interesting
//
// Filtering never changes what the registry stores.
//
// Observers run on the delivery goroutine. Those that do I/O (MQTT, the
// SQLite event log) sit behind a Queue, which buffers events for a worker
// and drops them when full rather than stall discovery.
//
//	router := discovery.NewRouter(registry)
//	router.Subscribe(discovery.NewLogObserver(log))
//	pub := discovery.NewMQTTPublisher(mqttClient, mqttClient.Topics(), 1, 256)
//	router.Subscribe(pub)
//	go pub.Run(ctx)
//	transport.StartDiscovery(ctx, router.Sink())
package discovery
