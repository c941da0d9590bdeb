// Package gateway supervises the vendor SDK gateway process.
//
// The SDK only ships as a native library, so sadp-fleet talks to it
// through a small gateway binary that bridges SDK calls onto MQTT (see
// package sadp). When transport.gateway.managed is set, the Supervisor
// starts that binary, forwards its output to the logger, restarts it with
// exponential backoff when it dies and stops it with SIGTERM (then SIGKILL)
// on shutdown. With a HealthChecker attached it also kills a gateway that
// stays unresponsive for three consecutive checks.
//
//	sup := gateway.New(cfg.Transport.Gateway, gateway.WithHealthCheck(client))
//	sup.SetLogger(log.Component("gateway"))
//	err := sup.Run(ctx) // blocks until ctx is cancelled
package gateway
