// Package sadp defines the contract with the vendor discovery transport and
// implements it over MQTT.
//
// The vendor SDK runs inside a separate gateway process which owns the
// multicast socket. sadp-fleet talks to it through a broker:
//
//	sadpctl                         broker                     gateway
//	   │ request/{action} ───────────►│──────────────────────────►│
//	   │◄──────────────── response ───│◄──────────────────────────│ SDK call returns
//	   │◄──────────────── event ──────│◄──────────────────────────│ device announce
//	   │◄──────────────── status ─────│◄────────── retained ──────│ online / offline (LWT)
//
// GatewayClient correlates requests and responses by request_id and hands
// discovery events to a single sink goroutine in arrival order.
//
// Usage:
//
//	gw, err := sadp.NewGatewayClient(sadp.GatewayOptions{Conn: conn, GatewayID: "default"})
//	if err := gw.Open(); err != nil { ... }
//	defer gw.Close()
//
//	err = gw.StartDiscovery(ctx, router.Handle)
package sadp
