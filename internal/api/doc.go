// Package api serves the read-only fleet status API.
//
// Routes:
//
//	GET /api/v1/health            server, discovery and dependency health
//	GET /api/v1/devices           registry contents (?activated=true|false)
//	GET /api/v1/devices/stats     registry statistics
//	GET /api/v1/devices/{mac}     one device record
//	GET /api/v1/audit             activation and reconfiguration trail, when configured
//	GET /api/v1/ws                websocket stream (?channels=device.events)
//	GET /metrics                  Prometheus exposition, when configured
//
// The Hub is a discovery observer. Subscribe it to the router so that every
// applied event reaches websocket clients on the device.events channel:
//
//	srv, _ := api.New(deps)
//	router.Subscribe(srv.Hub())
//	srv.Start(ctx)
//	defer srv.Close()
package api
