// Package metrics exposes fleet and campaign metrics for Prometheus.
//
// Fleet gauges are computed from the device registry when scraped.
// Event, activation and reconfiguration counters are fed by subscribing
// Metrics to the discovery router and adding it to the campaign runner.
// Everything lives on a private registry served by Handler, normally at
// /metrics on the status API. One-shot runs that are never scraped use
// Push to hand their final values to a Pushgateway instead.
package metrics
