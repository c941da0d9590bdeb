// Package config handles loading and validating sadp-fleet configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Optional .env files beside the config file
//   - Overriding with SADPFLEET_* environment variables
//   - Validation of required fields
//
// Secrets (device password, MQTT password, InfluxDB token) should be supplied
// through the environment rather than written into the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/sadp-fleet.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Transport.GatewayID)
package config
