// Package logging provides structured logging for sadp-fleet.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and level filtering.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("discovery").Info("device online", "mac", mac)
//
// Never log device passwords, broker credentials or tokens.
package logging
