// sadpctl discovers, activates and readdresses SADP cameras on a local
// network through the vendor SDK gateway.
//
// Typical use:
//
//	sadpctl discover                 # list what is on the wire
//	sadpctl provision --dry-run      # show the addresses a campaign would assign
//	sadpctl provision                # activate and readdress factory-default devices
//	sadpctl watch                    # long-running inventory with status API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/sadp-fleet/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-03-01"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
