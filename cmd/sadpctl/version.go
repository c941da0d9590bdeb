package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand(opts *globalOptions) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information and the gateway SDK version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (commit %s, built %s)\n", name, version, commit, date)
			if short {
				return nil
			}
			return withSession(cmd.Context(), opts, func(ctx context.Context, s *session) error {
				v, err := s.client.Version(ctx)
				if err != nil {
					return fmt.Errorf("reading SDK version: %w", err)
				}
				fmt.Fprintf(out, "gateway %s: software %s, SDK %s\n",
					s.cfg.Transport.GatewayID, valueOr(s.client.GatewayVersion(), "unknown"), v)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print build information only, without contacting the gateway")
	return cmd
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
