package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				st := svc.cache.Stats(ctx)
				if st.RemoteKeys < 0 {
					return fmt.Errorf("could not count remote keys")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Remote keys: %d\n", st.RemoteKeys)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <pattern>",
		Short: "Remove cache keys matching a glob pattern (e.g. scam_detection:*)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				n := svc.cache.ClearByPattern(ctx, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d keys matching %q.\n", n, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
