package main

import (
	"context"
	"fmt"

	"classifier-gateway/middleware/gateway/application"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Read analytics and security statistics",
	}

	var format string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full analytics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				out, err := svc.analytics.ExportText(ctx, format)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", application.FormatJSON, "output format: json or yaml")

	securityCmd := &cobra.Command{
		Use:   "security",
		Short: "Show blocked addresses, active windows and recent security events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				st := svc.admission.SecurityStats(ctx)
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Blocked IPs:        %d\nActive rate limits: %d\nActive API keys:    %d\n",
					st.BlockedIPs, st.ActiveRateLimits, st.ActiveAPIKeys)
				for _, ev := range st.RecentEvents {
					fmt.Fprintf(w, "%s  %-20s %v\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, ev.Details)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(exportCmd, securityCmd)
	return cmd
}
