package main

import (
	"context"
	"fmt"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"github.com/spf13/cobra"
)

// withServices carrega a config, conecta no Redis e roda fn. Para os
// subcomandos de manutenção: não exige upstream.
func withServices(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, svc *services) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(ctx, svc)
}

func newKeysCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}

	var tier string
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.Tier(tier)
			if !domain.ValidKeyTier(t) {
				return fmt.Errorf("invalid tier %q (free, basic or premium)", tier)
			}
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				rec, err := svc.admission.IssueAPIKey(ctx, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key: %s\nTier:    %s\nCreated: %s\n",
					rec.Key, rec.Tier, rec.CreatedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	issueCmd.Flags().StringVar(&tier, "tier", string(domain.TierFree), "key tier: free, basic or premium")

	showCmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show the record of an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, opts, func(ctx context.Context, svc *services) error {
				rec, err := svc.admission.ValidateAPIKey(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tier:          %s\nCreated:       %s\nRequests used: %d\nLast reset:    %s\n",
					rec.Tier, rec.CreatedAt.Format(time.RFC3339), rec.RequestsUsed, rec.LastReset.Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.AddCommand(issueCmd, showCmd)
	return cmd
}
