package main

import (
	"fmt"
	"strconv"

	"vouchportal/internal/config"
	"vouchportal/internal/database"
	"vouchportal/internal/repositories"
	"vouchportal/internal/services"

	"github.com/spf13/cobra"
)

type cliOptions struct {
	driver string
	dsn    string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:   "vouchctl",
		Short: "Operate the vouch ledger",
		Long: `Operator tools for the vouch ledger.

Configuration is read from the same environment variables as the server
(DATABASE_DRIVER, DATABASE_DSN, RANK_THRESHOLDS, ...). --driver and --dsn
override the database settings.

Examples:
  vouchctl reconcile            # Rebuild cached counters from vouch rows
  vouchctl resolve 12345        # Confirm pending vouches for a user
  vouchctl rank 7               # Show the rank for 7 confirmed vouches`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "database driver (postgres|sqlite)")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "database DSN")

	root.AddCommand(
		newReconcileCmd(opts),
		newResolveCmd(opts),
		newRankCmd(),
	)
	return root
}

func newReconcileCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild every user's total and rank from the vouch rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := opts.ledger()
			if err != nil {
				return err
			}
			fixed, err := ledger.Reconcile(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "corrected %d user(s)\n", fixed)
			return nil
		},
	}
}

func newResolveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <user-id>",
		Short: "Confirm pending vouches addressed to a user's handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := opts.ledger()
			if err != nil {
				return err
			}
			n, err := ledger.ResolvePending(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed %d pending vouch(es)\n", n)
			return nil
		},
	}
}

func newRankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank <count>",
		Short: "Show the rank and progress for a confirmed vouch count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[0])
			if err != nil || count < 0 {
				return fmt.Errorf("count must be a non-negative integer, got %q", args[0])
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			p := cfg.Ranks.Progress(count)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rank: %s\n", p.Current)
			if p.Next != "" {
				fmt.Fprintf(out, "next: %s at %d (%.0f%%)\n", p.Next, p.NextMin, p.Percent)
			}
			return nil
		},
	}
}

func (o *cliOptions) ledger() (*services.LedgerService, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if o.driver != "" {
		cfg.DatabaseDriver = o.driver
	}
	if o.dsn != "" {
		cfg.DatabaseDSN = o.dsn
	}
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	// The CLI has no broker; rank-ups found here are logged, not published.
	return services.NewLedgerService(repositories.NewGORMStore(db, nil), nil, services.LedgerOptions{
		Ranks:        cfg.Ranks,
		MutualWindow: cfg.MutualWindow,
	}), nil
}
