package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Bulk-match unattached receipts to expenses",
		Long: `Run one bulk-matching round over the whole unattached pool.

With matcher.url configured the round is delegated to the remote bulk
matching service; otherwise every (expense, receipt) pair is scored
in process and pairs at or above the threshold are assigned greedily,
best score first. If the round fails nothing changes.`,
		RunE: runMatch,
	}
	cmd.Flags().Float64P("threshold", "t", 0, "minimum score to accept a pairing (default 0.5)")
	_ = viper.BindPFlag("matcher.threshold", cmd.Flags().Lookup("threshold"))
	return cmd
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	bulkMatcher, err := newMatcher()
	if err != nil {
		return err
	}

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	stats, err := session.reconciler.RunBulkMatch(ctx, bulkMatcher)
	if err != nil {
		return err
	}
	if err := session.save(ctx); err != nil {
		return err
	}

	slog.Info("Match round complete",
		"pool_before", stats.PoolBefore,
		"assigned", stats.Assigned,
		"unmatched", stats.Unmatched,
		"expenses_matched", stats.ExpensesMatched,
		"duration", stats.Duration)
	return nil
}
