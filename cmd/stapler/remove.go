package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <receipt>...",
		Short: "Remove receipts from the session",
		Long:  `Remove receipts by name, wherever they live: the pool or any expense row.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			for _, name := range args {
				if err := session.reconciler.RemoveReceipt(name); err != nil {
					return err
				}
			}
			if err := session.save(cmd.Context()); err != nil {
				return err
			}

			slog.Info("Removed receipts", "count", len(args))
			return nil
		},
	}
}
