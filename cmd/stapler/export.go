package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/staplerhq/stapler/internal/export"
)

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <directory>",
		Short: "Export the session as a CSV plus receipt files",
		Long: `Write the current session into a directory: expenses.csv with every
expense row and its attached receipt names, and a receipts/ subfolder
holding the receipt files themselves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer session.close()

			exporter := export.NewDirExporter(args[0], session.blobs)
			if err := exporter.Export(ctx, session.reconciler.Snapshot()); err != nil {
				return err
			}

			slog.Info("Export complete", "dir", args[0])
			return nil
		},
	}
}
