package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/staplerhq/stapler/internal/importer"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import expense rows from a CSV export",
		Long: `Import expense line items from a CSV export of the expense system.

The header row names the fields; columns with a recognized meaning (date,
amount, category, merchant) become editable, everything else rides along
as import-only data.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	expenses, err := importer.ReadExpenses(f)
	if err != nil {
		return err
	}
	if len(expenses) == 0 {
		slog.Warn("No expense rows found", "file", args[0])
		return nil
	}

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	session.reconciler.ImportExpenses(expenses)
	if err := session.save(ctx); err != nil {
		return err
	}

	slog.Info("Import complete", "file", args[0], "expenses", len(expenses))
	return nil
}
