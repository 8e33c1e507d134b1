package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/engine"
)

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload receipt files",
		Long: `Upload one or more receipt files into the session.

Without --expense the files land in the unattached pool. With --expense
they attach directly to that expense row and are scored immediately.
A file whose name matches an existing receipt supersedes it; the older
instance is removed wherever it lived.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}
	cmd.Flags().StringP("expense", "e", "", "expense ID to attach the files to")
	_ = viper.BindPFlag("upload.expense", cmd.Flags().Lookup("expense"))
	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	expenseID := viper.GetString("upload.expense")

	var bar *progressbar.ProgressBar
	if len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Reading receipt files..."),
		)
	}

	reqs := make([]engine.UploadRequest, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		reqs = append(reqs, engine.UploadRequest{
			Name:      filepath.Base(path),
			ExpenseID: expenseID,
			Data:      data,
		})
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	outcome, err := session.reconciler.UploadBatch(ctx, reqs)
	if err != nil {
		return err
	}
	if err := session.save(ctx); err != nil {
		return err
	}

	rejected := 0
	for _, res := range outcome.Results {
		switch {
		case res.Superseded:
			slog.Warn("Superseded by a later file with the same name", "name", res.Name)
		case errors.Is(res.Err, common.ErrUploadRejected):
			rejected++
			slog.Warn("Rejected", "name", res.Name, "error", res.Err)
		case res.Err != nil:
			rejected++
			slog.Warn("Failed", "name", res.Name, "error", res.Err)
		case res.Receipt.Confidence != nil:
			slog.Info("Attached", "name", res.Name, "confidence", fmt.Sprintf("%d%%", *res.Receipt.Confidence))
		}
	}
	if outcome.Duplicates.Count() > 0 {
		slog.Info("Replaced older same-named receipts",
			"count", outcome.Duplicates.Count(),
			"names", strings.Join(outcome.Duplicates.Names(), ", "))
	}

	slog.Info("Upload complete", "admitted", outcome.Admitted, "rejected", rejected)
	return nil
}
