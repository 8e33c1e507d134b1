package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func receiptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "Inspect and retrieve uploaded receipts",
	}
	cmd.AddCommand(receiptsListCmd())
	cmd.AddCommand(receiptsSaveCmd())
	return cmd
}

func receiptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every receipt and where it lives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tSIZE\tCONFIDENCE\tLOCATION")
			for _, rec := range session.reconciler.Pool() {
				fmt.Fprintf(w, "%s\t%s\t%d\t-\tpool\n", rec.Name, rec.Kind, rec.Size)
			}
			for _, e := range session.reconciler.Expenses() {
				for _, rec := range e.Receipts {
					confidence := "?"
					if rec.Confidence != nil {
						confidence = fmt.Sprintf("%d%%", *rec.Confidence)
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", rec.Name, rec.Kind, rec.Size, confidence, e.ID)
				}
			}
			return w.Flush()
		},
	}
}

func receiptsSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <receipt> <path>",
		Short: "Write a receipt's bytes to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			session, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer session.close()

			rec, _, ok := session.reconciler.ReceiptByName(args[0])
			if !ok {
				return fmt.Errorf("receipt %q not found", args[0])
			}
			data, err := session.blobs.Get(ctx, rec.StorageRef)
			if err != nil {
				return fmt.Errorf("failed to read receipt bytes: %w", err)
			}
			if err := os.WriteFile(args[1], data, 0640); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[1], err)
			}

			slog.Info("Saved receipt", "name", args[0], "path", args[1], "bytes", len(data))
			return nil
		},
	}
}
