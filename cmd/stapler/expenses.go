package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/staplerhq/stapler/internal/model"
)

func expensesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "Manage expense rows",
	}
	cmd.AddCommand(expensesListCmd())
	cmd.AddCommand(expensesAddCmd())
	cmd.AddCommand(expensesEditCmd())
	cmd.AddCommand(expensesDeleteCmd())
	return cmd
}

func expensesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List expense rows and their attachments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			expenses := session.reconciler.Expenses()
			if len(expenses) == 0 {
				fmt.Println("No expenses. Run 'stapler import' first.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFIELDS\tRECEIPTS")
			for _, e := range expenses {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, summarizeFields(e), summarizeReceipts(e))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			pool := session.reconciler.Pool()
			if len(pool) > 0 {
				names := make([]string, len(pool))
				for i, rec := range pool {
					names[i] = rec.Name
				}
				fmt.Printf("\nUnattached pool (%d): %s\n", len(pool), strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func summarizeFields(e *model.Expense) string {
	parts := make([]string, 0, e.Fields.Len())
	for _, f := range e.Fields.Fields() {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Name, f.Value))
	}
	return strings.Join(parts, " ")
}

func summarizeReceipts(e *model.Expense) string {
	if len(e.Receipts) == 0 {
		return "-"
	}
	parts := make([]string, len(e.Receipts))
	for i, rec := range e.Receipts {
		label := "?"
		if rec.Confidence != nil {
			label = fmt.Sprintf("%d%%", *rec.Confidence)
		}
		parts[i] = fmt.Sprintf("%s (%s)", rec.Name, label)
	}
	return strings.Join(parts, ", ")
}

func expensesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new expense row",
		Example: `  stapler expenses add --field Date=2024-01-15 --field Amount=45.67 --field Merchant="Whole Foods"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pairs, err := cmd.Flags().GetStringArray("field")
			if err != nil {
				return err
			}

			fields := model.NewFieldMap()
			for _, pair := range pairs {
				name, value, found := strings.Cut(pair, "=")
				if !found || strings.TrimSpace(name) == "" {
					return fmt.Errorf("invalid --field %q, expected Name=Value", pair)
				}
				fields.Set(strings.TrimSpace(name), value, true)
			}

			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			e := session.reconciler.AddExpense(fields)
			if err := session.save(cmd.Context()); err != nil {
				return err
			}

			slog.Info("Added expense", "expense_id", e.ID)
			return nil
		},
	}
	cmd.Flags().StringArray("field", nil, "field to set, as Name=Value (repeatable)")
	return cmd
}

func expensesEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <expense-id> <field> <value>",
		Short: "Edit one field of an expense row",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			if err := session.reconciler.UpdateExpenseField(args[0], args[1], args[2]); err != nil {
				return err
			}
			if err := session.save(cmd.Context()); err != nil {
				return err
			}

			slog.Info("Updated expense field", "expense_id", args[0], "field", args[1])
			return nil
		},
	}
}

func expensesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <expense-id>...",
		Short: "Delete expense rows",
		Long: `Delete the named expense rows. Receipts attached to a deleted row are
discarded with it; they do not return to the unattached pool.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer session.close()

			removed := session.reconciler.DeleteExpenses(args)
			if err := session.save(cmd.Context()); err != nil {
				return err
			}

			slog.Info("Deleted expenses", "requested", len(args), "removed", removed)
			return nil
		},
	}
}
