package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/staplerhq/stapler/internal/validate"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate expense fields and attachment consistency",
		Long: `Check every expense row: dates must be real YYYY-MM-DD dates, amounts
must be finite numbers, categories must appear on the allow-list,
required text must be present, and any "receipts attached" flag must
agree with the attachment list. Validation never changes state.`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	source, err := newCategorySource()
	if err != nil {
		return err
	}

	session, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer session.close()

	report, err := validate.New(source).ValidateAll(ctx, session.reconciler.Expenses())
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		if res.State != validate.StateInvalid {
			continue
		}
		fmt.Printf("✗ %s  %s: %s\n", res.ExpenseID, res.Field, res.Message)
	}

	for _, rule := range []validate.RuleKind{
		validate.RuleDate,
		validate.RuleCategory,
		validate.RuleAmount,
		validate.RuleRequiredText,
		validate.RuleAttachmentFlag,
	} {
		counts, ok := report.Summary.ByRule[rule]
		if !ok {
			continue
		}
		slog.Info("Rule summary", "rule", rule, "valid", counts.Valid, "invalid", counts.Invalid)
	}
	slog.Info("Validation complete",
		"valid", report.Summary.Valid,
		"invalid", report.Summary.Invalid,
		"neutral", report.Summary.Neutral)

	if report.Summary.Invalid > 0 {
		return fmt.Errorf("%d invalid fields", report.Summary.Invalid)
	}
	return nil
}
