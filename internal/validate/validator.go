// Package validate computes per-field and attachment-consistency validity
// for expense rows. It reads the reconciliation state and never mutates it.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// RuleKind names the rule that produced a result, for grouping in the
// summary.
type RuleKind string

// Rule kind constants.
const (
	RuleDate           RuleKind = "date"
	RuleCategory       RuleKind = "category"
	RuleAmount         RuleKind = "amount"
	RuleRequiredText   RuleKind = "required_text"
	RuleAttachmentFlag RuleKind = "attachment_flag"
)

// State is the validity of one cell.
type State string

// Validity states. Neutral covers fields that are exempt from validation:
// computed and import-only columns, and columns with no recognized role.
const (
	StateValid   State = "valid"
	StateInvalid State = "invalid"
	StateNeutral State = "neutral"
)

// Result is the validity of one field on one expense.
type Result struct {
	ExpenseID string
	Field     string
	Rule      RuleKind
	State     State
	Message   string
}

// RuleCounts aggregates results for one rule kind.
type RuleCounts struct {
	Valid   int
	Invalid int
}

// Summary is the aggregate view over a validation pass, grouped by rule
// kind.
type Summary struct {
	ByRule  map[RuleKind]RuleCounts
	Valid   int
	Invalid int
	Neutral int
}

// Report is the full outcome of a validation pass.
type Report struct {
	Results []Result
	Summary Summary
}

// Validator evaluates the field rules against a category allow-list
// supplied by an external source. The source is expected to fetch once and
// cache for its lifetime; the validator just asks.
type Validator struct {
	categories service.CategorySource
}

// New creates a validator backed by the given category source.
func New(categories service.CategorySource) *Validator {
	return &Validator{categories: categories}
}

// ValidateAll validates every expense and returns the per-field results
// plus the aggregate summary.
func (v *Validator) ValidateAll(ctx context.Context, expenses []*model.Expense) (*Report, error) {
	allowList, err := v.categories.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category allow-list: %w", err)
	}

	report := &Report{Summary: Summary{ByRule: make(map[RuleKind]RuleCounts)}}
	for _, e := range expenses {
		report.Results = append(report.Results, v.validateExpense(e, allowList)...)
	}
	for _, res := range report.Results {
		switch res.State {
		case StateValid:
			report.Summary.Valid++
			counts := report.Summary.ByRule[res.Rule]
			counts.Valid++
			report.Summary.ByRule[res.Rule] = counts
		case StateInvalid:
			report.Summary.Invalid++
			counts := report.Summary.ByRule[res.Rule]
			counts.Invalid++
			report.Summary.ByRule[res.Rule] = counts
		case StateNeutral:
			report.Summary.Neutral++
		}
	}
	return report, nil
}

// ValidateExpense validates a single expense.
func (v *Validator) ValidateExpense(ctx context.Context, expense *model.Expense) ([]Result, error) {
	allowList, err := v.categories.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category allow-list: %w", err)
	}
	return v.validateExpense(expense, allowList), nil
}

func (v *Validator) validateExpense(expense *model.Expense, allowList []string) []Result {
	var results []Result

	for _, field := range expense.Fields.Fields() {
		role := field.Role()
		if role == model.RoleAttachmentFlag {
			// Handled by the cross-cutting rule below, which applies
			// whether or not the flag column is editable.
			continue
		}
		results = append(results, v.validateField(expense.ID, field, role, allowList))
	}

	if flag, ok := expense.Fields.ByRole(model.RoleAttachmentFlag); ok {
		results = append(results, validateAttachmentFlag(expense, flag))
	}

	return results
}

func (v *Validator) validateField(expenseID string, field model.Field, role model.FieldRole, allowList []string) Result {
	result := Result{ExpenseID: expenseID, Field: field.Name, State: StateNeutral}

	if !field.Editable || role == model.RoleNone {
		return result
	}

	switch role {
	case model.RoleDate:
		result.Rule = RuleDate
		if ValidDate(field.Value) {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = fmt.Sprintf("%q is not a real YYYY-MM-DD date", field.Value)
		}
	case model.RoleCategory:
		result.Rule = RuleCategory
		if ValidCategory(field.Value, allowList) {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = fmt.Sprintf("%q is not an allowed category", field.Value)
		}
	case model.RoleAmount:
		result.Rule = RuleAmount
		if ValidAmount(field.Value) {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = fmt.Sprintf("%q is not a finite number", field.Value)
		}
	case model.RoleRequiredText:
		result.Rule = RuleRequiredText
		if ValidRequiredText(field.Value) {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = "required text is empty"
		}
	}

	return result
}

// validateAttachmentFlag compares the declared "receipts attached" flag
// against the attachment list's actual size. The polarity is deliberate:
// the declared flag describes the prior, external system's state, so "Yes"
// is valid only when this engine tracks zero attachments and "No" only
// when it tracks one or more. Flip it here if product ever decides the
// flag should describe this session instead.
func validateAttachmentFlag(expense *model.Expense, flag model.Field) Result {
	result := Result{
		ExpenseID: expense.ID,
		Field:     flag.Name,
		Rule:      RuleAttachmentFlag,
	}

	attached := len(expense.Receipts)
	switch strings.ToLower(strings.TrimSpace(flag.Value)) {
	case "yes":
		if attached == 0 {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = fmt.Sprintf("declared %q but %d receipts are tracked here", flag.Value, attached)
		}
	case "no":
		if attached > 0 {
			result.State = StateValid
		} else {
			result.State = StateInvalid
			result.Message = fmt.Sprintf("declared %q but no receipts are tracked here", flag.Value)
		}
	default:
		result.State = StateInvalid
		result.Message = fmt.Sprintf("%q is not a yes/no value", flag.Value)
	}
	return result
}
