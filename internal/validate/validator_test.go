package validate

import (
	"context"
	"testing"

	"github.com/staplerhq/stapler/internal/categories"
	"github.com/staplerhq/stapler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *Validator {
	return New(categories.NewStaticSource([]string{"Groceries", "Travel"}))
}

func expenseWith(pairs ...string) *model.Expense {
	e := model.NewExpense()
	for i := 0; i+1 < len(pairs); i += 2 {
		e.Fields.Set(pairs[i], pairs[i+1], true)
	}
	return e
}

func resultFor(results []Result, field string) Result {
	for _, r := range results {
		if r.Field == field {
			return r
		}
	}
	return Result{}
}

func TestValidateExpenseFieldRules(t *testing.T) {
	v := newTestValidator()
	e := expenseWith(
		"Date", "2024-01-15",
		"Category", "groceries",
		"Amount", "45.67",
		"Merchant", "",
		"Notes to self", "whatever",
	)

	results, err := v.ValidateExpense(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, StateValid, resultFor(results, "Date").State)
	assert.Equal(t, StateValid, resultFor(results, "Category").State)
	assert.Equal(t, StateValid, resultFor(results, "Amount").State)
	assert.Equal(t, StateInvalid, resultFor(results, "Merchant").State)
	assert.Equal(t, StateNeutral, resultFor(results, "Notes to self").State)
}

func TestValidateSkipsNonEditableFields(t *testing.T) {
	v := newTestValidator()
	e := model.NewExpense()
	e.Fields.Set("Date", "not a date", false)

	results, err := v.ValidateExpense(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, StateNeutral, resultFor(results, "Date").State)
}

func TestAttachmentFlagPolarity(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		attached int
		want     State
	}{
		{"yes with none tracked", "Yes", 0, StateValid},
		{"yes with one tracked", "Yes", 1, StateInvalid},
		{"no with one tracked", "No", 1, StateValid},
		{"no with none tracked", "No", 0, StateInvalid},
		{"case insensitive", "yes", 0, StateValid},
		{"garbage value", "maybe", 0, StateInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator()
			e := model.NewExpense()
			e.Fields.Set("Receipts attached?", tt.flag, true)
			for i := 0; i < tt.attached; i++ {
				e.Receipts = append(e.Receipts, model.Receipt{Name: "r.pdf"})
			}

			results, err := v.ValidateExpense(context.Background(), e)
			require.NoError(t, err)
			got := resultFor(results, "Receipts attached?")
			assert.Equal(t, RuleAttachmentFlag, got.Rule)
			assert.Equal(t, tt.want, got.State)
		})
	}
}

func TestAttachmentFlagCheckedEvenWhenNotEditable(t *testing.T) {
	v := newTestValidator()
	e := model.NewExpense()
	e.Fields.Set("Receipts attached?", "Yes", false)
	e.Receipts = append(e.Receipts, model.Receipt{Name: "r.pdf"})

	results, err := v.ValidateExpense(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, StateInvalid, resultFor(results, "Receipts attached?").State)
}

func TestValidateAllSummary(t *testing.T) {
	v := newTestValidator()
	good := expenseWith("Date", "2024-01-15", "Amount", "10.00")
	bad := expenseWith("Date", "2024-02-30", "Amount", "ten")

	report, err := v.ValidateAll(context.Background(), []*model.Expense{good, bad})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Valid)
	assert.Equal(t, 2, report.Summary.Invalid)
	assert.Equal(t, RuleCounts{Valid: 1, Invalid: 1}, report.Summary.ByRule[RuleDate])
	assert.Equal(t, RuleCounts{Valid: 1, Invalid: 1}, report.Summary.ByRule[RuleAmount])
}

func TestValidateAllCategorySourceFailure(t *testing.T) {
	v := New(&failingSource{})
	_, err := v.ValidateAll(context.Background(), []*model.Expense{expenseWith("Date", "2024-01-15")})
	assert.Error(t, err)
}

type failingSource struct{}

func (f *failingSource) Categories(context.Context) ([]string, error) {
	return nil, assert.AnError
}
