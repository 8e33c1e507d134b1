// Package importer reads expense line items from CSV exports of the
// external expense system.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/staplerhq/stapler/internal/model"
)

// Column names treated as the row identifier rather than as expense fields.
var idColumns = map[string]bool{
	"id":         true,
	"created id": true,
}

// ReadExpenses parses a CSV export into expense rows. The header row names
// the fields; column order is preserved on every row. Columns with a
// recognized semantic role become editable fields, everything else rides
// along as import-only data. Combined "25.50 USD" amount cells are split
// into an amount field and a currency column.
func ReadExpenses(r io.Reader) ([]*model.Expense, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading expense CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	header := records[0]
	var expenses []*model.Expense
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(header), len(rec))
		}
		expenses = append(expenses, buildExpense(header, rec))
	}
	return expenses, nil
}

func buildExpense(header, rec []string) *model.Expense {
	e := model.NewExpense()
	for col, name := range header {
		value := rec[col]
		if idColumns[strings.ToLower(strings.TrimSpace(name))] {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				e.ID = trimmed
			}
			continue
		}

		role := model.RoleForField(name)
		editable := role != model.RoleNone && role != model.RoleAttachmentFlag

		if role == model.RoleAmount {
			if amount, currency, ok := splitAmount(value); ok {
				e.Fields.Set(name, amount, editable)
				if !e.Fields.Has("Currency") {
					e.Fields.Set("Currency", currency, false)
				}
				continue
			}
		}
		e.Fields.Set(name, value, editable)
	}
	return e
}

// splitAmount splits combined cells like "25.50 USD" into amount and
// currency parts.
func splitAmount(value string) (amount, currency string, ok bool) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return "", "", false
	}
	if _, err := decimal.NewFromString(parts[0]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}
