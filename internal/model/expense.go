package model

import "github.com/google/uuid"

// Expense is one line item under reconciliation. Its ID never changes across
// edits, matching, or moves; only the field values and the attachment list
// do.
type Expense struct {
	Fields   *FieldMap
	ID       string
	Receipts []Receipt
}

// NewExpense creates an empty expense row with a fresh identifier.
func NewExpense() *Expense {
	return &Expense{
		ID:     uuid.NewString(),
		Fields: NewFieldMap(),
	}
}

// Clone returns a deep copy of the expense, including its attachment list.
func (e *Expense) Clone() *Expense {
	out := &Expense{
		ID:     e.ID,
		Fields: e.Fields.Clone(),
	}
	if len(e.Receipts) > 0 {
		out.Receipts = make([]Receipt, len(e.Receipts))
		for i, r := range e.Receipts {
			out.Receipts[i] = r.Clone()
		}
	}
	return out
}

// Snapshot is the final reconciliation state handed to the export
// collaborator: every expense with its fields and attachments, plus the
// receipts still sitting in the pool.
type Snapshot struct {
	Expenses []*Expense
	Pool     []Receipt
}
