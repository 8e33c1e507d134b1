// Package engine implements the receipt-expense reconciliation engine: one
// aggregate owning the unattached receipt pool and every expense's
// attachment list, with uploads, moves, bulk matching, and deletion as its
// only mutators.
package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// Reconciler is the reconciliation aggregate. All mutation goes through its
// methods, which run to completion before the next one starts; under that
// cooperative model the invariants (name uniqueness across all containers,
// confidence defined only for attached receipts, receipt conservation) hold
// between any two calls.
//
// The reconciler is not safe for concurrent use.
type Reconciler struct {
	scorer   service.Scorer
	blobs    service.BlobStore
	allowed  map[string]bool
	pool     []model.Receipt
	expenses []*model.Expense
	maxSize  int64
}

// Config holds configuration options for the reconciliation engine.
type Config struct {
	AllowedExtensions []string
	MaxUploadSize     int64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AllowedExtensions: []string{".pdf", ".png", ".jpg", ".jpeg", ".gif"},
		MaxUploadSize:     20 << 20,
	}
}

// New creates a reconciler with the default configuration.
func New(scorer service.Scorer, blobs service.BlobStore) *Reconciler {
	return NewWithConfig(scorer, blobs, DefaultConfig())
}

// NewWithConfig creates a reconciler with custom upload admission rules.
func NewWithConfig(scorer service.Scorer, blobs service.BlobStore, config Config) *Reconciler {
	allowed := make(map[string]bool, len(config.AllowedExtensions))
	for _, ext := range config.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}
	maxSize := config.MaxUploadSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxUploadSize
	}
	return &Reconciler{
		scorer:  scorer,
		blobs:   blobs,
		allowed: allowed,
		maxSize: maxSize,
	}
}

// Pool returns a copy of the unattached receipt pool in its current order.
func (r *Reconciler) Pool() []model.Receipt {
	out := make([]model.Receipt, len(r.pool))
	for i, rec := range r.pool {
		out[i] = rec.Clone()
	}
	return out
}

// Expenses returns deep copies of every expense in table order.
func (r *Reconciler) Expenses() []*model.Expense {
	out := make([]*model.Expense, len(r.expenses))
	for i, e := range r.expenses {
		out[i] = e.Clone()
	}
	return out
}

// Expense returns a deep copy of the expense with the given ID.
func (r *Reconciler) Expense(id string) (*model.Expense, bool) {
	e := r.findExpense(id)
	if e == nil {
		return nil, false
	}
	return e.Clone(), true
}

// TotalReceipts returns |pool| + the sum of all attachment list sizes.
func (r *Reconciler) TotalReceipts() int {
	total := len(r.pool)
	for _, e := range r.expenses {
		total += len(e.Receipts)
	}
	return total
}

// Snapshot returns a deep copy of the whole reconciliation state for
// persistence or export.
func (r *Reconciler) Snapshot() *model.Snapshot {
	return &model.Snapshot{
		Expenses: r.Expenses(),
		Pool:     r.Pool(),
	}
}

// Restore replaces the reconciliation state with a previously saved
// snapshot. Pool receipts always come back with undefined confidence.
func (r *Reconciler) Restore(snapshot *model.Snapshot) {
	if snapshot == nil {
		return
	}
	r.expenses = make([]*model.Expense, len(snapshot.Expenses))
	for i, e := range snapshot.Expenses {
		r.expenses[i] = e.Clone()
	}
	r.pool = make([]model.Receipt, len(snapshot.Pool))
	for i, rec := range snapshot.Pool {
		r.pool[i] = rec.Clone()
		r.pool[i].Confidence = nil
	}
}

// AddExpense appends a new expense row with the given fields and returns a
// copy of it.
func (r *Reconciler) AddExpense(fields *model.FieldMap) *model.Expense {
	e := model.NewExpense()
	if fields != nil {
		e.Fields = fields.Clone()
	}
	r.expenses = append(r.expenses, e)
	slog.Info("Added expense row", "expense_id", e.ID)
	return e.Clone()
}

// ImportExpenses appends imported expense rows to the table. Rows without an
// ID are assigned one.
func (r *Reconciler) ImportExpenses(expenses []*model.Expense) {
	for _, e := range expenses {
		clone := e.Clone()
		if clone.ID == "" {
			clone.ID = model.NewExpense().ID
		}
		if clone.Fields == nil {
			clone.Fields = model.NewFieldMap()
		}
		r.expenses = append(r.expenses, clone)
	}
	slog.Info("Imported expenses", "count", len(expenses))
}

// UpdateExpenseField sets one field value on an expense. The expense's
// identity and attachment list are untouched.
func (r *Reconciler) UpdateExpenseField(id, name, value string) error {
	e := r.findExpense(id)
	if e == nil {
		return fmt.Errorf("%w: %s", common.ErrExpenseNotFound, id)
	}
	if f, ok := e.Fields.Get(name); ok && !f.Editable {
		return fmt.Errorf("field %q is not editable", name)
	}
	e.Fields.SetValue(name, value)
	return nil
}

// DeleteExpenses removes the expenses with the given IDs along with their
// attachment lists. Attached receipts are discarded, not returned to the
// pool. Returns the number of expenses actually removed.
func (r *Reconciler) DeleteExpenses(ids []string) int {
	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	kept := r.expenses[:0]
	removed := 0
	for _, e := range r.expenses {
		if doomed[e.ID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.expenses = kept

	if removed > 0 {
		slog.Info("Deleted expenses", "requested", len(ids), "removed", removed)
	}
	return removed
}

// RemoveReceipt destroys the receipt with the given name wherever it lives.
func (r *Reconciler) RemoveReceipt(name string) error {
	refs := r.findAllDuplicates(name)
	if len(refs) == 0 {
		return fmt.Errorf("%w: %s", common.ErrReceiptNotFound, name)
	}
	removed := r.removeDuplicates(refs)
	slog.Info("Removed receipt", "name", name, "instances", len(removed.Removed))
	return nil
}

// ReceiptByName finds a receipt anywhere in the aggregate and reports which
// container holds it.
func (r *Reconciler) ReceiptByName(name string) (model.Receipt, ContainerID, bool) {
	for i := range r.pool {
		if r.pool[i].Name == name {
			return r.pool[i].Clone(), PoolContainer(), true
		}
	}
	for _, e := range r.expenses {
		for i := range e.Receipts {
			if e.Receipts[i].Name == name {
				return e.Receipts[i].Clone(), ExpenseContainer(e.ID), true
			}
		}
	}
	return model.Receipt{}, ContainerID{}, false
}

func (r *Reconciler) findExpense(id string) *model.Expense {
	for _, e := range r.expenses {
		if e.ID == id {
			return e
		}
	}
	return nil
}
