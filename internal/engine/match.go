package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// MatchStats summarizes one bulk-matching round.
type MatchStats struct {
	Duration        time.Duration
	PoolBefore      int
	Assigned        int
	Unmatched       int
	ExpensesMatched int
}

// RunBulkMatch hands the whole pool and expense set to the matcher and
// applies its result as one visible update. On matcher failure nothing
// changes: the pool and every attachment list are left exactly as before
// the call.
func (r *Reconciler) RunBulkMatch(ctx context.Context, matcher service.BulkMatcher) (*MatchStats, error) {
	start := time.Now()
	poolBefore := len(r.pool)

	slog.Info("Starting bulk match", "pool", poolBefore, "expenses", len(r.expenses))

	result, err := matcher.MatchBulk(ctx, r.Pool(), r.Expenses())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMatchingService, err)
	}

	stats := r.applyMatchResult(result)
	stats.Duration = time.Since(start)
	stats.PoolBefore = poolBefore

	slog.Info("Bulk match complete",
		"assigned", stats.Assigned,
		"unmatched", stats.Unmatched,
		"expenses_matched", stats.ExpensesMatched,
		"duration", stats.Duration)
	return stats, nil
}

// applyMatchResult commits a match result to the aggregate. The result is
// authoritative for the receipts it names; receipts it does not mention
// stay exactly where they already were. Assignments whose receipt has left
// the pool or whose expense has since been deleted are discarded silently:
// the response may have been computed against state that changed while the
// round trip was in flight.
func (r *Reconciler) applyMatchResult(result *service.MatchResult) *MatchStats {
	stats := &MatchStats{}
	if result == nil {
		stats.Unmatched = len(r.pool)
		return stats
	}

	assignedNames := make(map[string]bool, len(result.Assignments))
	matchedExpenses := make(map[string]bool)

	for _, a := range result.Assignments {
		if assignedNames[a.ReceiptName] {
			// Receipt-side uniqueness: one receipt lands on one expense
			// per round, whatever the matcher claims.
			continue
		}
		target := r.findExpense(a.ExpenseID)
		if target == nil {
			slog.Warn("Discarding assignment for deleted expense",
				"receipt", a.ReceiptName, "expense_id", a.ExpenseID)
			continue
		}
		receipt, ok := r.takeFromPool(a.ReceiptName)
		if !ok {
			slog.Warn("Discarding assignment for receipt no longer in pool", "receipt", a.ReceiptName)
			continue
		}

		receipt.Confidence = nil
		if a.Confidence != nil {
			confidence := *a.Confidence
			receipt.Confidence = &confidence
		}
		target.Receipts = append(target.Receipts, receipt)
		assignedNames[a.ReceiptName] = true
		matchedExpenses[a.ExpenseID] = true
		stats.Assigned++
	}

	stats.Unmatched = len(r.pool)
	stats.ExpensesMatched = len(matchedExpenses)
	return stats
}

// takeFromPool removes and returns the named receipt from the pool.
func (r *Reconciler) takeFromPool(name string) (model.Receipt, bool) {
	for i := range r.pool {
		if r.pool[i].Name == name {
			rec := r.pool[i]
			r.pool = append(r.pool[:i], r.pool[i+1:]...)
			return rec, true
		}
	}
	return model.Receipt{}, false
}
