// Package matcher provides the bulk-matching implementations: a local
// assignment algorithm driven by the confidence scorer, and a client for
// the remote bulk-matching service.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// DefaultThreshold is the acceptance threshold applied when none is
// configured.
const DefaultThreshold = 0.5

// Local implements service.BulkMatcher in process.
//
// Every (expense, receipt) candidate pair is scored; pairs at or above the
// threshold are sorted by descending score with ties broken by the
// receipt's original pool order, then walked greedily. A receipt is
// assigned at most once per round; an expense may legitimately receive
// several receipts. Receipts with no accepted pair stay unmatched.
type Local struct {
	scorer    service.Scorer
	threshold float64
}

// NewLocal creates a local matcher. A non-positive threshold falls back to
// DefaultThreshold.
func NewLocal(scorer service.Scorer, threshold float64) *Local {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Local{scorer: scorer, threshold: threshold}
}

type candidate struct {
	receiptName string
	expenseID   string
	score       float64
	poolIndex   int
}

// MatchBulk runs one matching round. A transport failure from the scorer
// aborts the whole round: partial scores are never turned into partial
// assignments. A pair the scorer reports as unknown is simply skipped.
func (l *Local) MatchBulk(ctx context.Context, pool []model.Receipt, expenses []*model.Expense) (*service.MatchResult, error) {
	var accepted []candidate

	for pi := range pool {
		for _, expense := range expenses {
			score, ok, err := l.scorer.Score(ctx, expense, pool[pi])
			if err != nil {
				return nil, fmt.Errorf("scoring round failed on (%s, %s): %w", expense.ID, pool[pi].Name, err)
			}
			if !ok || score < l.threshold {
				continue
			}
			accepted = append(accepted, candidate{
				receiptName: pool[pi].Name,
				expenseID:   expense.ID,
				score:       score,
				poolIndex:   pi,
			})
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		if accepted[i].score != accepted[j].score {
			return accepted[i].score > accepted[j].score
		}
		return accepted[i].poolIndex < accepted[j].poolIndex
	})

	result := &service.MatchResult{}
	assigned := make(map[string]bool, len(pool))
	for _, c := range accepted {
		if assigned[c.receiptName] {
			continue
		}
		assigned[c.receiptName] = true
		result.Assignments = append(result.Assignments, service.Assignment{
			ReceiptName: c.receiptName,
			ExpenseID:   c.expenseID,
			Confidence:  percent(c.score),
		})
	}
	for i := range pool {
		if !assigned[pool[i].Name] {
			result.Unmatched = append(result.Unmatched, pool[i].Name)
		}
	}

	slog.Debug("Local match round scored",
		"pairs_accepted", len(accepted),
		"assigned", len(result.Assignments),
		"unmatched", len(result.Unmatched))
	return result, nil
}

func percent(score float64) *int {
	pct := int(score*100 + 0.5)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
