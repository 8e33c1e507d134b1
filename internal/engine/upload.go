package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/model"
)

// UploadRequest is one file offered for admission. An empty ExpenseID
// targets the pool.
type UploadRequest struct {
	Name      string
	ExpenseID string
	Details   *model.InvoiceDetails
	Data      []byte
}

// UploadResult reports the outcome for one file in a batch. A nil Err means
// the file was admitted; Superseded marks a file dropped because a later
// file in the same batch carried the same name.
type UploadResult struct {
	Err        error
	Name       string
	Receipt    model.Receipt
	Superseded bool
}

// UploadOutcome is the fan-in result of an upload call: per-file results in
// request order plus the duplicate notice for the whole batch.
type UploadOutcome struct {
	Results    []UploadResult
	Duplicates DuplicateNotice
	Admitted   int
}

// Upload admits a single file.
func (r *Reconciler) Upload(ctx context.Context, req UploadRequest) (*UploadOutcome, error) {
	return r.UploadBatch(ctx, []UploadRequest{req})
}

// UploadBatch admits a batch of files as one visible state change.
//
// Each file is checked against the local admission rules first, and a file
// aimed at an expense is rejected outright when that expense does not
// exist; a rejected file never blocks its siblings and never reaches the
// duplicate guard, so a doomed request cannot displace the receipt it was
// named after. Within the batch the last file with a given name wins and
// earlier same-named files are dropped as superseded.
// The duplicate guard then runs for every surviving name against the state
// as of batch start and fully settles before any scoring call is issued.
// Files aimed at an expense are scored; a scoring failure degrades that
// receipt's confidence to undefined but the upload still completes. All
// insertions are applied together at the end, so an observer never sees a
// partially processed batch.
func (r *Reconciler) UploadBatch(ctx context.Context, reqs []UploadRequest) (*UploadOutcome, error) {
	outcome := &UploadOutcome{Results: make([]UploadResult, len(reqs))}

	// Local admission rules, no network involved.
	admitted := make([]int, 0, len(reqs))
	for i, req := range reqs {
		outcome.Results[i].Name = req.Name
		if err := r.admitFile(req); err != nil {
			outcome.Results[i].Err = err
			slog.Warn("Upload rejected", "name", req.Name, "error", err)
			continue
		}
		if req.ExpenseID != "" && r.findExpense(req.ExpenseID) == nil {
			outcome.Results[i].Err = fmt.Errorf("%w: %s", common.ErrExpenseNotFound, req.ExpenseID)
			slog.Warn("Upload rejected", "name", req.Name, "error", outcome.Results[i].Err)
			continue
		}
		admitted = append(admitted, i)
	}

	// Within the batch, the last file per name wins.
	lastByName := make(map[string]int, len(admitted))
	for _, i := range admitted {
		lastByName[reqs[i].Name] = i
	}
	winners := make([]int, 0, len(lastByName))
	for _, i := range admitted {
		if lastByName[reqs[i].Name] != i {
			outcome.Results[i].Superseded = true
			continue
		}
		winners = append(winners, i)
	}

	// Store bytes before touching any container, so a storage rejection
	// cannot strand the batch half-admitted.
	stored := make([]int, 0, len(winners))
	for _, i := range winners {
		req := reqs[i]
		ref, err := r.blobs.Put(ctx, req.Name, req.Data)
		if err != nil {
			outcome.Results[i].Err = fmt.Errorf("%w: %s: %v", common.ErrUploadRejected, req.Name, err)
			slog.Warn("Upload storage failed", "name", req.Name, "error", err)
			continue
		}
		outcome.Results[i].Receipt = model.Receipt{
			Name:       req.Name,
			Kind:       model.KindForFile(req.Name),
			StorageRef: ref,
			Size:       int64(len(req.Data)),
			Details:    req.Details,
		}
		stored = append(stored, i)
	}

	// Duplicate guard for the whole batch, settled before any scoring.
	for _, i := range stored {
		outcome.Duplicates.merge(r.guardAgainst(reqs[i].Name))
	}

	// Score receipts aimed at an expense, then join: insertions happen
	// only after every scoring call in the batch has resolved.
	type placement struct {
		receipt   model.Receipt
		expenseID string
	}
	placements := make([]placement, 0, len(stored))
	for _, i := range stored {
		req := reqs[i]
		rec := outcome.Results[i].Receipt
		if req.ExpenseID != "" {
			target := r.findExpense(req.ExpenseID)
			if target == nil {
				outcome.Results[i].Receipt = model.Receipt{}
				outcome.Results[i].Err = fmt.Errorf("%w: %s", common.ErrExpenseNotFound, req.ExpenseID)
				continue
			}
			rec.Confidence = r.scoreForAttachment(ctx, target, rec)
		}
		outcome.Results[i].Receipt = rec
		placements = append(placements, placement{receipt: rec, expenseID: req.ExpenseID})
	}

	// Commit. Re-validate each target: the expense could have been deleted
	// while a scoring call was in flight.
	for _, p := range placements {
		if p.expenseID == "" {
			p.receipt.Confidence = nil
			r.pool = append(r.pool, p.receipt)
			outcome.Admitted++
			continue
		}
		target := r.findExpense(p.expenseID)
		if target == nil {
			slog.Warn("Discarding upload for deleted expense", "name", p.receipt.Name, "expense_id", p.expenseID)
			continue
		}
		target.Receipts = append(target.Receipts, p.receipt)
		outcome.Admitted++
	}

	slog.Info("Upload batch complete",
		"files", len(reqs),
		"admitted", outcome.Admitted,
		"duplicates_removed", outcome.Duplicates.Count())
	return outcome, nil
}

// admitFile applies the local type and size rules.
func (r *Reconciler) admitFile(req UploadRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("%w: empty file name", common.ErrUploadRejected)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !r.allowed[ext] {
		return fmt.Errorf("%w: %s: file type %q not allowed", common.ErrUploadRejected, name, ext)
	}
	if int64(len(req.Data)) > r.maxSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds limit of %d", common.ErrUploadRejected, name, len(req.Data), r.maxSize)
	}
	return nil
}

// scoreForAttachment asks the scorer for a confidence value, degrading to
// undefined when the scorer fails or reports the pair as unknown.
func (r *Reconciler) scoreForAttachment(ctx context.Context, expense *model.Expense, receipt model.Receipt) *int {
	if r.scorer == nil {
		return nil
	}
	score, ok, err := r.scorer.Score(ctx, expense.Clone(), receipt.Clone())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("Scoring unavailable, confidence undefined",
				"receipt", receipt.Name,
				"expense_id", expense.ID,
				"error", err)
		}
		return nil
	}
	if !ok {
		return nil
	}
	return confidencePercent(score)
}

// confidencePercent converts a 0..1 score to the 0-100 integer confidence
// scale, clamping out-of-range collaborator responses.
func confidencePercent(score float64) *int {
	pct := int(score*100 + 0.5)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
