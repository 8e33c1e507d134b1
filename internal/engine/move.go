package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/model"
)

// MoveOutcome reports a completed manual relocation.
type MoveOutcome struct {
	Receipt    model.Receipt
	Duplicates DuplicateNotice
}

// Move relocates one receipt between two containers in response to a manual
// user action.
//
// Moving a receipt to the container it already occupies is rejected before
// anything changes. At an expense destination the receipt is rescored; a
// scorer failure leaves confidence undefined but the move still completes.
// At the pool destination confidence is cleared unconditionally. The
// duplicate guard runs against the destination before insertion. The whole
// operation is atomic: there is no return path on which the receipt is in
// neither or both containers.
func (r *Reconciler) Move(ctx context.Context, receiptName string, from, to ContainerID) (*MoveOutcome, error) {
	if from == to {
		return nil, fmt.Errorf("%w: %s in %s", common.ErrNoOpMove, receiptName, to)
	}

	receipt, err := r.takeReceipt(receiptName, from)
	if err != nil {
		return nil, err
	}

	outcome := &MoveOutcome{}

	if to.IsPool() {
		receipt.Confidence = nil
		outcome.Duplicates = r.guardDestination(receiptName, to)
		r.pool = append(r.pool, receipt)
		outcome.Receipt = receipt.Clone()
		slog.Info("Moved receipt to pool", "name", receiptName, "from", from.String())
		return outcome, nil
	}

	target := r.findExpense(to.ExpenseID)
	if target == nil {
		// Destination vanished between lookup and move; put the receipt
		// back where it came from so it is never in neither container.
		r.putBack(receipt, from)
		return nil, fmt.Errorf("%w: %s", common.ErrExpenseNotFound, to.ExpenseID)
	}

	receipt.Confidence = r.scoreForAttachment(ctx, target, receipt)

	// The scoring call may have suspended; re-resolve the destination
	// before inserting.
	target = r.findExpense(to.ExpenseID)
	if target == nil {
		receipt.Confidence = nil
		r.pool = append(r.pool, receipt)
		slog.Warn("Move destination deleted during scoring, receipt returned to pool", "name", receiptName)
		outcome.Receipt = receipt.Clone()
		return outcome, nil
	}

	outcome.Duplicates = r.guardDestination(receiptName, to)
	target.Receipts = append(target.Receipts, receipt)
	outcome.Receipt = receipt.Clone()

	slog.Info("Moved receipt",
		"name", receiptName,
		"from", from.String(),
		"to", to.String(),
		"confidence", confidenceLabel(receipt.Confidence))
	return outcome, nil
}

// takeReceipt removes the named receipt from its source container and
// returns it.
func (r *Reconciler) takeReceipt(name string, from ContainerID) (model.Receipt, error) {
	if from.IsPool() {
		for i := range r.pool {
			if r.pool[i].Name == name {
				receipt := r.pool[i]
				r.pool = append(r.pool[:i], r.pool[i+1:]...)
				return receipt, nil
			}
		}
		return model.Receipt{}, fmt.Errorf("%w: %s in pool", common.ErrReceiptNotFound, name)
	}

	source := r.findExpense(from.ExpenseID)
	if source == nil {
		return model.Receipt{}, fmt.Errorf("%w: %s", common.ErrExpenseNotFound, from.ExpenseID)
	}
	for i := range source.Receipts {
		if source.Receipts[i].Name == name {
			receipt := source.Receipts[i]
			source.Receipts = append(source.Receipts[:i], source.Receipts[i+1:]...)
			return receipt, nil
		}
	}
	return model.Receipt{}, fmt.Errorf("%w: %s in %s", common.ErrReceiptNotFound, name, from)
}

// putBack reinserts a receipt into a container after a failed move,
// falling back to the pool if the source has vanished.
func (r *Reconciler) putBack(receipt model.Receipt, container ContainerID) {
	if container.IsPool() {
		receipt.Confidence = nil
		r.pool = append(r.pool, receipt)
		return
	}
	if e := r.findExpense(container.ExpenseID); e != nil {
		e.Receipts = append(e.Receipts, receipt)
		return
	}
	receipt.Confidence = nil
	r.pool = append(r.pool, receipt)
}

// guardDestination removes same-named receipts already sitting at the
// destination through an earlier, separate path. The moving receipt itself
// has already been taken out of its source, so scanning the destination is
// scanning everything that can collide.
func (r *Reconciler) guardDestination(name string, destination ContainerID) DuplicateNotice {
	refs := r.findAllDuplicates(name)
	at := refs[:0]
	for _, ref := range refs {
		if ref.container == destination {
			at = append(at, ref)
		}
	}
	return r.removeDuplicates(at)
}

func confidenceLabel(confidence *int) string {
	if confidence == nil {
		return "undefined"
	}
	return fmt.Sprintf("%d", *confidence)
}
