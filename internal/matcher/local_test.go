package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	scores  map[string]float64
	unknown map[string]bool
	err     error
}

func newStubScorer() *stubScorer {
	return &stubScorer{scores: make(map[string]float64), unknown: make(map[string]bool)}
}

func (s *stubScorer) set(expenseID, receiptName string, score float64) {
	s.scores[expenseID+"|"+receiptName] = score
}

func (s *stubScorer) setUnknown(expenseID, receiptName string) {
	s.unknown[expenseID+"|"+receiptName] = true
}

func (s *stubScorer) Score(_ context.Context, e *model.Expense, rec model.Receipt) (float64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	key := e.ID + "|" + rec.Name
	if s.unknown[key] {
		return 0, false, nil
	}
	return s.scores[key], true, nil
}

func expense(id string) *model.Expense {
	return &model.Expense{ID: id, Fields: model.NewFieldMap()}
}

func pool(names ...string) []model.Receipt {
	out := make([]model.Receipt, len(names))
	for i, name := range names {
		out[i] = model.Receipt{Name: name, Kind: model.KindForFile(name)}
	}
	return out
}

func TestLocalMatchAssignsAboveThreshold(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "r1.pdf", 0.9)
	scorer.set("e1", "r2.pdf", 0.1)
	scorer.set("e2", "r1.pdf", 0.2)
	scorer.set("e2", "r2.pdf", 0.85)

	result, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("r1.pdf", "r2.pdf"), []*model.Expense{expense("e1"), expense("e2")})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "r1.pdf", result.Assignments[0].ReceiptName)
	assert.Equal(t, "e1", result.Assignments[0].ExpenseID)
	require.NotNil(t, result.Assignments[0].Confidence)
	assert.Equal(t, 90, *result.Assignments[0].Confidence)
	assert.Equal(t, "r2.pdf", result.Assignments[1].ReceiptName)
	assert.Equal(t, "e2", result.Assignments[1].ExpenseID)
	assert.Empty(t, result.Unmatched)
}

func TestLocalMatchThreshold(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "at.pdf", 0.5)
	scorer.set("e1", "below.pdf", 0.49)

	result, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("at.pdf", "below.pdf"), []*model.Expense{expense("e1")})
	require.NoError(t, err)

	// At the threshold is accepted, below it is not.
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "at.pdf", result.Assignments[0].ReceiptName)
	assert.Equal(t, []string{"below.pdf"}, result.Unmatched)
}

func TestLocalMatchReceiptAssignedOnce(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "r1.pdf", 0.7)
	scorer.set("e2", "r1.pdf", 0.95)

	result, err := NewLocal(scorer, 0).MatchBulk(context.Background(),
		pool("r1.pdf"), []*model.Expense{expense("e1"), expense("e2")})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "e2", result.Assignments[0].ExpenseID)
}

func TestLocalMatchExpenseMayReceiveSeveral(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "r1.pdf", 0.9)
	scorer.set("e1", "r2.pdf", 0.8)

	result, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("r1.pdf", "r2.pdf"), []*model.Expense{expense("e1")})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "e1", result.Assignments[0].ExpenseID)
	assert.Equal(t, "e1", result.Assignments[1].ExpenseID)
}

func TestLocalMatchTieBreaksByPoolOrder(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "first.pdf", 0.8)
	scorer.set("e1", "second.pdf", 0.8)

	result, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("first.pdf", "second.pdf"), []*model.Expense{expense("e1")})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "first.pdf", result.Assignments[0].ReceiptName)
	assert.Equal(t, "second.pdf", result.Assignments[1].ReceiptName)
}

func TestLocalMatchUnknownPairSkipped(t *testing.T) {
	scorer := newStubScorer()
	scorer.setUnknown("e1", "odd.pdf")

	result, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("odd.pdf"), []*model.Expense{expense("e1")})
	require.NoError(t, err)

	assert.Empty(t, result.Assignments)
	assert.Equal(t, []string{"odd.pdf"}, result.Unmatched)
}

func TestLocalMatchTransportErrorAbortsRound(t *testing.T) {
	scorer := newStubScorer()
	scorer.set("e1", "r1.pdf", 0.9)
	scorer.err = errors.New("connection refused")

	_, err := NewLocal(scorer, 0.5).MatchBulk(context.Background(),
		pool("r1.pdf"), []*model.Expense{expense("e1")})
	assert.Error(t, err)
}

func TestLocalMatchEmptyInputs(t *testing.T) {
	result, err := NewLocal(newStubScorer(), 0.5).MatchBulk(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Assignments)
	assert.Empty(t, result.Unmatched)
}
