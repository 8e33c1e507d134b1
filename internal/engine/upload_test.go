package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadAdmissionRules(t *testing.T) {
	tests := []struct {
		name    string
		req     UploadRequest
		wantErr bool
	}{
		{name: "pdf allowed", req: UploadRequest{Name: "a.pdf", Data: []byte("x")}},
		{name: "jpeg allowed", req: UploadRequest{Name: "a.JPEG", Data: []byte("x")}},
		{name: "executable rejected", req: UploadRequest{Name: "a.exe", Data: []byte("x")}, wantErr: true},
		{name: "no extension rejected", req: UploadRequest{Name: "receipt", Data: []byte("x")}, wantErr: true},
		{name: "empty name rejected", req: UploadRequest{Name: "  ", Data: []byte("x")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestReconciler()
			outcome, err := r.Upload(context.Background(), tt.req)
			require.NoError(t, err)
			require.Len(t, outcome.Results, 1)
			if tt.wantErr {
				assert.ErrorIs(t, outcome.Results[0].Err, common.ErrUploadRejected)
				assert.Empty(t, r.Pool())
				return
			}
			assert.NoError(t, outcome.Results[0].Err)
			assert.Len(t, r.Pool(), 1)
		})
	}
}

func TestUploadSizeLimit(t *testing.T) {
	scorer := NewMockScorer()
	blobs := NewMockBlobStore()
	r := NewWithConfig(scorer, blobs, Config{
		AllowedExtensions: []string{".pdf"},
		MaxUploadSize:     4,
	})

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "big.pdf", Data: []byte("12345")})
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrUploadRejected)
	assert.Empty(t, r.Pool())
}

func TestUploadToExpenseScores(t *testing.T) {
	r, scorer, _ := newTestReconciler()
	e := expenseWithFields(r)
	scorer.SetScore(e.ID, "a.pdf", 0.85)

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("x"), ExpenseID: e.ID})
	require.NoError(t, err)
	require.NoError(t, outcome.Results[0].Err)

	got, _ := r.Expense(e.ID)
	require.Len(t, got.Receipts, 1)
	require.NotNil(t, got.Receipts[0].Confidence)
	assert.Equal(t, 85, *got.Receipts[0].Confidence)
	assert.NotEmpty(t, got.Receipts[0].StorageRef)
}

func TestUploadScoringFailureStillCompletes(t *testing.T) {
	r, scorer, _ := newTestReconciler()
	e := expenseWithFields(r)
	scorer.FailWith(errors.New("scorer down"))

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("x"), ExpenseID: e.ID})
	require.NoError(t, err)
	require.NoError(t, outcome.Results[0].Err)

	got, _ := r.Expense(e.ID)
	require.Len(t, got.Receipts, 1)
	assert.Nil(t, got.Receipts[0].Confidence)
}

func TestUploadToPoolNeverScores(t *testing.T) {
	r, scorer, _ := newTestReconciler()
	mustUploadToPool(t, r, "a.pdf")

	assert.Empty(t, scorer.Calls())
	assert.Nil(t, r.Pool()[0].Confidence)
}

func TestUploadDuplicateSupersedesExisting(t *testing.T) {
	// Scenario: a.pdf attached to E1, then a same-named upload to the
	// pool. E1 must end with no a.pdf and its old confidence discarded;
	// the pool holds the single surviving instance.
	r, scorer, _ := newTestReconciler()
	e1 := expenseWithFields(r)
	scorer.SetScore(e1.ID, "a.pdf", 0.9)

	_, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("v1"), ExpenseID: e1.ID})
	require.NoError(t, err)

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("v2")})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Duplicates.Count())
	assert.Equal(t, ExpenseContainer(e1.ID), outcome.Duplicates.Removed[0].Container)

	got, _ := r.Expense(e1.ID)
	assert.Empty(t, got.Receipts)
	require.Len(t, r.Pool(), 1)
	assert.Equal(t, "a.pdf", r.Pool()[0].Name)
	assert.Nil(t, r.Pool()[0].Confidence)
	assert.Equal(t, 1, r.TotalReceipts())
}

func TestUploadBatchLastSameNameWins(t *testing.T) {
	r, _, _ := newTestReconciler()

	outcome, err := r.UploadBatch(context.Background(), []UploadRequest{
		{Name: "a.pdf", Data: []byte("first")},
		{Name: "b.pdf", Data: []byte("other")},
		{Name: "a.pdf", Data: []byte("last")},
	})
	require.NoError(t, err)

	assert.True(t, outcome.Results[0].Superseded)
	assert.False(t, outcome.Results[1].Superseded)
	assert.False(t, outcome.Results[2].Superseded)
	assert.Equal(t, 2, outcome.Admitted)

	require.Len(t, r.Pool(), 2)
	assert.Equal(t, "b.pdf", r.Pool()[0].Name)
	assert.Equal(t, "a.pdf", r.Pool()[1].Name)
}

func TestUploadBatchGuardSettlesBeforeScoring(t *testing.T) {
	// The duplicate guard must remove the old attached instance before any
	// scoring call for the batch is issued, so the scorer is never asked
	// about a receipt that is about to be discarded.
	r, scorer, _ := newTestReconciler()
	e1 := expenseWithFields(r)
	e2 := expenseWithFields(r)
	scorer.SetScore(e1.ID, "a.pdf", 0.9)
	scorer.SetScore(e2.ID, "a.pdf", 0.8)

	_, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("v1"), ExpenseID: e1.ID})
	require.NoError(t, err)

	_, err = r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("v2"), ExpenseID: e2.ID})
	require.NoError(t, err)

	got1, _ := r.Expense(e1.ID)
	got2, _ := r.Expense(e2.ID)
	assert.Empty(t, got1.Receipts)
	require.Len(t, got2.Receipts, 1)
	assert.Equal(t, 1, r.TotalReceipts())
}

func TestUploadBatchSiblingsProceedPastRejection(t *testing.T) {
	r, _, _ := newTestReconciler()

	outcome, err := r.UploadBatch(context.Background(), []UploadRequest{
		{Name: "bad.exe", Data: []byte("x")},
		{Name: "good.pdf", Data: []byte("x")},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrUploadRejected)
	assert.NoError(t, outcome.Results[1].Err)
	require.Len(t, r.Pool(), 1)
	assert.Equal(t, "good.pdf", r.Pool()[0].Name)
}

func TestUploadStorageFailureRejectsFile(t *testing.T) {
	r, _, blobs := newTestReconciler()
	blobs.FailPutsWith(errors.New("disk full"))

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("x")})
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrUploadRejected)
	assert.Empty(t, r.Pool())
}

func TestUploadToMissingExpense(t *testing.T) {
	r, _, _ := newTestReconciler()

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("x"), ExpenseID: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrExpenseNotFound)
	assert.Empty(t, r.Pool())
	assert.Equal(t, 0, r.TotalReceipts())
}

func TestUploadToMissingExpenseLeavesExistingReceiptAlone(t *testing.T) {
	// A rejected upload must not run the duplicate guard: the same-named
	// receipt already in the session survives and the receipt count is
	// unchanged.
	r, _, _ := newTestReconciler()
	mustUploadToPool(t, r, "a.pdf")

	outcome, err := r.Upload(context.Background(), UploadRequest{Name: "a.pdf", Data: []byte("v2"), ExpenseID: "missing"})
	require.NoError(t, err)
	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrExpenseNotFound)
	assert.Equal(t, 0, outcome.Duplicates.Count())

	require.Len(t, r.Pool(), 1)
	assert.Equal(t, "a.pdf", r.Pool()[0].Name)
	assert.Equal(t, 1, r.TotalReceipts())
}

func TestUploadBatchDoomedFileDoesNotBlockSiblings(t *testing.T) {
	r, scorer, _ := newTestReconciler()
	e := expenseWithFields(r)
	scorer.SetScore(e.ID, "good.pdf", 0.8)
	mustUploadToPool(t, r, "bad.pdf")

	outcome, err := r.UploadBatch(context.Background(), []UploadRequest{
		{Name: "bad.pdf", Data: []byte("x"), ExpenseID: "missing"},
		{Name: "good.pdf", Data: []byte("x"), ExpenseID: e.ID},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, outcome.Results[0].Err, common.ErrExpenseNotFound)
	require.NoError(t, outcome.Results[1].Err)
	got, _ := r.Expense(e.ID)
	require.Len(t, got.Receipts, 1)
	assert.Equal(t, "good.pdf", got.Receipts[0].Name)

	// The doomed file's namesake stays in the pool untouched.
	require.Len(t, r.Pool(), 1)
	assert.Equal(t, "bad.pdf", r.Pool()[0].Name)
	assert.Equal(t, 2, r.TotalReceipts())
}
