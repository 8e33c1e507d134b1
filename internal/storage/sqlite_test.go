package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveLoadSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	confidence := 85
	e1 := &model.Expense{ID: "e1", Fields: model.NewFieldMap()}
	e1.Fields.Set("Date", "2024-01-15", true)
	e1.Fields.Set("Amount", "45.67", true)
	e1.Fields.Set("Created ID", "row-1", false)
	e1.Receipts = []model.Receipt{{
		Name:       "a.pdf",
		Kind:       model.ReceiptKindDocument,
		StorageRef: "ref-a",
		Size:       120,
		Confidence: &confidence,
		Details:    &model.InvoiceDetails{Date: "2024-01-15", Amount: "45.67", Currency: "USD", Vendor: "Whole Foods"},
	}}
	e2 := &model.Expense{ID: "e2", Fields: model.NewFieldMap()}

	snapshot := &model.Snapshot{
		Expenses: []*model.Expense{e1, e2},
		Pool: []model.Receipt{
			{Name: "pool.png", Kind: model.ReceiptKindImage, StorageRef: "ref-p", Size: 44},
		},
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), snapshot))

	loaded, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, loaded.Expenses, 2)
	assert.Equal(t, "e1", loaded.Expenses[0].ID)
	assert.Equal(t, "e2", loaded.Expenses[1].ID)
	assert.Equal(t, []string{"Date", "Amount", "Created ID"}, loaded.Expenses[0].Fields.Names())
	assert.Equal(t, "45.67", loaded.Expenses[0].Fields.Value("Amount"))

	createdID, ok := loaded.Expenses[0].Fields.Get("Created ID")
	require.True(t, ok)
	assert.False(t, createdID.Editable)

	require.Len(t, loaded.Expenses[0].Receipts, 1)
	rec := loaded.Expenses[0].Receipts[0]
	assert.Equal(t, "a.pdf", rec.Name)
	assert.Equal(t, model.ReceiptKindDocument, rec.Kind)
	assert.Equal(t, "ref-a", rec.StorageRef)
	assert.Equal(t, int64(120), rec.Size)
	require.NotNil(t, rec.Confidence)
	assert.Equal(t, 85, *rec.Confidence)
	require.NotNil(t, rec.Details)
	assert.Equal(t, "Whole Foods", rec.Details.Vendor)

	require.Len(t, loaded.Pool, 1)
	assert.Equal(t, "pool.png", loaded.Pool[0].Name)
	assert.Nil(t, loaded.Pool[0].Confidence)
	assert.Nil(t, loaded.Pool[0].Details)
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	s := newTestStorage(t)

	first := &model.Snapshot{
		Expenses: []*model.Expense{{ID: "old", Fields: model.NewFieldMap()}},
		Pool:     []model.Receipt{{Name: "old.pdf", Kind: model.ReceiptKindDocument}},
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), first))

	second := &model.Snapshot{
		Expenses: []*model.Expense{{ID: "new", Fields: model.NewFieldMap()}},
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), second))

	loaded, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Expenses, 1)
	assert.Equal(t, "new", loaded.Expenses[0].ID)
	assert.Empty(t, loaded.Pool)
}

func TestLoadSnapshotEmptyDatabase(t *testing.T) {
	s := newTestStorage(t)

	loaded, err := s.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Expenses)
	assert.Empty(t, loaded.Pool)
}

func TestSnapshotPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	snapshot := &model.Snapshot{
		Pool: []model.Receipt{{Name: "kept.pdf", Kind: model.ReceiptKindDocument, StorageRef: "ref"}},
	}
	require.NoError(t, s.SaveSnapshot(context.Background(), snapshot))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.NoError(t, reopened.Migrate(context.Background()))

	loaded, err := reopened.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Pool, 1)
	assert.Equal(t, "kept.pdf", loaded.Pool[0].Name)
}

func TestNewSQLiteStorageRequiresPath(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.Error(t, err)
}
