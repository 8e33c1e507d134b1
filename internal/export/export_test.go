package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlobs struct {
	data map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, _ string, data []byte) (string, error) {
	ref := fmt.Sprintf("ref-%d", len(m.data))
	m.data[ref] = data
	return ref, nil
}

func (m *memBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	data, ok := m.data[ref]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", ref)
	}
	return data, nil
}

func (m *memBlobs) Delete(_ context.Context, ref string) error {
	delete(m.data, ref)
	return nil
}

func (m *memBlobs) Close() error { return nil }

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportWritesCSVAndReceipts(t *testing.T) {
	blobs := newMemBlobs()
	ref, err := blobs.Put(context.Background(), "a.pdf", []byte("receipt bytes"))
	require.NoError(t, err)

	e1 := &model.Expense{ID: "e1", Fields: model.NewFieldMap()}
	e1.Fields.Set("Date", "2024-01-15", true)
	e1.Fields.Set("Amount", "45.67", true)
	e1.Receipts = []model.Receipt{{Name: "a.pdf", StorageRef: ref, Kind: model.ReceiptKindDocument}}

	e2 := &model.Expense{ID: "e2", Fields: model.NewFieldMap()}
	e2.Fields.Set("Date", "2024-01-16", true)
	e2.Fields.Set("Amount", "9.99", true)

	dir := t.TempDir()
	exporter := NewDirExporter(dir, blobs)
	require.NoError(t, exporter.Export(context.Background(), &model.Snapshot{Expenses: []*model.Expense{e1, e2}}))

	records := readCSV(t, filepath.Join(dir, "expenses.csv"))
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Amount", "Receipts"}, records[0])
	assert.Equal(t, []string{"2024-01-15", "45.67", "a.pdf"}, records[1])
	assert.Equal(t, []string{"2024-01-16", "9.99", ""}, records[2])

	copied, err := os.ReadFile(filepath.Join(dir, "receipts", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []byte("receipt bytes"), copied)
}

func TestExportMergesHeaders(t *testing.T) {
	e1 := &model.Expense{ID: "e1", Fields: model.NewFieldMap()}
	e1.Fields.Set("Date", "2024-01-15", true)
	e2 := &model.Expense{ID: "e2", Fields: model.NewFieldMap()}
	e2.Fields.Set("Date", "2024-01-16", true)
	e2.Fields.Set("Notes", "extra column", true)

	dir := t.TempDir()
	exporter := NewDirExporter(dir, newMemBlobs())
	require.NoError(t, exporter.Export(context.Background(), &model.Snapshot{Expenses: []*model.Expense{e1, e2}}))

	records := readCSV(t, filepath.Join(dir, "expenses.csv"))
	assert.Equal(t, []string{"Date", "Notes", "Receipts"}, records[0])
	// Rows missing a merged column get an empty cell.
	assert.Equal(t, []string{"2024-01-15", "", ""}, records[1])
}

func TestExportJoinsMultipleReceipts(t *testing.T) {
	blobs := newMemBlobs()
	ref1, _ := blobs.Put(context.Background(), "a.pdf", []byte("a"))
	ref2, _ := blobs.Put(context.Background(), "b.png", []byte("b"))

	e := &model.Expense{ID: "e1", Fields: model.NewFieldMap()}
	e.Fields.Set("Date", "2024-01-15", true)
	e.Receipts = []model.Receipt{
		{Name: "a.pdf", StorageRef: ref1, Kind: model.ReceiptKindDocument},
		{Name: "b.png", StorageRef: ref2, Kind: model.ReceiptKindImage},
	}

	dir := t.TempDir()
	exporter := NewDirExporter(dir, blobs)
	require.NoError(t, exporter.Export(context.Background(), &model.Snapshot{Expenses: []*model.Expense{e}}))

	records := readCSV(t, filepath.Join(dir, "expenses.csv"))
	assert.Equal(t, "a.pdf;b.png", records[1][1])
}

func TestExportSkipsUnreadableReceipts(t *testing.T) {
	e := &model.Expense{ID: "e1", Fields: model.NewFieldMap()}
	e.Fields.Set("Date", "2024-01-15", true)
	e.Receipts = []model.Receipt{{Name: "gone.pdf", StorageRef: "missing", Kind: model.ReceiptKindDocument}}

	dir := t.TempDir()
	exporter := NewDirExporter(dir, newMemBlobs())
	require.NoError(t, exporter.Export(context.Background(), &model.Snapshot{Expenses: []*model.Expense{e}}))

	// The CSV still lists the receipt even though its bytes were lost.
	records := readCSV(t, filepath.Join(dir, "expenses.csv"))
	assert.Equal(t, "gone.pdf", records[1][1])
	_, err := os.Stat(filepath.Join(dir, "receipts", "gone.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportNilSnapshot(t *testing.T) {
	exporter := NewDirExporter(t.TempDir(), newMemBlobs())
	assert.Error(t, exporter.Export(context.Background(), nil))
}
