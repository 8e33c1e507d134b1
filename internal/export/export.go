// Package export writes the final reconciliation snapshot for hand-off:
// a CSV of expense rows and a folder of the attached receipt files.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// receiptsColumn holds the attached receipt file names, semicolon-separated,
// matching what the downstream portal automation expects.
const receiptsColumn = "Receipts"

// DirExporter implements service.Exporter by writing expenses.csv and a
// receipts/ subfolder into a destination directory.
type DirExporter struct {
	blobs service.BlobStore
	dir   string
}

// NewDirExporter creates an exporter targeting the given directory.
func NewDirExporter(dir string, blobs service.BlobStore) *DirExporter {
	return &DirExporter{dir: dir, blobs: blobs}
}

// Export writes the snapshot. Receipt files that cannot be read back from
// the blob store are skipped with a warning; the CSV always reflects the
// full snapshot.
func (e *DirExporter) Export(ctx context.Context, snapshot *model.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	if err := os.MkdirAll(e.dir, 0750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := e.writeCSV(snapshot); err != nil {
		return err
	}
	if err := e.copyReceipts(ctx, snapshot); err != nil {
		return err
	}

	slog.Info("Exported snapshot", "dir", e.dir, "expenses", len(snapshot.Expenses))
	return nil
}

func (e *DirExporter) writeCSV(snapshot *model.Snapshot) error {
	path := filepath.Join(e.dir, "expenses.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	header := headerColumns(snapshot.Expenses)
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, exp := range snapshot.Expenses {
		row := make([]string, len(header))
		for i, col := range header {
			if col == receiptsColumn {
				row[i] = joinReceiptNames(exp.Receipts)
				continue
			}
			row[i] = exp.Fields.Value(col)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", exp.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return f.Close()
}

// headerColumns merges every expense's field names in first-seen order and
// appends the receipts column.
func headerColumns(expenses []*model.Expense) []string {
	var header []string
	seen := make(map[string]bool)
	for _, exp := range expenses {
		for _, name := range exp.Fields.Names() {
			if !seen[name] {
				seen[name] = true
				header = append(header, name)
			}
		}
	}
	return append(header, receiptsColumn)
}

func joinReceiptNames(receipts []model.Receipt) string {
	names := make([]string, len(receipts))
	for i, rec := range receipts {
		names[i] = rec.Name
	}
	return strings.Join(names, ";")
}

func (e *DirExporter) copyReceipts(ctx context.Context, snapshot *model.Snapshot) error {
	receiptsDir := filepath.Join(e.dir, "receipts")
	if err := os.MkdirAll(receiptsDir, 0750); err != nil {
		return fmt.Errorf("failed to create receipts directory: %w", err)
	}

	for _, exp := range snapshot.Expenses {
		for _, rec := range exp.Receipts {
			data, err := e.blobs.Get(ctx, rec.StorageRef)
			if err != nil {
				slog.Warn("Skipping unreadable receipt", "name", rec.Name, "error", err)
				continue
			}
			target := filepath.Join(receiptsDir, filepath.Base(rec.Name))
			if err := os.WriteFile(target, data, 0640); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
		}
	}
	return nil
}
