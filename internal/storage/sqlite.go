// Package storage persists the reconciliation session in SQLite so it can
// be resumed between runs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/staplerhq/stapler/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the persisted session with the given snapshot in
// one transaction.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"expense_fields", "receipts", "expenses"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for pos, e := range snapshot.Expenses {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO expenses (id, position) VALUES (?, ?)", e.ID, pos); err != nil {
			return fmt.Errorf("failed to save expense %s: %w", e.ID, err)
		}
		for fpos, f := range e.Fields.Fields() {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO expense_fields (expense_id, position, name, value, editable)
				 VALUES (?, ?, ?, ?, ?)`,
				e.ID, fpos, f.Name, f.Value, f.Editable); err != nil {
				return fmt.Errorf("failed to save field %s.%s: %w", e.ID, f.Name, err)
			}
		}
		for rpos, rec := range e.Receipts {
			if err = insertReceipt(ctx, tx, rec, sql.NullString{String: e.ID, Valid: true}, rpos); err != nil {
				return err
			}
		}
	}

	for pos, rec := range snapshot.Pool {
		if err = insertReceipt(ctx, tx, rec, sql.NullString{}, pos); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func insertReceipt(ctx context.Context, tx *sql.Tx, rec model.Receipt, expenseID sql.NullString, pos int) error {
	var confidence sql.NullInt64
	if rec.Confidence != nil {
		confidence = sql.NullInt64{Int64: int64(*rec.Confidence), Valid: true}
	}

	var detailDate, detailAmount, detailCurrency, detailVendor sql.NullString
	if rec.Details != nil {
		detailDate = sql.NullString{String: rec.Details.Date, Valid: true}
		detailAmount = sql.NullString{String: rec.Details.Amount, Valid: true}
		detailCurrency = sql.NullString{String: rec.Details.Currency, Valid: true}
		detailVendor = sql.NullString{String: rec.Details.Vendor, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO receipts
		 (name, kind, storage_ref, size, confidence, expense_id, position,
		  detail_date, detail_amount, detail_currency, detail_vendor)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, string(rec.Kind), rec.StorageRef, rec.Size, confidence,
		expenseID, pos, detailDate, detailAmount, detailCurrency, detailVendor)
	if err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", rec.Name, err)
	}
	return nil
}

// LoadSnapshot reads the persisted session back in its saved order.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	snapshot := &model.Snapshot{}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM expenses ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*model.Expense)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e := &model.Expense{ID: id, Fields: model.NewFieldMap()}
		snapshot.Expenses = append(snapshot.Expenses, e)
		byID[id] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	if err := s.loadFields(ctx, byID); err != nil {
		return nil, err
	}
	if err := s.loadReceipts(ctx, snapshot, byID); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *SQLiteStorage) loadFields(ctx context.Context, byID map[string]*model.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT expense_id, name, value, editable FROM expense_fields ORDER BY expense_id, position")
	if err != nil {
		return fmt.Errorf("failed to load expense fields: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var expenseID, name, value string
		var editable bool
		if err := rows.Scan(&expenseID, &name, &value, &editable); err != nil {
			return fmt.Errorf("failed to scan field: %w", err)
		}
		if e, ok := byID[expenseID]; ok {
			e.Fields.Set(name, value, editable)
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadReceipts(ctx context.Context, snapshot *model.Snapshot, byID map[string]*model.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, storage_ref, size, confidence, expense_id,
		        detail_date, detail_amount, detail_currency, detail_vendor
		 FROM receipts ORDER BY expense_id, position`)
	if err != nil {
		return fmt.Errorf("failed to load receipts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rec model.Receipt
		var kind string
		var confidence sql.NullInt64
		var expenseID, detailDate, detailAmount, detailCurrency, detailVendor sql.NullString

		if err := rows.Scan(&rec.Name, &kind, &rec.StorageRef, &rec.Size, &confidence,
			&expenseID, &detailDate, &detailAmount, &detailCurrency, &detailVendor); err != nil {
			return fmt.Errorf("failed to scan receipt: %w", err)
		}
		rec.Kind = model.ReceiptKind(kind)
		if confidence.Valid {
			c := int(confidence.Int64)
			rec.Confidence = &c
		}
		if detailDate.Valid || detailAmount.Valid || detailCurrency.Valid || detailVendor.Valid {
			rec.Details = &model.InvoiceDetails{
				Date:     detailDate.String,
				Amount:   detailAmount.String,
				Currency: detailCurrency.String,
				Vendor:   detailVendor.String,
			}
		}

		if expenseID.Valid {
			if e, ok := byID[expenseID.String]; ok {
				e.Receipts = append(e.Receipts, rec)
			}
			continue
		}
		rec.Confidence = nil
		snapshot.Pool = append(snapshot.Pool, rec)
	}
	return rows.Err()
}
