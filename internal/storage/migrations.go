package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 1

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					position INTEGER NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS expense_fields (
					expense_id TEXT NOT NULL,
					position INTEGER NOT NULL,
					name TEXT NOT NULL,
					value TEXT NOT NULL DEFAULT '',
					editable INTEGER NOT NULL DEFAULT 1,
					PRIMARY KEY (expense_id, name),
					FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
				)`,
				`CREATE TABLE IF NOT EXISTS receipts (
					name TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					storage_ref TEXT NOT NULL,
					size INTEGER NOT NULL DEFAULT 0,
					confidence INTEGER,
					expense_id TEXT,
					position INTEGER NOT NULL,
					detail_date TEXT,
					detail_amount TEXT,
					detail_currency TEXT,
					detail_vendor TEXT,
					FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_receipts_expense ON receipts(expense_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database up to the expected schema version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}
