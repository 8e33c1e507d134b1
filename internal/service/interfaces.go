// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/staplerhq/stapler/internal/model"
)

// Scorer computes a match score for one (expense, receipt) pair. A score is
// a value in [0,1]. ok=false means the collaborator could not produce a
// score for this pair; that is "unknown", never zero. A non-nil error means
// the scoring call itself failed (unreachable, timed out).
type Scorer interface {
	Score(ctx context.Context, expense *model.Expense, receipt model.Receipt) (score float64, ok bool, err error)
}

// Assignment is one receipt-to-expense pairing produced by a bulk match.
type Assignment struct {
	Confidence  *int
	ReceiptName string
	ExpenseID   string
}

// MatchResult is the outcome of one bulk-matching round. Receipts not named
// in either list stay exactly where they already were.
type MatchResult struct {
	Assignments []Assignment
	Unmatched   []string
}

// BulkMatcher runs one bulk-matching round over the whole pool and expense
// set. Implementations must not mutate their inputs; the engine applies the
// result atomically.
type BulkMatcher interface {
	MatchBulk(ctx context.Context, pool []model.Receipt, expenses []*model.Expense) (*MatchResult, error)
}

// BlobStore holds the raw bytes of uploaded receipts. Put returns a stable
// reference used for all subsequent scoring, moving, and retrieval; a
// receipt that already has a reference is never re-uploaded.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
	Close() error
}

// CategorySource supplies the category allow-list the validator checks
// against. Implementations fetch once and cache for their lifetime.
type CategorySource interface {
	Categories(ctx context.Context) ([]string, error)
}

// Storage persists the reconciliation session so it can be resumed.
type Storage interface {
	Migrate(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
	Close() error
}

// Exporter consumes a final reconciliation snapshot.
type Exporter interface {
	Export(ctx context.Context, snapshot *model.Snapshot) error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
