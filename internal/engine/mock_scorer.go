package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/staplerhq/stapler/internal/model"
)

// MockScorer is a test implementation of the service.Scorer interface with
// per-pair canned scores and optional failure injection.
type MockScorer struct {
	scores  map[string]float64
	unknown map[string]bool
	err     error
	calls   []MockScoreCall
	mu      sync.Mutex
}

// MockScoreCall records details of one scoring request.
type MockScoreCall struct {
	ExpenseID   string
	ReceiptName string
}

// NewMockScorer creates a mock scorer with no canned scores; every pair is
// reported as unknown until SetScore is called.
func NewMockScorer() *MockScorer {
	return &MockScorer{
		scores:  make(map[string]float64),
		unknown: make(map[string]bool),
	}
}

func pairKey(expenseID, receiptName string) string {
	return expenseID + "\x00" + receiptName
}

// SetScore cans a score for one (expense, receipt) pair.
func (m *MockScorer) SetScore(expenseID, receiptName string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[pairKey(expenseID, receiptName)] = score
}

// SetUnknown marks one pair as unscorable (ok=false, no error).
func (m *MockScorer) SetUnknown(expenseID, receiptName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown[pairKey(expenseID, receiptName)] = true
}

// FailWith makes every subsequent Score call return err.
func (m *MockScorer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the recorded scoring requests in order.
func (m *MockScorer) Calls() []MockScoreCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockScoreCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Score returns the canned score for the pair, unknown when none is set.
func (m *MockScorer) Score(_ context.Context, expense *model.Expense, receipt model.Receipt) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockScoreCall{ExpenseID: expense.ID, ReceiptName: receipt.Name})

	if m.err != nil {
		return 0, false, m.err
	}
	key := pairKey(expense.ID, receipt.Name)
	if m.unknown[key] {
		return 0, false, nil
	}
	score, ok := m.scores[key]
	if !ok {
		return 0, false, nil
	}
	return score, true, nil
}

// MockBlobStore is an in-memory service.BlobStore for tests.
type MockBlobStore struct {
	data    map[string][]byte
	putErr  error
	nextRef int
	mu      sync.Mutex
}

// NewMockBlobStore creates an empty in-memory blob store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{data: make(map[string][]byte)}
}

// FailPutsWith makes every subsequent Put return err.
func (m *MockBlobStore) FailPutsWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// Put stores bytes under a generated reference.
func (m *MockBlobStore) Put(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	m.nextRef++
	ref := fmt.Sprintf("%s#%d", name, m.nextRef)
	m.data[ref] = append([]byte(nil), data...)
	return ref, nil
}

// Get returns the bytes stored under ref.
func (m *MockBlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[ref]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", ref)
	}
	return data, nil
}

// Delete removes the bytes stored under ref.
func (m *MockBlobStore) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ref)
	return nil
}

// Close is a no-op.
func (m *MockBlobStore) Close() error { return nil }
