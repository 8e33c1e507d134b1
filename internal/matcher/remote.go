package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// Remote implements service.BulkMatcher against the bulk-matching service.
// The service's response is authoritative: whatever it pairs is handed back
// verbatim as assignments, and the engine replaces the relevant portion of
// local state without merging.
type Remote struct {
	httpClient *http.Client
	url        string
}

// NewRemote creates a remote matcher client for the given endpoint URL.
func NewRemote(url string, timeout time.Duration) (*Remote, error) {
	if url == "" {
		return nil, fmt.Errorf("bulk matching service URL is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Remote{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type wireDetails struct {
	Date     string `json:"date,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

type wireReceipt struct {
	ExtractedDetails *wireDetails      `json:"extractedDetails,omitempty"`
	Confidence       *int              `json:"confidence,omitempty"`
	Name             string            `json:"name"`
	StorageRef       string            `json:"storageRef"`
	Kind             model.ReceiptKind `json:"kind"`
}

type wireExpense struct {
	Fields      *model.FieldMap `json:"fields"`
	ID          string          `json:"id"`
	Attachments []wireReceipt   `json:"attachments"`
}

type matchRequest struct {
	Pool     []wireReceipt `json:"pool"`
	Expenses []wireExpense `json:"expenses"`
}

type matchResponse struct {
	MatchedExpenses   []wireExpense `json:"matchedExpenses"`
	UnmatchedReceipts []wireReceipt `json:"unmatchedReceipts"`
}

// MatchBulk sends the whole pool and expense set in one request and decodes
// the authoritative response into assignments for the pool receipts the
// service paired.
func (r *Remote) MatchBulk(ctx context.Context, pool []model.Receipt, expenses []*model.Expense) (*service.MatchResult, error) {
	request := matchRequest{
		Pool:     make([]wireReceipt, len(pool)),
		Expenses: make([]wireExpense, len(expenses)),
	}
	poolNames := make(map[string]bool, len(pool))
	for i, rec := range pool {
		request.Pool[i] = toWireReceipt(rec)
		poolNames[rec.Name] = true
	}
	for i, e := range expenses {
		we := wireExpense{ID: e.ID, Fields: e.Fields, Attachments: make([]wireReceipt, len(e.Receipts))}
		for j, rec := range e.Receipts {
			we.Attachments[j] = toWireReceipt(rec)
		}
		request.Expenses[i] = we
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("matching service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var response matchResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := &service.MatchResult{}
	for _, we := range response.MatchedExpenses {
		for _, attachment := range we.Attachments {
			// Attachments the expense already carried going in are not new
			// assignments; only receipts drawn from the pool are.
			if !poolNames[attachment.Name] {
				continue
			}
			result.Assignments = append(result.Assignments, service.Assignment{
				ReceiptName: attachment.Name,
				ExpenseID:   we.ID,
				Confidence:  attachment.Confidence,
			})
		}
	}
	for _, rec := range response.UnmatchedReceipts {
		result.Unmatched = append(result.Unmatched, rec.Name)
	}
	return result, nil
}

func toWireReceipt(rec model.Receipt) wireReceipt {
	out := wireReceipt{
		Name:       rec.Name,
		StorageRef: rec.StorageRef,
		Kind:       rec.Kind,
		Confidence: rec.Confidence,
	}
	if rec.Details != nil {
		out.ExtractedDetails = &wireDetails{
			Date:     rec.Details.Date,
			Amount:   rec.Details.Amount,
			Currency: rec.Details.Currency,
			Vendor:   rec.Details.Vendor,
		}
	}
	return out
}
