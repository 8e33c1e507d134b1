// Package scorer provides the client for the external confidence scorer and
// a caching, retrying wrapper that the reconciliation engine consumes.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/staplerhq/stapler/internal/model"
)

// Client is the transport contract for one scoring call.
type Client interface {
	Score(ctx context.Context, expense *model.Expense, receipt model.Receipt) (ScoreResponse, error)
}

// ScoreResponse is the scorer's answer for one pair. OK=false means the
// collaborator had no score for the pair; that is "unknown", never zero.
type ScoreResponse struct {
	Score float64 `json:"score"`
	OK    bool    `json:"ok"`
}

// Config holds configuration for the confidence scorer.
type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	CacheTTL   time.Duration
}

// httpClient implements Client against the scoring service's HTTP endpoint.
type httpClient struct {
	client *http.Client
	url    string
}

// NewHTTPClient creates a scoring client for the given endpoint.
func NewHTTPClient(cfg Config) (Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("scorer URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		url: cfg.URL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type scoreRequest struct {
	Expense scoreExpense `json:"expense"`
	Receipt scoreReceipt `json:"receipt"`
}

type scoreExpense struct {
	Fields *model.FieldMap `json:"fields"`
	ID     string          `json:"id"`
}

type scoreReceipt struct {
	ExtractedDetails *model.InvoiceDetails `json:"extractedDetails,omitempty"`
	Name             string                `json:"name"`
	StorageRef       string                `json:"storageRef"`
	Kind             model.ReceiptKind     `json:"kind"`
}

// Score posts one (expense, receipt) pair and decodes the response.
func (c *httpClient) Score(ctx context.Context, expense *model.Expense, receipt model.Receipt) (ScoreResponse, error) {
	request := scoreRequest{
		Expense: scoreExpense{ID: expense.ID, Fields: expense.Fields},
		Receipt: scoreReceipt{
			Name:             receipt.Name,
			StorageRef:       receipt.StorageRef,
			Kind:             receipt.Kind,
			ExtractedDetails: receipt.Details,
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ScoreResponse{}, fmt.Errorf("scorer error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var response ScoreResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return ScoreResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if response.OK && (response.Score < 0 || response.Score > 1) {
		return ScoreResponse{}, fmt.Errorf("scorer returned out-of-range score %f", response.Score)
	}
	return response, nil
}
