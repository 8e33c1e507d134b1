// Package categories supplies the category allow-list the validator checks
// expense categories against.
package categories

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// StaticSource serves a fixed allow-list, for configuration-supplied lists
// and tests.
type StaticSource struct {
	categories []string
}

// NewStaticSource creates a source over a fixed list.
func NewStaticSource(categories []string) *StaticSource {
	return &StaticSource{categories: categories}
}

// Categories returns the configured list.
func (s *StaticSource) Categories(_ context.Context) ([]string, error) {
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

// HTTPSource fetches the allow-list from the category endpoint once and
// caches it for the source's lifetime.
type HTTPSource struct {
	client     *http.Client
	url        string
	categories []string
	fetched    bool
	mu         sync.Mutex
}

// NewHTTPSource creates a source for the given endpoint URL.
func NewHTTPSource(url string, timeout time.Duration) (*HTTPSource, error) {
	if url == "" {
		return nil, fmt.Errorf("category endpoint URL is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Categories returns the allow-list, fetching it on first use.
func (s *HTTPSource) Categories(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fetched {
		categories, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.categories = categories
		s.fetched = true
		slog.Info("Fetched category allow-list", "count", len(categories))
	}

	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("category endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var categories []string
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return categories, nil
}
