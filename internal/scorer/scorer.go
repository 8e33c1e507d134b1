package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/staplerhq/stapler/internal/common"
	"github.com/staplerhq/stapler/internal/model"
	"github.com/staplerhq/stapler/internal/service"
)

// Scorer implements service.Scorer on top of a Client, adding retry with
// backoff and a TTL cache. "Unknown" responses are passed through, not
// cached as failures.
type Scorer struct {
	client    Client
	cache     *scoreCache
	retryOpts service.RetryOptions
}

// New creates a scorer wrapper around the given client.
func New(client Client, cfg Config) *Scorer {
	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}
	return &Scorer{
		client:    client,
		cache:     newScoreCache(cfg.CacheTTL),
		retryOpts: retryOpts,
	}
}

// Score computes the match score for one (expense, receipt) pair.
func (s *Scorer) Score(ctx context.Context, expense *model.Expense, receipt model.Receipt) (float64, bool, error) {
	key := expense.ID + "|" + receipt.Name + "|" + receipt.StorageRef

	if cached, ok := s.cache.get(key); ok {
		slog.Debug("Score cache hit", "expense_id", expense.ID, "receipt", receipt.Name)
		return cached.Score, cached.OK, nil
	}

	var response ScoreResponse
	err := common.WithRetry(ctx, func() error {
		var callErr error
		response, callErr = s.client.Score(ctx, expense, receipt)
		return callErr
	}, s.retryOpts)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", common.ErrScoringUnavailable, err)
	}

	s.cache.set(key, response)

	slog.Debug("Scored pair",
		"expense_id", expense.ID,
		"receipt", receipt.Name,
		"ok", response.OK,
		"score", response.Score)
	return response.Score, response.OK, nil
}
