package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/staplerhq/stapler/internal/blob"
	"github.com/staplerhq/stapler/internal/categories"
	"github.com/staplerhq/stapler/internal/config"
	"github.com/staplerhq/stapler/internal/engine"
	"github.com/staplerhq/stapler/internal/matcher"
	"github.com/staplerhq/stapler/internal/scorer"
	"github.com/staplerhq/stapler/internal/service"
	"github.com/staplerhq/stapler/internal/storage"
)

// session bundles the persistent stores and the reconciler loaded from them.
// Commands open a session, mutate through the reconciler, then save.
type session struct {
	store      service.Storage
	blobs      service.BlobStore
	reconciler *engine.Reconciler
}

// openSession opens storage and the blob store, then restores the saved
// reconciliation state.
func openSession(ctx context.Context) (*session, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	blobs, err := blob.Open(config.ExpandPath(viper.GetString("blobs.path")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reconciler := engine.NewWithConfig(newScorer(), blobs, engineConfig())

	snapshot, err := store.LoadSnapshot(ctx)
	if err != nil {
		_ = store.Close()
		_ = blobs.Close()
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	reconciler.Restore(snapshot)

	return &session{store: store, blobs: blobs, reconciler: reconciler}, nil
}

// save persists the current reconciliation state.
func (s *session) save(ctx context.Context) error {
	if err := s.store.SaveSnapshot(ctx, s.reconciler.Snapshot()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *session) close() {
	_ = s.store.Close()
	_ = s.blobs.Close()
}

func engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if exts := viper.GetStringSlice("upload.allowed_extensions"); len(exts) > 0 {
		cfg.AllowedExtensions = exts
	}
	if maxSize := viper.GetInt64("upload.max_size"); maxSize > 0 {
		cfg.MaxUploadSize = maxSize
	}
	return cfg
}

// newScorer builds the confidence scorer from config. Without a scorer URL
// attachments simply carry undefined confidence.
func newScorer() service.Scorer {
	url := viper.GetString("scorer.url")
	if url == "" {
		return nil
	}
	client, err := scorer.NewHTTPClient(scorer.Config{
		URL:     url,
		Timeout: viper.GetDuration("scorer.timeout"),
	})
	if err != nil {
		return nil
	}
	return scorer.New(client, scorer.Config{
		URL:        url,
		MaxRetries: viper.GetInt("scorer.max_retries"),
		RetryDelay: viper.GetDuration("scorer.retry_delay"),
		CacheTTL:   viper.GetDuration("scorer.cache_ttl"),
	})
}

// newMatcher picks the remote bulk-matching service when configured, falling
// back to the in-process matcher driven by the scorer.
func newMatcher() (service.BulkMatcher, error) {
	if url := viper.GetString("matcher.url"); url != "" {
		return matcher.NewRemote(url, viper.GetDuration("matcher.timeout"))
	}
	sc := newScorer()
	if sc == nil {
		return nil, fmt.Errorf("matching requires scorer.url or matcher.url to be configured")
	}
	return matcher.NewLocal(sc, viper.GetFloat64("matcher.threshold")), nil
}

// newCategorySource prefers the category endpoint; a configured static list
// is the offline fallback.
func newCategorySource() (service.CategorySource, error) {
	if url := viper.GetString("categories.url"); url != "" {
		return categories.NewHTTPSource(url, 10*time.Second)
	}
	allowed := viper.GetStringSlice("categories.allowed")
	if len(allowed) == 0 {
		return nil, fmt.Errorf("validation requires categories.url or categories.allowed to be configured")
	}
	return categories.NewStaticSource(allowed), nil
}
