// Package blob stores the raw bytes of uploaded receipts. The store is
// content-addressed: the sha256 hex digest of the bytes is the stable
// reference handed to the scorer and matcher, and identical bytes are never
// written twice.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// Store implements service.BlobStore on a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the blob database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("blob store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(bucketBlobs)
		return createErr
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create blob bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Put stores the bytes and returns their stable reference. Bytes already
// present are not rewritten.
func (s *Store) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	digest := sha256.Sum256(data)
	ref := hex.EncodeToString(digest[:])

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlobs)
		if bucket.Get([]byte(ref)) != nil {
			return nil
		}
		return bucket.Put([]byte(ref), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store %s: %w", name, err)
	}
	return ref, nil
}

// Get retrieves the bytes for a reference.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketBlobs).Get([]byte(ref))
		if stored == nil {
			return fmt.Errorf("blob %q not found", ref)
		}
		data = append([]byte(nil), stored...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the bytes for a reference.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Delete([]byte(ref))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
