// Package storage provides the persisted local store: an opaque key-value
// blob store used to cache cart, bookmark and auth snapshots across
// restarts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys of the snapshots kept in the store.
const (
	KeyCart      = "Cart_Data"
	KeyBookmarks = "bookmarks"
	KeyAuth      = "Auth_Data"
)

// ErrNotFound is returned by Get when the key holds no blob.
var ErrNotFound = errors.New("storage: key not found")

// Store is an async-safe key-value blob store.
type Store interface {
	// Get returns the blob stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// LoadJSON decodes the blob under key into v. It returns ErrNotFound
// untouched so callers can tell "empty" from "broken".
func LoadJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
