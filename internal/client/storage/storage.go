package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileStore keeps one JSON blob per key in a directory. Writes go to a
// temporary file first and are renamed into place.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(fs.dir, key+".json"), nil
}

// Get reads the blob of key.
func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Set writes the blob of key atomically.
func (fs *FileStore) Set(_ context.Context, key string, value []byte) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.CreateTemp(fs.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Remove deletes the blob of key.
func (fs *FileStore) Remove(_ context.Context, key string) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
