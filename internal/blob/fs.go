package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore implements Store on a local directory. Keys map directly onto
// file paths below the root.
type FSStore struct {
	root string
}

// NewFSStore creates a filesystem blob store rooted at dir, creating the
// directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root %s: %w", dir, err)
	}
	return &FSStore{root: dir}, nil
}

var _ Store = (*FSStore)(nil)

func (f *FSStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Put writes the payload under key, creating intermediate directories.
func (f *FSStore) Put(_ context.Context, key string, data []byte) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating blob dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}
	return nil
}

// Get reads the payload under key, returning ErrNotFound when absent.
func (f *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a payload is stored under key.
func (f *FSStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statting blob %s: %w", key, err)
	}
	return true, nil
}
