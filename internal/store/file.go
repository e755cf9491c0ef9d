package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each document as <dir>/<name>.csv.
// The version is the content hash of the file, so external edits are detected too.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, name+".csv")
}

func (f *FileStore) read(name string) (Document, error) {
	body, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Document{Name: name}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return Document{Name: name, Body: body, Version: VersionOf(body)}, nil
}

// Load reads the document file
func (f *FileStore) Load(_ context.Context, name string) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(name)
}

// Save replaces the file through a rename when its current hash equals expected
func (f *FileStore) Save(_ context.Context, name string, body []byte, expected Version) (Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.read(name)
	if err != nil {
		return "", err
	}
	if cur.Version != expected {
		return "", fmt.Errorf("%s: %w", name, ErrStaleWrite)
	}

	tmp, err := os.CreateTemp(f.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	return VersionOf(body), nil
}
