package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage persists snapshots to a single file on local disk.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated snapshot behind.
type FileStorage struct {
	path string
}

// NewFileStorage creates a file-backed storage rooted at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (f *FileStorage) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("notify: read snapshot %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileStorage) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("notify: create snapshot dir %s: %w", dir, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("notify: write snapshot %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("notify: replace snapshot %s: %w", f.path, err)
	}
	return nil
}
