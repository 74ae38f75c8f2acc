package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes uploads to a directory on disk and returns paths under a
// public prefix. Stands in for the real external binary-storage service.
type LocalStore struct {
	dir    string
	prefix string
}

// NewLocalStore ensures the upload directory exists.
func NewLocalStore(dir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: prefix}, nil
}

// Save stores the binary under a generated name, keeping the original
// extension.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	name := uuid.NewString() + ext

	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path.Join(s.prefix, name), nil
}
