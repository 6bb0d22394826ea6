package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore saves and serves uploaded document files by server-assigned name.
type BlobStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	// Open returns the blob contents. A missing blob yields an error that
	// matches os.ErrNotExist via errors.Is.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// NewStoredName returns a random filename carrying only the original
// extension. Client filenames never reach the filesystem, which rules out
// traversal and collisions.
func NewStoredName(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

// FileStore keeps blobs as flat files under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

func (f *FileStore) path(name string) string {
	return filepath.Join(f.basePath, filepath.Base(name))
}

// Save writes a blob to disk.
func (f *FileStore) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	out, err := os.Create(f.path(name))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open returns the blob for reading; a missing file reports os.ErrNotExist.
func (f *FileStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(f.path(name))
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Remove deletes the blob. Removing an absent blob is not an error.
func (f *FileStore) Remove(_ context.Context, name string) error {
	err := os.Remove(f.path(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
