// Package storage provides the blob store holding uploaded sales spreadsheets.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no blob exists at the requested path.
var ErrNotFound = errors.New("file not found")

// FileInfo contains metadata about a stored file
type FileInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Storage key, relative to the store root
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for blob storage operations. Blobs are keyed by
// the Path returned from Upload.
type Storage interface {
	// Upload stores content under a fresh path inside the given folder
	Upload(ctx context.Context, folder, filename, contentType string, r io.Reader) (*FileInfo, error)

	// GetReader returns a reader for the blob at path
	GetReader(ctx context.Context, path string) (io.ReadCloser, error)

	// GetInfo returns metadata for a blob without reading it
	GetInfo(ctx context.Context, path string) (*FileInfo, error)

	// Delete removes the blob at path; deleting a missing blob is not an error
	Delete(ctx context.Context, path string) error
}

// ReadAll loads the whole blob at path.
func ReadAll(ctx context.Context, s Storage, path string) ([]byte, error) {
	rc, err := s.GetReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Config holds storage configuration
type Config struct {
	LocalPath string
}

// New creates the configured Storage implementation
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
