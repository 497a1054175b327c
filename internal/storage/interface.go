package storage

import (
	"context"
	"io"
)

// StoreResult describes a completed write: the byte count and the SHA256
// computed while the content was copied to disk. Callers use it to record
// write-time checksums without re-reading the payload.
type StoreResult struct {
	BytesWritten int64
	SHA256       string
}

// BlobStorage defines the interface for binary object storage
type BlobStorage interface {
	// Store saves content at the given path and reports its size and checksum
	Store(ctx context.Context, path string, content io.Reader, contentType string) (*StoreResult, error)

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)

	// List returns paths matching the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}
