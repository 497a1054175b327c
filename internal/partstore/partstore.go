// Package partstore provides durable storage for individual upload chunks,
// keyed by (session id, sequence number). It knows nothing about session
// lifecycle rules; the uploads package layers those on top.
package partstore

import (
	"context"
	"time"
)

// PartInfo describes a stored part without its payload.
type PartInfo struct {
	Sequence int       `json:"sequence"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	StoredAt time.Time `json:"stored_at"`
}

// Store is the interface for chunk payload storage. Writes are atomic per
// key: a reader never observes a part whose bytes disagree with its recorded
// checksum and size.
type Store interface {
	// Put creates or overwrites the part at (sessionID, sequence)
	Put(ctx context.Context, sessionID string, sequence int, payload []byte) (PartInfo, error)

	// Get returns the full payload of a stored part
	Get(ctx context.Context, sessionID string, sequence int) ([]byte, error)

	// Size returns a stored part's size without reading its payload
	Size(ctx context.Context, sessionID string, sequence int) (int64, error)

	// Exists checks whether a part is present
	Exists(ctx context.Context, sessionID string, sequence int) (bool, error)

	// DeleteSession removes every part belonging to the session
	DeleteSession(ctx context.Context, sessionID string) error
}
